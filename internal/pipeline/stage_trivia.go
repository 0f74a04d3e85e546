package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// stageTriviaAnswer is step 5: if this viewer has an outstanding trivia
// question, check whether text answers it. A match awards points, replies,
// and aborts the pipeline (the answer message never reaches command
// dispatch or the giveaway/keyword stages).
func (e *Engine) stageTriviaAnswer(ctx context.Context, ec *evalCtx) bool {
	key := gameKey(ec.tenantID, ec.evt.Username, ec.evt.Platform)
	q, ok := e.games.getTrivia(key)
	if !ok {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(ec.evt.Text), q.answer) {
		return false
	}
	e.games.clearTrivia(key)

	settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
	if err == nil && settings.Enabled && q.points > 0 {
		if _, err := e.store.ApplyCurrencyDelta(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform,
			q.points, "trivia win", models.TxEarn); err != nil {
			e.logf("pipeline: trivia payout failed: %v", err)
		}
	}

	e.dispatch(ctx, models.ChatAction{
		Kind:     models.ActionSend,
		Platform: ec.evt.Platform,
		Channel:  ec.evt.Channel,
		Text:     fmt.Sprintf("@%s got it right! The answer was %q.", ec.evt.Username, q.answer),
	})
	ec.terminal = true
	return true
}
