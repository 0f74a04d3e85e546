package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// stageGiveawayEntry is step 7: if a giveaway is active and text matches its
// keyword, record an entry. Non-terminal: a giveaway keyword can also be a
// chat keyword trigger in the same message.
func (e *Engine) stageGiveawayEntry(ctx context.Context, ec *evalCtx) bool {
	giveaway, err := e.store.GetActiveGiveaway(ctx, ec.tenantID)
	if err != nil {
		return false
	}
	if giveaway.Status != models.GiveawayActive {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(ec.evt.Text), giveaway.Keyword) {
		return false
	}
	if giveaway.RequiresSubscription && !ec.evt.Tags.IsSubscriber && !ec.evt.Tags.IsBroadcaster {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: fmt.Sprintf("@%s this giveaway is subscriber-only.", ec.evt.Username),
		})
		return false
	}

	entered, err := e.store.InsertGiveawayEntry(ctx, models.GiveawayEntry{
		GiveawayID:   giveaway.ID,
		Username:     ec.evt.Username,
		Platform:     ec.evt.Platform,
		IsSubscriber: ec.evt.Tags.IsSubscriber,
	})
	if err != nil {
		e.logf("pipeline: insert giveaway entry failed: %v", err)
		return false
	}
	if !entered {
		return false
	}
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: fmt.Sprintf("@%s you're entered in %s!", ec.evt.Username, giveaway.Title),
	})
	return false
}
