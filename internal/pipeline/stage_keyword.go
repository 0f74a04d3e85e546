package pipeline

import (
	"context"
	"strings"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// stageKeywordTrigger is step 8, the last stage: if the message contains one
// of the tenant's configured chat keywords, ask the FactGenerator for an
// AI-written fact and post it. Failure here is swallowed; a missing or
// misbehaving FactGenerator must never surface as a pipeline error.
func (e *Engine) stageKeywordTrigger(ctx context.Context, ec *evalCtx) bool {
	if e.facts == nil || len(ec.cfg.ChatKeywords) == 0 {
		return false
	}
	lower := strings.ToLower(ec.evt.Text)
	matched := false
	for _, kw := range ec.cfg.ChatKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	fact, err := e.facts.GenerateFact(ctx, ec.tenantID, ec.cfg.AIPromptTemplate, ec.cfg.AIModel, ec.cfg.AITemperature)
	if err != nil {
		e.logf("pipeline: keyword fact generation failed: %v", err)
		return false
	}
	if strings.TrimSpace(fact) == "" {
		return false
	}
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel, Text: fact,
	})
	return false
}
