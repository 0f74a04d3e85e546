package pipeline

import (
	"context"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// stageChatActivity is step 1: append ChatActivity for the open stream
// session, if one exists. Non-blocking per spec §4.2: a lookup/write
// failure here never aborts the pipeline, and runs detached from ctx's
// cancellation so a worker shutdown mid-pipeline doesn't lose the write.
func (e *Engine) stageChatActivity(ctx context.Context, ec *evalCtx) {
	sess, err := e.store.GetOpenStreamSession(ctx, ec.tenantID, ec.evt.Platform)
	if err != nil {
		return // no active session to attribute this message to
	}
	go func() {
		bg := context.Background()
		if err := e.store.AppendChatActivity(bg, sess.ID, ec.evt.Username); err != nil {
			e.logf("pipeline: append chat activity failed: %v", err)
		}
	}()
}

// stageCurrencyAccrual is step 2: credit earnPerMessage to the user's
// ledger when currency accrual is enabled for the tenant. Non-blocking:
// errors are logged, never surfaced.
func (e *Engine) stageCurrencyAccrual(ctx context.Context, ec *evalCtx) {
	settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
	if err != nil || !settings.Enabled || settings.EarnPerMessage <= 0 {
		return
	}
	go func() {
		bg := context.Background()
		_, err := e.store.ApplyCurrencyDelta(bg, ec.tenantID, ec.evt.Username, ec.evt.Platform,
			settings.EarnPerMessage, "chat message accrual", models.TxEarn)
		if err != nil {
			e.logf("pipeline: currency accrual failed: %v", err)
		}
	}()
}
