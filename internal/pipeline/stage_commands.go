package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/cmdtemplate"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// stageCommandDispatch is step 6: built-in games/currency/shoutout commands
// take priority over tenant-defined custom commands, matching the spec's
// framing of built-ins as reserved names a custom command can never shadow.
func (e *Engine) stageCommandDispatch(ctx context.Context, ec *evalCtx) bool {
	text := strings.TrimSpace(ec.evt.Text)
	if !strings.HasPrefix(text, "!") {
		return false
	}
	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	args := fields[1:]
	if name == "" {
		return false
	}

	switch name {
	case "so", "shoutout":
		return e.cmdShoutout(ctx, ec, args)
	case "8ball":
		return e.cmdEightBall(ctx, ec)
	case "trivia":
		return e.cmdTrivia(ctx, ec)
	case "slots":
		return e.cmdSlots(ctx, ec)
	case "duel":
		return e.cmdDuel(ctx, ec)
	case "roulette":
		return e.cmdRoulette(ctx, ec, args)
	case "balance", "points":
		return e.cmdBalance(ctx, ec)
	case "gamble":
		return e.cmdGamble(ctx, ec, args)
	case "redeem":
		return e.cmdRedeem(ctx, ec, args)
	case "leaderboard", "top":
		return e.cmdLeaderboard(ctx, ec)
	}
	return e.cmdCustom(ctx, ec, name)
}

func (e *Engine) cmdShoutout(ctx context.Context, ec *evalCtx, args []string) bool {
	if len(args) == 0 {
		return true
	}
	target := strings.TrimPrefix(args[0], "@")
	settings, err := e.store.GetShoutoutSettings(ctx, ec.tenantID)
	if err != nil {
		e.logf("pipeline: get shoutout settings failed: %v", err)
		return true
	}
	tmpl := cmdtemplate.Parse(settings.MessageTemplate)
	vars := e.templateVars(ctx, ec, 0)
	vars.User = target
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: tmpl.Render(vars),
	})
	return true
}

func (e *Engine) gameCooldownReady(ctx context.Context, ec *evalCtx, kind models.GameKind) bool {
	settings, err := e.store.GetGameSettings(ctx, ec.tenantID)
	if err != nil {
		e.logf("pipeline: get game settings failed: %v", err)
		return true
	}
	minutes, ok := settings.CooldownMinutes[kind]
	if !ok || minutes <= 0 {
		return true
	}
	key := ec.tenantID + "|" + string(kind) + "|" + strings.ToLower(ec.evt.Username)
	return e.cooldowns.Ready(key, time.Duration(minutes)*time.Minute)
}

func (e *Engine) cmdEightBall(ctx context.Context, ec *evalCtx) bool {
	if !e.gameCooldownReady(ctx, ec, models.GameEightBall) {
		return true
	}
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: fmt.Sprintf("🎱 @%s %s", ec.evt.Username, random8Ball()),
	})
	return true
}

func (e *Engine) cmdTrivia(ctx context.Context, ec *evalCtx) bool {
	if !e.gameCooldownReady(ctx, ec, models.GameTrivia) {
		return true
	}
	question, answer := randomTrivia()
	key := gameKey(ec.tenantID, ec.evt.Username, ec.evt.Platform)
	e.games.setTrivia(key, triviaQuestion{
		question: question, answer: answer, points: 10,
		expiresAt: time.Now().Add(60 * time.Second),
	})
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: fmt.Sprintf("@%s %s (you have 60s to answer)", ec.evt.Username, question),
	})
	return true
}

func (e *Engine) cmdSlots(ctx context.Context, ec *evalCtx) bool {
	if !e.gameCooldownReady(ctx, ec, models.GameSlots) {
		return true
	}
	reels, win := rollSlots()
	msg := fmt.Sprintf("%s %s %s", reels[0], reels[1], reels[2])
	if win {
		settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
		if err == nil && settings.Enabled {
			if _, err := e.store.ApplyCurrencyDelta(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform,
				50, "slots jackpot", models.TxEarn); err != nil {
				e.logf("pipeline: slots payout failed: %v", err)
			}
		}
		msg += fmt.Sprintf(" — jackpot, @%s!", ec.evt.Username)
	} else {
		msg += fmt.Sprintf(" — no luck, @%s.", ec.evt.Username)
	}
	e.dispatch(ctx, models.ChatAction{Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel, Text: msg})
	return true
}

func (e *Engine) cmdDuel(ctx context.Context, ec *evalCtx) bool {
	if !e.gameCooldownReady(ctx, ec, models.GameDuel) {
		return true
	}
	win := rollDuel()
	msg := fmt.Sprintf("@%s draws against the bot...", ec.evt.Username)
	if win {
		settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
		if err == nil && settings.Enabled {
			if _, err := e.store.ApplyCurrencyDelta(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform,
				25, "duel win", models.TxEarn); err != nil {
				e.logf("pipeline: duel payout failed: %v", err)
			}
		}
		msg += " and wins! 🤠"
	} else {
		msg += " and loses. 💀"
	}
	e.dispatch(ctx, models.ChatAction{Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel, Text: msg})
	return true
}

func (e *Engine) cmdRoulette(ctx context.Context, ec *evalCtx, args []string) bool {
	if !e.gameCooldownReady(ctx, ec, models.GameRoulette) {
		return true
	}
	settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
	if err != nil || !settings.Enabled {
		return true
	}
	if len(args) == 0 {
		return true
	}
	bet, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || bet < settings.GambleMinBet || bet > settings.GambleMaxBet {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: fmt.Sprintf("@%s bet must be between %d and %d.", ec.evt.Username, settings.GambleMinBet, settings.GambleMaxBet),
		})
		return true
	}
	bal, err := e.store.GetUserBalance(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform)
	if err != nil || bal.Balance < bet {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: fmt.Sprintf("@%s you don't have enough %s.", ec.evt.Username, settings.CurrencyName),
		})
		return true
	}
	pocket, red := rollRoulette()
	delta := -bet
	if red {
		delta = bet
	}
	newBal, err := e.store.ApplyCurrencyDelta(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform, delta, "roulette", models.TxGamble)
	if err != nil {
		e.logf("pipeline: roulette delta failed: %v", err)
		return true
	}
	color := "black"
	outcome := "lost"
	if pocket == 0 {
		color = "green"
	}
	if red {
		color = "red"
		outcome = "won"
	}
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: fmt.Sprintf("🎡 %d %s — @%s %s %d %s! New balance: %d.", pocket, color, ec.evt.Username, outcome, bet, settings.CurrencyName, newBal.Balance),
	})
	return true
}

func (e *Engine) cmdRedeem(ctx context.Context, ec *evalCtx, args []string) bool {
	settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
	if err != nil || !settings.Enabled {
		return true
	}
	if len(args) == 0 {
		return true
	}
	name := strings.Join(args, " ")
	cost, ok := lookupRedeem(name)
	if !ok {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: fmt.Sprintf("@%s no reward named %q.", ec.evt.Username, name),
		})
		return true
	}
	bal, err := e.store.GetUserBalance(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform)
	if err != nil || bal.Balance < cost {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: fmt.Sprintf("@%s you don't have enough %s for %q (costs %d).", ec.evt.Username, settings.CurrencyName, name, cost),
		})
		return true
	}
	newBal, err := e.store.ApplyCurrencyDelta(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform, -cost, "redeem: "+name, models.TxRedeem)
	if err != nil {
		e.logf("pipeline: redeem delta failed: %v", err)
		return true
	}
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: fmt.Sprintf("@%s redeemed %q for %d %s! New balance: %d.", ec.evt.Username, name, cost, settings.CurrencyName, newBal.Balance),
	})
	return true
}

func (e *Engine) cmdBalance(ctx context.Context, ec *evalCtx) bool {
	settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
	if err != nil || !settings.Enabled {
		return true
	}
	bal, err := e.store.GetUserBalance(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform)
	if err != nil {
		e.logf("pipeline: get balance failed: %v", err)
		return true
	}
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: fmt.Sprintf("@%s has %d %s.", ec.evt.Username, bal.Balance, settings.CurrencyName),
	})
	return true
}

func (e *Engine) cmdGamble(ctx context.Context, ec *evalCtx, args []string) bool {
	settings, err := e.store.GetCurrencySettings(ctx, ec.tenantID)
	if err != nil || !settings.Enabled {
		return true
	}
	if len(args) == 0 {
		return true
	}
	bet, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || bet < settings.GambleMinBet || bet > settings.GambleMaxBet {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: fmt.Sprintf("@%s bet must be between %d and %d.", ec.evt.Username, settings.GambleMinBet, settings.GambleMaxBet),
		})
		return true
	}
	bal, err := e.store.GetUserBalance(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform)
	if err != nil || bal.Balance < bet {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: fmt.Sprintf("@%s you don't have enough %s.", ec.evt.Username, settings.CurrencyName),
		})
		return true
	}
	_, win := rollSlots()
	delta := -bet
	if win {
		delta = bet
	}
	newBal, err := e.store.ApplyCurrencyDelta(ctx, ec.tenantID, ec.evt.Username, ec.evt.Platform, delta, "gamble", models.TxGamble)
	if err != nil {
		e.logf("pipeline: gamble delta failed: %v", err)
		return true
	}
	outcome := "lost"
	if win {
		outcome = "won"
	}
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: fmt.Sprintf("@%s %s %d %s! New balance: %d.", ec.evt.Username, outcome, bet, settings.CurrencyName, newBal.Balance),
	})
	return true
}

func (e *Engine) cmdLeaderboard(ctx context.Context, ec *evalCtx) bool {
	top, err := e.store.ListLeaderboard(ctx, ec.tenantID, ec.evt.Platform, 5)
	if err != nil {
		e.logf("pipeline: leaderboard fetch failed: %v", err)
		return true
	}
	if len(top) == 0 {
		e.dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
			Text: "No leaderboard entries yet.",
		})
		return true
	}
	var b strings.Builder
	b.WriteString("Top chatters: ")
	for i, u := range top {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", u.Username, u.Balance)
	}
	e.dispatch(ctx, models.ChatAction{Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel, Text: b.String()})
	return true
}

func (e *Engine) cmdCustom(ctx context.Context, ec *evalCtx, name string) bool {
	cmd, err := e.store.GetCustomCommand(ctx, ec.tenantID, name)
	if err != nil {
		return false
	}
	if !cmd.IsActive {
		return false
	}
	if !commandPermissionMet(cmd.PermissionLevel, ec.evt.Tags) {
		return true
	}
	key := ec.tenantID + "|cmd|" + cmd.ID
	if cmd.CooldownSeconds > 0 && !e.cooldowns.Ready(key, time.Duration(cmd.CooldownSeconds)*time.Second) {
		return true
	}
	count, err := e.store.IncrementCommandUsage(ctx, cmd.ID)
	if err != nil {
		e.logf("pipeline: increment command usage failed: %v", err)
		count = cmd.UsageCount + 1
	}
	tmpl := cmdtemplate.Parse(cmd.Response)
	e.dispatch(ctx, models.ChatAction{
		Kind: models.ActionSend, Platform: ec.evt.Platform, Channel: ec.evt.Channel,
		Text: tmpl.Render(e.templateVars(ctx, ec, count)),
	})
	return true
}

func commandPermissionMet(level models.PermissionLevel, tags models.ChatTags) bool {
	switch level {
	case models.PermissionBroadcaster:
		return tags.IsBroadcaster
	case models.PermissionModerator:
		return tags.IsBroadcaster || tags.IsModerator
	case models.PermissionSubscriber:
		return tags.IsBroadcaster || tags.IsModerator || tags.IsSubscriber
	default:
		return true
	}
}
