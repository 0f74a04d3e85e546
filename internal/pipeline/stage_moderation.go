package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

var severityRank = map[models.Severity]int{
	models.SeverityLow:    1,
	models.SeverityMedium: 2,
	models.SeverityHigh:   3,
}

func severityAtLeast(got, threshold models.Severity) bool {
	return severityRank[got] >= severityRank[threshold]
}

// stageModerationChain is step 4: toxic, spam, links, caps, symbols in that
// fixed order. The first enabled rule that fires wins; its action is
// applied and the pipeline aborts. Returns true when the pipeline should
// stop.
func (e *Engine) stageModerationChain(ctx context.Context, ec *evalCtx) bool {
	rules, err := e.store.ListModerationRules(ctx, ec.tenantID)
	if err != nil {
		e.logf("pipeline: list moderation rules failed: %v", err)
		return false
	}
	byType := make(map[models.ModerationRuleType]models.ModerationRule, len(rules))
	for _, r := range rules {
		byType[r.RuleType] = r
	}

	order := []models.ModerationRuleType{
		models.RuleToxic, models.RuleSpam, models.RuleLinks, models.RuleCaps, models.RuleSymbols,
	}
	for _, kind := range order {
		rule, ok := byType[kind]
		if !ok || !rule.Enabled {
			continue
		}
		fired, detail := e.evaluateRule(ctx, ec, rule)
		if !fired {
			continue
		}
		e.applyModerationAction(ctx, ec, rule, detail)
		ec.terminal = true
		return true
	}
	return false
}

func (e *Engine) evaluateRule(ctx context.Context, ec *evalCtx, rule models.ModerationRule) (bool, string) {
	switch rule.RuleType {
	case models.RuleToxic:
		return e.evaluateToxic(ctx, ec, rule)
	case models.RuleSpam:
		return e.evaluateSpam(ec), "spam"
	case models.RuleLinks:
		return e.evaluateLinks(ctx, ec)
	case models.RuleCaps:
		return evaluateCaps(ec.evt.Text), "excessive caps"
	case models.RuleSymbols:
		return evaluateSymbols(ec.evt.Text), "excessive symbols"
	}
	return false, ""
}

func (e *Engine) evaluateToxic(ctx context.Context, ec *evalCtx, rule models.ModerationRule) (bool, string) {
	if e.toxic == nil {
		return false, ""
	}
	sev, ok := e.toxicCache.get(ec.evt.Text)
	if !ok {
		var err error
		sev, err = e.toxic.Classify(ctx, ec.evt.Text)
		if err != nil {
			e.logf("pipeline: toxic classify failed: %v", err)
			return false, ""
		}
		e.toxicCache.put(ec.evt.Text, sev)
	}
	if sev == "" || !severityAtLeast(sev, rule.SeverityThreshold) {
		return false, ""
	}
	return true, fmt.Sprintf("toxic content (%s)", sev)
}

func (e *Engine) evaluateSpam(ec *evalCtx) bool {
	key := ec.tenantID + "|" + string(ec.evt.Platform) + "|" + strings.ToLower(ec.evt.Username)
	return e.spam.Observe(key, ec.evt.Text)
}

func (e *Engine) evaluateLinks(ctx context.Context, ec *evalCtx) (bool, string) {
	urls := extractURLs(ec.evt.Text)
	if len(urls) == 0 {
		return false, ""
	}
	whitelist, err := e.store.ListLinkWhitelist(ctx, ec.tenantID)
	if err != nil {
		e.logf("pipeline: list link whitelist failed: %v", err)
		whitelist = nil
	}
	for _, raw := range urls {
		domain := normalizeDomain(raw)
		if domain == "" {
			continue
		}
		if !domainWhitelisted(domain, whitelist) {
			return true, "link to " + domain
		}
	}
	return false, ""
}

var urlPattern = regexp.MustCompile(`(?i)\b((?:https?://|www\.)[^\s]+)`)

func extractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

func normalizeDomain(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func domainWhitelisted(domain string, whitelist []string) bool {
	for _, entry := range whitelist {
		entry = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(entry), "www."))
		if entry == "" {
			continue
		}
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

func evaluateCaps(text string) bool {
	if len(text) < 10 {
		return false
	}
	var letters, upper int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < 5 {
		return false
	}
	return float64(upper)/float64(letters) > 0.5
}

func evaluateSymbols(text string) bool {
	if text == "" {
		return false
	}
	var nonAlnum int
	runLen, maxRun := 0, 0
	var prevSymbol rune
	for _, r := range text {
		isAlnum := unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r)
		if !isAlnum {
			nonAlnum++
			if r == prevSymbol {
				runLen++
			} else {
				runLen = 1
				prevSymbol = r
			}
			if runLen > maxRun {
				maxRun = runLen
			}
		} else {
			runLen = 0
			prevSymbol = 0
		}
	}
	if maxRun >= 5 {
		return true
	}
	total := len([]rune(text))
	if total == 0 {
		return false
	}
	return float64(nonAlnum)/float64(total) > 0.3
}

func (e *Engine) applyModerationAction(ctx context.Context, ec *evalCtx, rule models.ModerationRule, detail string) {
	switch rule.Action {
	case models.ActionWarn:
		e.dispatch(ctx, models.ChatAction{
			Kind:     models.ActionSend,
			Platform: ec.evt.Platform,
			Channel:  ec.evt.Channel,
			Text:     fmt.Sprintf("@%s please keep it clean (%s).", ec.evt.Username, detail),
		})
	case models.ActionTimeout:
		e.dispatch(ctx, models.ChatAction{
			Kind:           models.ActionTimeoutUser,
			Platform:       ec.evt.Platform,
			Channel:        ec.evt.Channel,
			Username:       ec.evt.Username,
			TimeoutSeconds: rule.TimeoutSeconds,
			Reason:         detail,
		})
	case models.ActionBan:
		e.dispatch(ctx, models.ChatAction{
			Kind:     models.ActionBanUser,
			Platform: ec.evt.Platform,
			Channel:  ec.evt.Channel,
			Username: ec.evt.Username,
			Reason:   detail,
		})
	}
}
