package pipeline

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

const defaultBannedWordTimeoutSeconds = 300

var wordBoundaryCache sync.Map // map[string]*regexp.Regexp, keyed by lowercased word

// wholeWordRegex returns (and memoizes) a case-insensitive whole-word
// matcher for word. Banned word lists are small and reused across many
// messages, so compiling once per distinct word is worth the cache.
func wholeWordRegex(word string) (*regexp.Regexp, bool) {
	key := strings.ToLower(word)
	if v, ok := wordBoundaryCache.Load(key); ok {
		return v.(*regexp.Regexp), true
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(key) + `\b`)
	if err != nil {
		return nil, false
	}
	wordBoundaryCache.Store(key, re)
	return re, true
}

// stageBannedWords is step 3. A whole-word match against any configured
// banned word times out the author and aborts the pipeline. Returns true
// when the pipeline should stop.
func (e *Engine) stageBannedWords(ctx context.Context, ec *evalCtx) bool {
	for _, word := range ec.cfg.BannedWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		re, ok := wholeWordRegex(word)
		if !ok || !re.MatchString(ec.evt.Text) {
			continue
		}
		e.dispatch(ctx, models.ChatAction{
			Kind:           models.ActionTimeoutUser,
			Platform:       ec.evt.Platform,
			Channel:        ec.evt.Channel,
			Username:       ec.evt.Username,
			TimeoutSeconds: defaultBannedWordTimeoutSeconds,
			Reason:         "banned word",
		})
		ec.terminal = true
		return true
	}
	return false
}
