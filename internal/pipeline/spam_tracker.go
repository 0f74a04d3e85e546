package pipeline

import (
	"sync"
	"time"
)

// spamTracker keeps a sliding window of recent messages per (tenant,
// platform, username) to back the spam moderation rule: "sliding 30s
// window per username; if ≥5 messages with ≤2 distinct contents → spam".
type spamTracker struct {
	mu     sync.Mutex
	window time.Duration
	byUser map[string][]spamRecord
}

type spamRecord struct {
	at   time.Time
	text string
}

func newSpamTracker(window time.Duration) *spamTracker {
	return &spamTracker{window: window, byUser: make(map[string][]spamRecord)}
}

// Observe records text for key (already arrived, so it's a permanent part
// of the window until it ages out) and reports whether the window now
// looks like spam.
func (s *spamTracker) Observe(key, text string) (isSpam bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.byUser[key], spamRecord{at: now, text: text})
	cutoff := now.Add(-s.window)
	kept := records[:0]
	for _, r := range records {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	s.byUser[key] = kept

	if len(kept) >= 5 {
		distinct := map[string]struct{}{}
		for _, r := range kept {
			distinct[r.text] = struct{}{}
		}
		if len(distinct) <= 2 {
			return true
		}
	}
	return countEmoji(text) > 10
}

// countEmoji counts runes above U+2000, a coarse but adequate proxy for "emoji chars" given the rule is a heuristic, not a
// Unicode-category-exact classifier.
func countEmoji(text string) int {
	n := 0
	for _, r := range text {
		if r > 0x2000 {
			n++
		}
	}
	return n
}
