package pipeline

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// triviaQuestion is one outstanding trivia challenge issued to a specific
// viewer; spec §4.2 step 5 matches the next message against it.
type triviaQuestion struct {
	question  string
	answer    string
	points    int64
	expiresAt time.Time
}

// gameState holds the transient per-(tenant,username,platform) game state
// spec §3's GameState entity describes as living outside the Persistence
// Port (trivia/duel progress never survives a restart).
type gameState struct {
	mu     sync.Mutex
	trivia map[string]triviaQuestion
}

func newGameState() *gameState {
	return &gameState{trivia: make(map[string]triviaQuestion)}
}

func gameKey(tenantID, username string, platform models.Platform) string {
	return tenantID + "|" + strings.ToLower(username) + "|" + string(platform)
}

func (g *gameState) setTrivia(key string, q triviaQuestion) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trivia[key] = q
}

func (g *gameState) getTrivia(key string) (triviaQuestion, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	q, ok := g.trivia[key]
	if !ok {
		return triviaQuestion{}, false
	}
	if time.Now().After(q.expiresAt) {
		delete(g.trivia, key)
		return triviaQuestion{}, false
	}
	return q, true
}

func (g *gameState) clearTrivia(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.trivia, key)
}

var triviaBank = []struct {
	question string
	answer   string
}{
	{"What year did the first video game arcade open?", "1971"},
	{"What does CPU stand for?", "central processing unit"},
	{"What is the capital of France?", "paris"},
	{"How many continents are there?", "7"},
	{"What color do you get mixing blue and yellow?", "green"},
}

func randomTrivia() (question, answer string) {
	t := triviaBank[rand.Intn(len(triviaBank))]
	return t.question, t.answer
}

var eightBallAnswers = []string{
	"It is certain.", "Without a doubt.", "You may rely on it.", "Ask again later.",
	"Cannot predict now.", "Don't count on it.", "My reply is no.", "Outlook not so good.",
}

func random8Ball() string {
	return eightBallAnswers[rand.Intn(len(eightBallAnswers))]
}

// rollSlots returns a three-symbol reel result and whether it's a win (all
// three symbols match).
func rollSlots() (reels [3]string, win bool) {
	symbols := []string{"🍒", "🍋", "🔔", "⭐", "💎"}
	for i := range reels {
		reels[i] = symbols[rand.Intn(len(symbols))]
	}
	return reels, reels[0] == reels[1] && reels[1] == reels[2]
}

// rollDuel is a coin-flip duel against the house: 50/50, no wager required.
func rollDuel() bool {
	return rand.Intn(2) == 0
}

// rollRoulette spins a 0-36 European wheel and reports whether it landed red.
// Red/black alternates per the standard layout; 0 is neither (house edge).
var rouletteRed = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true,
	18: true, 19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

func rollRoulette() (pocket int, red bool) {
	pocket = rand.Intn(37)
	return pocket, rouletteRed[pocket]
}

// redeemCatalog is the fixed set of named rewards `!redeem <name>` can spend
// currency on; costs are in the tenant's currency units.
var redeemCatalog = map[string]int64{
	"hug":      50,
	"vip":      500,
	"song":     200,
	"shoutout": 300,
}

func lookupRedeem(name string) (cost int64, ok bool) {
	cost, ok = redeemCatalog[strings.ToLower(name)]
	return cost, ok
}
