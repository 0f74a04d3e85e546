package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func TestDuelCooldownGatesRepeatedUse(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))

	ctx := context.Background()
	evt := baseEvent("!duel")
	require.NoError(t, eng.Process(ctx, "t1", evt))
	assert.Equal(t, 1, ob.count())

	require.NoError(t, eng.Process(ctx, "t1", evt))
	assert.Equal(t, 1, ob.count(), "second duel within the cooldown window should be suppressed")
}

func TestEightBallUsesOwnCooldownBucketNotDuels(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))

	ctx := context.Background()
	require.NoError(t, eng.Process(ctx, "t1", baseEvent("!8ball will it rain?")))
	assert.Equal(t, 1, ob.count())

	// A duel right after should not be blocked by the 8ball cooldown bucket.
	require.NoError(t, eng.Process(ctx, "t1", baseEvent("!duel")))
	assert.Equal(t, 2, ob.count(), "duel and 8ball must use independent cooldown keys")
}

func TestRouletteRejectsOutOfRangeBet(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	require.NoError(t, mem.SaveCurrencySettings(context.Background(), models.CurrencySettings{
		TenantID: "t1", Enabled: true, CurrencyName: "coins", GambleMinBet: 10, GambleMaxBet: 100,
	}))

	require.NoError(t, eng.Process(context.Background(), "t1", baseEvent("!roulette 5000")))
	action, ok := ob.last()
	require.True(t, ok)
	assert.Contains(t, action.Text, "bet must be between")
}

func TestRouletteInsufficientBalance(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	require.NoError(t, mem.SaveCurrencySettings(context.Background(), models.CurrencySettings{
		TenantID: "t1", Enabled: true, CurrencyName: "coins", GambleMinBet: 10, GambleMaxBet: 1000,
	}))

	require.NoError(t, eng.Process(context.Background(), "t1", baseEvent("!roulette 50")))
	action, ok := ob.last()
	require.True(t, ok)
	assert.Contains(t, action.Text, "don't have enough")
}

func TestRedeemUnknownRewardName(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	require.NoError(t, mem.SaveCurrencySettings(context.Background(), models.CurrencySettings{
		TenantID: "t1", Enabled: true, CurrencyName: "coins",
	}))

	require.NoError(t, eng.Process(context.Background(), "t1", baseEvent("!redeem not-a-real-reward")))
	action, ok := ob.last()
	require.True(t, ok)
	assert.Contains(t, action.Text, "no reward named")
}

func TestRedeemInsufficientBalance(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	require.NoError(t, mem.SaveCurrencySettings(context.Background(), models.CurrencySettings{
		TenantID: "t1", Enabled: true, CurrencyName: "coins",
	}))

	require.NoError(t, eng.Process(context.Background(), "t1", baseEvent("!redeem hug")))
	action, ok := ob.last()
	require.True(t, ok)
	assert.Contains(t, action.Text, "don't have enough")
}

func TestRedeemSuccessDeductsBalance(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	require.NoError(t, mem.SaveCurrencySettings(context.Background(), models.CurrencySettings{
		TenantID: "t1", Enabled: true, CurrencyName: "coins",
	}))
	ctx := context.Background()
	_, err := mem.ApplyCurrencyDelta(ctx, "t1", "viewer1", models.PlatformTwitch, 100, "seed", models.TxAdjust)
	require.NoError(t, err)

	require.NoError(t, eng.Process(ctx, "t1", baseEvent("!redeem hug")))
	action, ok := ob.last()
	require.True(t, ok)
	assert.Contains(t, action.Text, "redeemed")

	bal, err := mem.GetUserBalance(ctx, "t1", "viewer1", models.PlatformTwitch)
	require.NoError(t, err)
	assert.EqualValues(t, 50, bal.Balance)
}
