package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func TestPublishDeliversToLiveSubscriber(t *testing.T) {
	bus := New()
	ch, replay := bus.Topic("t1").Subscribe()
	assert.Empty(t, replay)

	bus.Publish("t1", models.Event{Kind: models.EventNewMessage, TenantID: "t1"})

	select {
	case evt := <-ch:
		assert.Equal(t, models.EventNewMessage, evt.Kind)
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestLateSubscriberReplaysGiveawayEntryAsDurable(t *testing.T) {
	bus := New()
	bus.Publish("t1", models.Event{Kind: models.EventGiveawayEntry, TenantID: "t1"})
	bus.Publish("t1", models.Event{Kind: models.EventNewMessage, TenantID: "t1"})

	_, replay := bus.Topic("t1").Subscribe()
	require.Len(t, replay, 2)
	assert.Equal(t, models.EventGiveawayEntry, replay[0].Kind, "durable events replay before best-effort history")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	topic := bus.Topic("t1")
	ch, _ := topic.Subscribe()
	topic.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestAckClearsDurableBacklog(t *testing.T) {
	bus := New()
	topic := bus.Topic("t1")
	bus.Publish("t1", models.Event{Kind: models.EventGiveawayEntry, TenantID: "t1"})
	topic.AckGiveawayEntries()

	_, replay := topic.Subscribe()
	assert.Empty(t, replay)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New()
	topic := bus.Topic("t1")
	ch, _ := topic.Subscribe()
	_ = ch // never drained

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish("t1", models.Event{Kind: models.EventNewMessage, TenantID: "t1"})
	}
	// Reaching here without deadlock is the assertion; history is still capped.
	assert.LessOrEqual(t, len(topic.history), historyCap)
}
