package kick

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func newTestSession() *session {
	return &session{
		channel:    "bobsstream",
		chatroomID: "12345",
		events:     make(chan models.ChatEvent, 8),
		raidEvents: make(chan models.RaidEvent, 8),
	}
}

func TestHandleEnvelopeParsesChatMessage(t *testing.T) {
	s := newTestSession()
	data := `{"content":"gg wp","sender":{"username":"alice","identity":{"badges":[{"type":"moderator"}]}}}`
	env := pusherEnvelope{Event: `App\Events\ChatMessageEvent`, Data: data}

	s.handleEnvelope(env)

	select {
	case evt := <-s.events:
		assert.Equal(t, "alice", evt.Username)
		assert.Equal(t, "gg wp", evt.Text)
		assert.True(t, evt.Tags.IsModerator)
	default:
		t.Fatal("expected one chat event")
	}
}

func TestHandleEnvelopeParsesRaid(t *testing.T) {
	s := newTestSession()
	data := `{"from_channel_username":"raidboss","viewer_count":99}`
	env := pusherEnvelope{Event: `App\Events\RaidEvent`, Data: data}

	s.handleEnvelope(env)

	select {
	case evt := <-s.raidEvents:
		assert.Equal(t, "raidboss", evt.Username)
		assert.Equal(t, 99, evt.Viewers)
	default:
		t.Fatal("expected one raid event")
	}
}

func TestHandleEnvelopeIgnoresUnknownEvent(t *testing.T) {
	s := newTestSession()
	s.handleEnvelope(pusherEnvelope{Event: "pusher:connection_established", Data: "{}"})
	assert.Len(t, s.events, 0)
	assert.Len(t, s.raidEvents, 0)
}
