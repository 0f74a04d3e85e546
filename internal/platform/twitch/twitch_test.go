package twitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIRCLinePrivmsgWithTags(t *testing.T) {
	line := `@badges=moderator/1,subscriber/12;mod=1;subscriber=1 :alice!alice@alice.tmi.twitch.tv PRIVMSG #bobsstream :hello world`
	msg := parseIRCLine(line)

	assert.Equal(t, "PRIVMSG", msg.command)
	assert.Equal(t, "alice", msg.nick())
	assert.Equal(t, []string{"#bobsstream", "hello world"}, msg.params)
	assert.Equal(t, "1", msg.tags["mod"])
}

func TestTagsToChatTagsPromotesBadges(t *testing.T) {
	ct := tagsToChatTags(map[string]string{
		"badges":     "broadcaster/1,subscriber/6",
		"subscriber": "1",
	})
	assert.True(t, ct.IsBroadcaster)
	assert.True(t, ct.IsSubscriber)
	_, hasBroadcaster := ct.Badges["broadcaster"]
	assert.True(t, hasBroadcaster)
}

func TestParseIRCLinePing(t *testing.T) {
	msg := parseIRCLine("PING :tmi.twitch.tv")
	assert.Equal(t, "PING", msg.command)
	assert.Equal(t, []string{"tmi.twitch.tv"}, msg.params)
}

func TestParseIRCLineUsernoticeRaid(t *testing.T) {
	line := `@msg-id=raid;msg-param-displayName=RaidBoss;msg-param-viewerCount=42 :tmi.twitch.tv USERNOTICE #bobsstream`
	msg := parseIRCLine(line)
	assert.Equal(t, "USERNOTICE", msg.command)
	assert.Equal(t, "raid", msg.tags["msg-id"])
	assert.Equal(t, "42", msg.tags["msg-param-viewerCount"])
}
