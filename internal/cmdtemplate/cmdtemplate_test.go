package cmdtemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderKnownVars(t *testing.T) {
	tmpl := Parse("Hi {user}, welcome to {channel}! Used {count} times at {time}. Uptime: {uptime}")
	out := tmpl.Render(Vars{User: "alice", Channel: "bobsstream", Count: 7, Time: "3:04 PM", Uptime: "1h 2m"})
	assert.Equal(t, "Hi alice, welcome to bobsstream! Used 7 times at 3:04 PM. Uptime: 1h 2m", out)
}

func TestRenderCaseInsensitiveVars(t *testing.T) {
	tmpl := Parse("{USER} {User}")
	out := tmpl.Render(Vars{User: "alice"})
	assert.Equal(t, "alice alice", out)
}

func TestUnknownTokenPreservedVerbatim(t *testing.T) {
	tmpl := Parse("roll a {dice} for {user}")
	out := tmpl.Render(Vars{User: "bob"})
	assert.Equal(t, "roll a {dice} for bob", out)
}

func TestMalformedRandomRangePreservedVerbatim(t *testing.T) {
	tmpl := Parse("score: {random:abc-def}")
	out := tmpl.Render(Vars{})
	assert.Equal(t, "score: {random:abc-def}", out)
}

func TestRandomRangeWithinBounds(t *testing.T) {
	tmpl := Parse("{random:2-4}")
	for i := 0; i < 200; i++ {
		out := tmpl.Render(Vars{})
		assert.Contains(t, []string{"2", "3", "4"}, out)
	}
}

func TestUnterminatedTokenIsLiteral(t *testing.T) {
	tmpl := Parse("hello {user")
	out := tmpl.Render(Vars{User: "alice"})
	assert.Equal(t, "hello {user", out)
}
