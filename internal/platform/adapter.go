// Package platform defines the network contract every chat platform
// connector implements (spec §6.1), plus the shared Result/ChatTags
// translation types.
package platform

import (
	"context"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// ResultKind classifies the outcome of an outbound adapter call.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultThrottled
	ResultAuthError
	ResultTransientError
)

// Result is the outcome of Session.send/timeout/ban.
type Result struct {
	Kind       ResultKind
	RetryAfter int // seconds, only meaningful when Kind == ResultThrottled
	Err        error
}

// Adapter connects a tenant's stored credentials to a live chat session.
type Adapter interface {
	Platform() models.Platform
	Connect(ctx context.Context, conn models.PlatformConnection) (Session, error)
}

// Session is one live connection to a platform's chat for one channel.
type Session interface {
	// Events returns the channel of normalized inbound chat events. The
	// adapter owns the channel and closes it on Close().
	Events() <-chan models.ChatEvent
	// RaidEvents returns the channel of normalized incoming-raid
	// notifications.
	RaidEvents() <-chan models.RaidEvent
	Send(ctx context.Context, channel, text string) Result
	Timeout(ctx context.Context, channel, username string, seconds int, reason string) Result
	Ban(ctx context.Context, channel, username, reason string) Result
	Close() error
}

// ViewerCounter is an optional capability a Session may implement when its
// platform exposes public stream metadata (spec §4.2.3's viewer-snapshot
// task: "query the platform's public stream metadata"). The Bot Worker
// type-asserts for it and skips the snapshot when a session doesn't.
type ViewerCounter interface {
	ViewerCount(ctx context.Context, channel string) (int, error)
}
