// Package youtube implements the platform.Adapter contract over YouTube
// Live Chat, which exposes no persistent streaming connection: chat must be
// polled via liveChatMessages.list on the interval the API itself returns
// (pollingIntervalMillis). This adapter hides that polling loop behind the
// same Session/events-channel contract the websocket-native adapters
// present, per spec §6.1 and §6.4 (rate limit awareness).
package youtube

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform"
)

const minPollInterval = 2 * time.Second

type Adapter struct {
	log *logrus.Entry
}

func New(log *logrus.Entry) *Adapter {
	return &Adapter{log: log}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformYouTube }

// Connect resolves the channel's active broadcast and its liveChatId, then
// starts the poll loop. conn.ConnectionData carries the plaintext access
// token for the session's lifetime (mirrors the twitch adapter).
func (a *Adapter) Connect(ctx context.Context, conn models.PlatformConnection) (platform.Session, error) {
	tok := &oauth2.Token{AccessToken: conn.ConnectionData}
	src := oauth2.StaticTokenSource(tok)
	svc, err := youtube.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("youtube: new service: %w", err)
	}

	liveChatID, err := resolveLiveChatID(ctx, svc)
	if err != nil {
		return nil, err
	}

	sCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		svc:        svc,
		log:        a.log,
		liveChatID: liveChatID,
		channel:    conn.PlatformUsername,
		events:     make(chan models.ChatEvent, 256),
		raidEvents: make(chan models.RaidEvent, 4), // YouTube has no native raid concept
		cancel:     cancel,
	}
	go sess.pollLoop(sCtx)
	return sess, nil
}

func resolveLiveChatID(ctx context.Context, svc *youtube.Service) (string, error) {
	call := svc.LiveBroadcasts.List([]string{"snippet"}).BroadcastStatus("active").Mine(true)
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube: list live broadcasts: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet.LiveChatId == "" {
		return "", fmt.Errorf("youtube: no active broadcast with live chat")
	}
	return resp.Items[0].Snippet.LiveChatId, nil
}

type session struct {
	svc        *youtube.Service
	log        *logrus.Entry
	liveChatID string
	channel    string
	events     chan models.ChatEvent
	raidEvents chan models.RaidEvent
	cancel     context.CancelFunc
	pageToken  string
}

func (s *session) pollLoop(ctx context.Context) {
	defer close(s.events)
	defer close(s.raidEvents)

	interval := 5 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		call := s.svc.LiveChatMessages.List(s.liveChatID, []string{"snippet", "authorDetails"})
		if s.pageToken != "" {
			call = call.PageToken(s.pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			if s.log != nil {
				s.log.WithError(err).Warn("youtube: poll failed")
			}
			continue
		}
		s.pageToken = resp.NextPageToken
		if resp.PollingIntervalMillis > 0 {
			ms := time.Duration(resp.PollingIntervalMillis) * time.Millisecond
			if ms < minPollInterval {
				ms = minPollInterval
			}
			interval = ms
		}
		for _, item := range resp.Items {
			if item.Snippet == nil || item.Snippet.TextMessageDetails == nil || item.AuthorDetails == nil {
				continue
			}
			evt := models.ChatEvent{
				Platform: models.PlatformYouTube,
				Channel:  s.channel,
				Username: item.AuthorDetails.DisplayName,
				Text:     item.Snippet.TextMessageDetails.MessageText,
				Tags: models.ChatTags{
					IsModerator:   item.AuthorDetails.IsChatModerator,
					IsBroadcaster: item.AuthorDetails.IsChatOwner,
					IsSubscriber:  item.AuthorDetails.IsChatSponsor,
					Badges:        map[string]struct{}{},
				},
				ArrivedAt: time.Now(),
			}
			select {
			case s.events <- evt:
			default:
				if s.log != nil {
					s.log.Warn("youtube: inbound event dropped, channel full")
				}
			}
		}
	}
}

func (s *session) Events() <-chan models.ChatEvent     { return s.events }
func (s *session) RaidEvents() <-chan models.RaidEvent { return s.raidEvents }

func (s *session) Send(ctx context.Context, channel, text string) platform.Result {
	msg := &youtube.LiveChatMessage{
		Snippet: &youtube.LiveChatMessageSnippet{
			LiveChatId: s.liveChatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &youtube.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	_, err := s.svc.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do()
	if err != nil {
		return platform.Result{Kind: platform.ResultTransientError, Err: err}
	}
	return platform.Result{Kind: platform.ResultSuccess}
}

// Timeout makes no API call: the adapter has no username-to-channelId
// lookup, which liveChatBans.insert needs, so it always returns a
// ResultTransientError. Ban behaves the same way.
func (s *session) Timeout(ctx context.Context, channel, username string, seconds int, reason string) platform.Result {
	return platform.Result{Kind: platform.ResultTransientError, Err: fmt.Errorf("youtube: timeout requires resolving %q to a channelId, not implemented in this adapter revision", username)}
}

func (s *session) Ban(ctx context.Context, channel, username, reason string) platform.Result {
	return platform.Result{Kind: platform.ResultTransientError, Err: fmt.Errorf("youtube: ban requires resolving %q to a channelId, not implemented in this adapter revision", username)}
}

func (s *session) Close() error {
	s.cancel()
	return nil
}
