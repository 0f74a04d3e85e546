// Package main is the entry point for the chat bot platform's core runtime:
// the HTTP control plane plus the process-wide Bot Worker supervisor.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/ai"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/breaker"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/config"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/cryptobox"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/eventbus"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/httpapi"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform/kick"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform/spotify"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform/twitch"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform/youtube"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/notify"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/quota"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/queue"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/stats"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/supervisor"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/tokenmanager"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("critical error loading configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	root := logrus.NewEntry(logger)

	// --- Dependency Injection ---
	db, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("critical error! failed to connect to the database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatalf("critical error during database migration: %v", err)
	}

	box, err := cryptobox.New(cfg.SessionSecret)
	if err != nil {
		log.Fatalf("critical error! failed to create crypto box: %v", err)
	}

	var quotaStore quota.Store
	if cfg.RedisURL != "" {
		redisClient, rerr := newRedisClient(cfg.RedisURL)
		if rerr != nil {
			log.Fatalf("critical error! failed to connect to redis: %v", rerr)
		}
		quotaStore = quota.NewRedisStore(redisClient, "quota")
	} else {
		quotaStore = quota.NewMemoryStore()
	}
	quotaTracker := quota.New(quotaStore, quota.DefaultLimits(), root.WithField("component", "quota"))

	brk := breaker.New(root.WithField("component", "breaker"), nil)

	notifier := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID, root.WithField("component", "notify"))

	tokens := tokenmanager.New(db, box, oauthConfigs(cfg), brk.Fns(), notifier, root.WithField("component", "tokenmanager"), cfg.OAuthExchangeTimeout)

	q := queue.New(db, brk, quotaTracker, root.WithField("component", "queue"), cfg.OutboundClaimBatchSize)

	adapters := map[models.Platform]platform.Adapter{
		models.PlatformTwitch:  twitch.New(root.WithField("platform", "twitch")),
		models.PlatformYouTube: youtube.New(root.WithField("platform", "youtube")),
		models.PlatformKick:    kick.New(root.WithField("platform", "kick")),
		models.PlatformSpotify: spotify.New(root.WithField("platform", "spotify")),
	}

	facts := ai.New(cfg.LocalAIOnly, cfg.OllamaURL, cfg.OpenAIAPIKey)
	statsAgg := stats.New(db, root.WithField("component", "stats"))
	bus := eventbus.New()

	factory := func(tenantID string) worker.Deps {
		return worker.Deps{
			Store:    db,
			Breaker:  brk,
			Quota:    quotaTracker,
			Tokens:   tokens,
			Queue:    q,
			Bus:      bus,
			Stats:    statsAgg,
			Facts:    facts,
			Toxic:    nil, // no external moderation classifier is wired in this deployment.
			Adapters: adapters,
			Config:   cfg,
			Log:      root.WithField("component", "worker"),
		}
	}
	sup := supervisor.New(factory, bus, root.WithField("component", "supervisor"))

	httpSrv := httpapi.New(sup, tokens, db, httpapi.Config{
		ServiceAuthToken:    cfg.ServiceAuthToken,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		CORSMaxAge:          cfg.CORSMaxAge,
		SettingsRedirectURL: cfg.SettingsRedirectURL,
	}, root.WithField("component", "httpapi"))

	// --- Background Goroutines ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go startExpiryScan(ctx, tokens, cfg.ExpiryScanInterval, root)
	go startCacheSweep(ctx, sup, cfg.CacheSweepInterval)
	resumeActiveTenants(ctx, db, sup, root)

	// --- Router and Server Setup ---
	srv := &http.Server{Addr: cfg.ServerAddr, Handler: httpSrv.Router()}

	go func() {
		root.Infof("server is ready for connections and listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed with error: %v", err)
		}
	}()

	<-ctx.Done()

	root.Info("shutdown signal received, starting graceful shutdown")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("error during graceful server shutdown: %v", err)
	}

	for _, tenantID := range sup.Tenants() {
		if err := sup.Stop(shutdownCtx, tenantID); err != nil {
			root.WithField("tenant_id", tenantID).WithError(err).Warn("failed to stop worker during shutdown")
		}
	}

	root.Infof("server stopped, background tasks may continue for up to %v", cfg.ShutdownFinalSleep)
	time.Sleep(cfg.ShutdownFinalSleep)
	root.Info("exiting")
}

// oauthConfigs builds the per-platform oauth2.Config the Token Manager
// exchanges authorization codes and refresh tokens against.
func oauthConfigs(cfg *config.AppConfig) map[models.Platform]*oauth2.Config {
	return map[models.Platform]*oauth2.Config{
		models.PlatformTwitch: {
			ClientID:     cfg.Twitch.ClientID,
			ClientSecret: cfg.Twitch.ClientSecret,
			RedirectURL:  cfg.Twitch.RedirectURI,
			Scopes:       []string{"chat:read", "chat:edit", "channel:moderate", "moderator:manage:banned_users"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://id.twitch.tv/oauth2/authorize",
				TokenURL: "https://id.twitch.tv/oauth2/token",
			},
		},
		models.PlatformYouTube: {
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			RedirectURL:  cfg.YouTube.RedirectURI,
			Scopes:       []string{"https://www.googleapis.com/auth/youtube", "https://www.googleapis.com/auth/youtube.force-ssl"},
			Endpoint:     google.Endpoint,
		},
		models.PlatformKick: {
			ClientID:     cfg.Kick.ClientID,
			ClientSecret: cfg.Kick.ClientSecret,
			RedirectURL:  cfg.Kick.RedirectURI,
			Scopes:       []string{"chat:write", "channel:read", "events:subscribe"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://id.kick.com/oauth/authorize",
				TokenURL: "https://id.kick.com/oauth/token",
			},
		},
		models.PlatformSpotify: {
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RedirectURL:  cfg.Spotify.RedirectURI,
			Scopes:       []string{"user-read-currently-playing", "user-read-playback-state"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.spotify.com/authorize",
				TokenURL: "https://accounts.spotify.com/api/token",
			},
		},
	}
}

// resumeActiveTenants restarts every tenant whose bot config was left
// active across a restart, so an operator doesn't have to replay
// /bot/start calls by hand after a deploy.
func resumeActiveTenants(ctx context.Context, db store.Port, sup *supervisor.Supervisor, log *logrus.Entry) {
	conns, err := db.ListActiveConnections(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list active connections for tenant resume")
		return
	}
	seen := make(map[string]bool)
	for _, c := range conns {
		if seen[c.TenantID] {
			continue
		}
		seen[c.TenantID] = true

		botCfg, err := db.GetBotConfig(ctx, c.TenantID)
		if err != nil || !botCfg.IsActive {
			continue
		}
		if _, err := sup.Start(ctx, c.TenantID); err != nil {
			log.WithField("tenant_id", c.TenantID).WithError(err).Warn("failed to resume tenant on startup")
		}
	}
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func startExpiryScan(ctx context.Context, tokens *tokenmanager.Manager, interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := tokens.ExpiryScan(ctx); err != nil {
				log.WithError(err).Warn("token expiry scan failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// startCacheSweep evicts expired entries from every running tenant's
// policy-pipeline caches (spec: process-local caches carry TTL sweeps).
func startCacheSweep(ctx context.Context, sup *supervisor.Supervisor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			for _, tenantID := range sup.Tenants() {
				if wk, ok := sup.Worker(tenantID); ok {
					wk.SweepCaches(now)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
