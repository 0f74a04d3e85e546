// Package config handles the loading and parsing of application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PlatformOAuth holds the client credentials for one chat platform's OAuth app.
type PlatformOAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// AppConfig holds all configuration settings for the application.
type AppConfig struct {
	// --- Core Settings ---
	DatabaseURL   string // Postgres DSN for the Persistence Port.
	ServerAddr    string // Address for the HTTP control plane to listen on (e.g., ":8080").
	SessionSecret string // >=32 bytes, used to derive the Crypto Box key and sign overlay tokens.

	// --- Control plane auth ---
	ServiceAuthToken string // Shared bearer secret for the HTTP control plane.

	// --- Per-platform OAuth ---
	Twitch  PlatformOAuth
	YouTube PlatformOAuth
	Kick    PlatformOAuth
	Spotify PlatformOAuth

	// --- AI fact generation ---
	LocalAIOnly  bool   // When true, never call OPENAI_API_KEY even if set.
	OllamaURL    string // Local Ollama endpoint, used when LocalAIOnly or no OpenAI key.
	OpenAIAPIKey string

	// --- Redis (optional, shared quota/cache backing) ---
	RedisURL string

	// --- Application Logic ---
	MigrationsPath      string // Path to the database migration files.
	CORSAllowedOrigins  string // Comma-separated list of allowed CORS origins.
	SettingsRedirectURL string // Where the OAuth callback 303s to once a connection completes.

	// --- Timeouts and Intervals (spec §5) ---
	ExternalCallTimeout time.Duration // default 10s timeout for platform/API calls.
	HealthCheckTimeout  time.Duration // 5s health checks.
	OAuthExchangeTimeout time.Duration // 15s OAuth code/refresh exchanges.
	WorkerStopGrace     time.Duration // 10s grace window before a worker's tasks are forcibly abandoned.
	HeartbeatInterval   time.Duration // 30s heartbeat ticker.
	ViewerSnapshotEvery time.Duration // 5m viewer-snapshot ticker.
	CacheSweepInterval  time.Duration // 60s TTL sweep for process-local caches.
	ExpiryScanInterval  time.Duration // how often the Token Manager runs its expiry scan.

	ShutdownTimeout    time.Duration
	ShutdownFinalSleep time.Duration
	CORSMaxAge         int

	// --- Admin notifications (optional; no-op when unset) ---
	TelegramBotToken string
	TelegramChatID   string

	// --- Pipeline/queue sizing (breaker and quota tuning are fixed in code, not configurable here) ---
	InboundChannelBufferSize int // per-platform bounded ingestion channel, spec §5 (default 1024).
	OutboundClaimBatchSize   int // max items claimed per drainer pass, spec §5 (default 100).
}

// Load reads environment variables and populates the AppConfig struct.
// It sets sensible defaults for non-critical values.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		SessionSecret: getEnv("SESSION_SECRET", ""),

		ServiceAuthToken: getEnv("SERVICE_AUTH_TOKEN", ""),

		Twitch: PlatformOAuth{
			ClientID:     getEnv("TWITCH_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITCH_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TWITCH_REDIRECT_URI", ""),
		},
		YouTube: PlatformOAuth{
			ClientID:     getEnv("YOUTUBE_CLIENT_ID", ""),
			ClientSecret: getEnv("YOUTUBE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("YOUTUBE_REDIRECT_URI", ""),
		},
		Kick: PlatformOAuth{
			ClientID:     getEnv("KICK_CLIENT_ID", ""),
			ClientSecret: getEnv("KICK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("KICK_REDIRECT_URI", ""),
		},
		Spotify: PlatformOAuth{
			ClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
			ClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", ""),
		},

		LocalAIOnly:  getEnvAsBool("LOCAL_AI_ONLY", false),
		OllamaURL:    getEnv("OLLAMA_URL", "http://localhost:11434"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		MigrationsPath:      getEnv("MIGRATIONS_PATH", "migrations"),
		CORSAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"),
		SettingsRedirectURL: getEnv("OAUTH_SETTINGS_REDIRECT_URL", "/settings"),

		ExternalCallTimeout:  getEnvAsDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second),
		HealthCheckTimeout:   getEnvAsDuration("HEALTHCHECK_TIMEOUT", 5*time.Second),
		OAuthExchangeTimeout: getEnvAsDuration("OAUTH_EXCHANGE_TIMEOUT", 15*time.Second),
		WorkerStopGrace:      getEnvAsDuration("WORKER_STOP_GRACE", 10*time.Second),
		HeartbeatInterval:    getEnvAsDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		ViewerSnapshotEvery:  getEnvAsDuration("VIEWER_SNAPSHOT_INTERVAL", 5*time.Minute),
		CacheSweepInterval:   getEnvAsDuration("CACHE_SWEEP_INTERVAL", 60*time.Second),
		ExpiryScanInterval:   getEnvAsDuration("TOKEN_EXPIRY_SCAN_INTERVAL", 15*time.Minute),

		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ShutdownFinalSleep: getEnvAsDuration("SHUTDOWN_FINAL_SLEEP", 5*time.Second),
		CORSMaxAge:         getEnvAsInt("CORS_MAX_AGE", 300),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		InboundChannelBufferSize: getEnvAsInt("INBOUND_CHANNEL_BUFFER_SIZE", 1024),
		OutboundClaimBatchSize:   getEnvAsInt("OUTBOUND_CLAIM_BATCH_SIZE", 100),
	}

	if err := validateCriticalConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateCriticalConfig checks that essential configuration values are set.
func validateCriticalConfig(cfg *AppConfig) error {
	criticalVars := map[string]string{
		"DATABASE_URL":    cfg.DatabaseURL,
		"SESSION_SECRET":  cfg.SessionSecret,
	}
	var missing []string
	for name, value := range criticalVars {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(cfg.SessionSecret) > 0 && len(cfg.SessionSecret) < 32 {
		missing = append(missing, "SESSION_SECRET (must be >= 32 bytes)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or invalid critical environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// --- Helper Functions for robust environment variable loading ---

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an integer environment variable or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves a boolean environment variable or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration retrieves a time.Duration environment variable or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}
