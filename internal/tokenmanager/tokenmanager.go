// Package tokenmanager implements the OAuth / Token Lifecycle Manager from
// spec §4.3: authorization-code + PKCE exchange, refresh, rotation history,
// expiry alerts, and 401/429 reaction.
//
// Grounded on the teacher's internal/auth package (constructor validation,
// token-shape conventions) adapted from session-JWT issuance to OAuth2
// code/refresh grants, and on its transactional database pattern for the
// atomic OAuthSession consume. The design notes' cyclic-dependency break is
// implemented literally: this package only ever receives a breaker.RecordFns
// value, never a *breaker.Breaker.
package tokenmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/breaker"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/cryptobox"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

// Notifier pushes operator-facing alerts; internal/notify implements it.
// Optional: a no-op Notifier is fine when no sink is configured.
type Notifier interface {
	NotifyTokenAlert(ctx context.Context, alert models.TokenExpiryAlert)
}

type noopNotifier struct{}

func (noopNotifier) NotifyTokenAlert(context.Context, models.TokenExpiryAlert) {}

const (
	oauthSessionTTL    = 10 * time.Minute
	refreshLeadWindow  = 5 * time.Minute
	expiredThreshold   = 0
	oneHourThreshold   = time.Hour
	oneDayThreshold    = 24 * time.Hour
)

// Manager owns OAuth exchange and the token refresh lifecycle for every
// platform connection in the system.
type Manager struct {
	store    store.Port
	box      *cryptobox.Box
	configs  map[models.Platform]*oauth2.Config
	fns      breaker.RecordFns
	notifier Notifier
	log      *logrus.Entry
	exchangeTimeout time.Duration
}

// New builds a Manager. fns must be the function-value bundle from a
// breaker.Breaker (never the breaker itself, per the design notes).
func New(st store.Port, box *cryptobox.Box, configs map[models.Platform]*oauth2.Config, fns breaker.RecordFns, notifier Notifier, log *logrus.Entry, exchangeTimeout time.Duration) *Manager {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if exchangeTimeout <= 0 {
		exchangeTimeout = 15 * time.Second
	}
	return &Manager{store: st, box: box, configs: configs, fns: fns, notifier: notifier, log: log, exchangeTimeout: exchangeTimeout}
}

// pkcePair is the authorization-code PKCE challenge/verifier pair.
type pkcePair struct {
	verifier  string
	challenge string
}

func newPKCEPair() (pkcePair, error) {
	raw := make([]byte, 64) // generates a 86-char base64url verifier, within [43,128]
	if _, err := rand.Read(raw); err != nil {
		return pkcePair{}, fmt.Errorf("tokenmanager: pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return pkcePair{verifier: verifier, challenge: challenge}, nil
}

// BeginAuth starts the OAuth flow: generates state + PKCE pair, persists an
// OAuthSession with a 10-minute TTL, and returns the provider's authorize
// URL with S256 PKCE params attached.
func (m *Manager) BeginAuth(ctx context.Context, tenantID string, platform models.Platform, ipAddress string, scopes []string) (string, error) {
	cfg, ok := m.configs[platform]
	if !ok {
		return "", fmt.Errorf("tokenmanager: %w: no oauth config for platform %s", apperrors.ErrConfigInvalid, platform)
	}

	stateRaw := make([]byte, 32) // 256 bits of entropy, clears the >=128-bit state requirement
	if _, err := rand.Read(stateRaw); err != nil {
		return "", fmt.Errorf("tokenmanager: oauth state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(stateRaw)
	pair, err := newPKCEPair()
	if err != nil {
		return "", err
	}

	if err := m.store.CreateOAuthSession(ctx, models.OAuthSession{
		State:        state,
		TenantID:     tenantID,
		Platform:     platform,
		CodeVerifier: pair.verifier,
		ExpiresAt:    time.Now().Add(oauthSessionTTL),
		IPAddress:    ipAddress,
	}); err != nil {
		return "", fmt.Errorf("tokenmanager: persist oauth session: %w", err)
	}

	authCfg := *cfg
	if len(scopes) > 0 {
		authCfg.Scopes = scopes
	}
	url := authCfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pair.challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return url, nil
}

// CompleteAuth atomically consumes the OAuthSession by state (refusing
// replay), exchanges the code for tokens, encrypts them at rest, and
// upserts the PlatformConnection.
func (m *Manager) CompleteAuth(ctx context.Context, state, code string) (models.PlatformConnection, error) {
	sess, err := m.store.ConsumeOAuthSession(ctx, state)
	if err != nil {
		return models.PlatformConnection{}, err
	}

	cfg, ok := m.configs[sess.Platform]
	if !ok {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: %w: no oauth config for platform %s", apperrors.ErrConfigInvalid, sess.Platform)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, m.exchangeTimeout)
	defer cancel()

	token, err := cfg.Exchange(exchangeCtx, code,
		oauth2.SetAuthURLParam("code_verifier", sess.CodeVerifier),
	)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: %w: code exchange: %v", apperrors.ErrTransient, err)
	}

	accessCipher, err := m.box.Encrypt(token.AccessToken)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: encrypt access token: %w", err)
	}
	refreshCipher, err := m.box.Encrypt(token.RefreshToken)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: encrypt refresh token: %w", err)
	}

	now := time.Now()
	conn := models.PlatformConnection{
		TenantID:           sess.TenantID,
		Platform:           sess.Platform,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiresAt:     token.Expiry,
		Connected:          true,
		LastConnectedAt:    &now,
	}
	saved, err := m.store.UpsertPlatformConnection(ctx, conn)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: upsert connection: %w", err)
	}

	_ = m.store.RecordTokenRotation(ctx, models.TokenRotationHistory{
		TenantID: sess.TenantID, Platform: sess.Platform, RotationType: models.RotationScheduled,
		NewExpiresAt: token.Expiry, Success: true,
	})
	return saved, nil
}

// EnsureFreshToken returns a decrypted access token, refreshing first if
// the connection is within the 5-minute lead window or already expired.
func (m *Manager) EnsureFreshToken(ctx context.Context, tenantID string, platform models.Platform) (string, error) {
	conn, err := m.store.GetPlatformConnection(ctx, tenantID, platform)
	if err != nil {
		return "", err
	}
	if !conn.Connected {
		return "", fmt.Errorf("tokenmanager: %w: connection disabled", apperrors.ErrAuthExpired)
	}
	if time.Until(conn.TokenExpiresAt) <= refreshLeadWindow {
		conn, err = m.refresh(ctx, conn, models.RotationScheduled)
		if err != nil {
			return "", err
		}
	}
	return m.box.Decrypt(conn.AccessTokenCipher)
}

// HandleAPIError implements the 401/429 semantics from spec §4.3: one
// refresh attempt on 401 (never auto-retrying the original call), and
// delegating to the breaker's throttle on 429.
func (m *Manager) HandleAPIError(ctx context.Context, tenantID string, platform models.Platform, statusCode int, retryAfterHeader string) error {
	switch statusCode {
	case http.StatusUnauthorized:
		conn, err := m.store.GetPlatformConnection(ctx, tenantID, platform)
		if err != nil {
			return err
		}
		if _, err := m.refresh(ctx, conn, models.RotationOnError); err != nil {
			return fmt.Errorf("tokenmanager: %w", apperrors.ErrAuthExpired)
		}
		return nil
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(retryAfterHeader)
		m.fns.RecordThrottle(platform, retryAfter)
		return fmt.Errorf("tokenmanager: %w", apperrors.ErrThrottled)
	default:
		return nil
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 30 * time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

func (m *Manager) refresh(ctx context.Context, conn models.PlatformConnection, rotationType models.RotationType) (models.PlatformConnection, error) {
	cfg, ok := m.configs[conn.Platform]
	if !ok {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: %w: no oauth config for platform %s", apperrors.ErrConfigInvalid, conn.Platform)
	}
	refreshPlain, err := m.box.Decrypt(conn.RefreshTokenCipher)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: decrypt refresh token: %w", err)
	}

	refreshCtx, cancel := context.WithTimeout(ctx, m.exchangeTimeout)
	defer cancel()

	src := cfg.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: refreshPlain})
	newToken, err := src.Token()
	if err != nil {
		m.fns.RecordFailure(conn.Platform)
		_ = m.store.RecordTokenRotation(ctx, models.TokenRotationHistory{
			TenantID: conn.TenantID, Platform: conn.Platform, RotationType: rotationType,
			PreviousExpiresAt: conn.TokenExpiresAt, Success: false, ErrorMessage: err.Error(),
		})
		_ = m.store.SetConnectionStatus(ctx, conn.TenantID, conn.Platform, false)
		alert := models.TokenExpiryAlert{
			TenantID: conn.TenantID, Platform: conn.Platform, AlertType: models.AlertRefreshFailed,
			TokenExpiresAt: conn.TokenExpiresAt, Notified: true,
		}
		if raised, _ := m.store.RaiseTokenExpiryAlert(ctx, alert); raised {
			m.notifier.NotifyTokenAlert(ctx, alert)
		}
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: %w: refresh failed: %v", apperrors.ErrAuthExpired, err)
	}
	m.fns.RecordSuccess(conn.Platform, 0)

	accessCipher, err := m.box.Encrypt(newToken.AccessToken)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: encrypt refreshed access token: %w", err)
	}
	refreshCipher := conn.RefreshTokenCipher
	if newToken.RefreshToken != "" {
		refreshCipher, err = m.box.Encrypt(newToken.RefreshToken)
		if err != nil {
			return models.PlatformConnection{}, fmt.Errorf("tokenmanager: encrypt refreshed refresh token: %w", err)
		}
	}

	previousExpiry := conn.TokenExpiresAt
	conn.AccessTokenCipher = accessCipher
	conn.RefreshTokenCipher = refreshCipher
	conn.TokenExpiresAt = newToken.Expiry
	conn.Connected = true
	saved, err := m.store.UpsertPlatformConnection(ctx, conn)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("tokenmanager: upsert refreshed connection: %w", err)
	}
	_ = m.store.RecordTokenRotation(ctx, models.TokenRotationHistory{
		TenantID: conn.TenantID, Platform: conn.Platform, RotationType: rotationType,
		PreviousExpiresAt: previousExpiry, NewExpiresAt: newToken.Expiry, Success: true,
	})
	return saved, nil
}

// ExpiryScan implements the periodic alert raiser from spec §4.3.
func (m *Manager) ExpiryScan(ctx context.Context) error {
	conns, err := m.store.ListConnectionsExpiringBefore(ctx, time.Now().Add(oneDayThreshold))
	if err != nil {
		return fmt.Errorf("tokenmanager: expiry scan: %w", err)
	}
	for _, c := range conns {
		dt := time.Until(c.TokenExpiresAt)
		var alertType models.AlertType
		switch {
		case dt <= expiredThreshold:
			alertType = models.AlertExpired
		case dt <= oneHourThreshold:
			alertType = models.Alert1hrWarning
		case dt <= oneDayThreshold:
			alertType = models.Alert24hrWarning
		default:
			continue
		}
		alert := models.TokenExpiryAlert{
			TenantID: c.TenantID, Platform: c.Platform, AlertType: alertType,
			TokenExpiresAt: c.TokenExpiresAt, Notified: true,
		}
		raised, err := m.store.RaiseTokenExpiryAlert(ctx, alert)
		if err != nil {
			if m.log != nil {
				m.log.WithError(err).WithField("tenant_id", c.TenantID).Warn("tokenmanager: raise expiry alert failed")
			}
			continue
		}
		if raised {
			m.notifier.NotifyTokenAlert(ctx, alert)
		}
	}
	return nil
}
