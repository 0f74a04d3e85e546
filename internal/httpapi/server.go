// Package httpapi implements the control plane from spec §6.2: OAuth
// begin/callback/disconnect, Supervisor start/stop/restart/status, manual
// post, and the per-tenant SSE event stream.
//
// Grounded on the teacher's cmd/api/main.go router assembly (chi, its
// middleware chain, route groups) and internal/handlers' request/response
// conventions (RespondWithJSON/RespondWithError), adapted from a per-user
// JWT session model to the single-shared-secret control plane spec §6.4
// describes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
	appmiddleware "github.com/ScarletRedJoker/Nebula-Command-sub006/internal/middleware"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/supervisor"
)

// TokenManager is the subset of internal/tokenmanager.Manager the control
// plane's OAuth endpoints need.
type TokenManager interface {
	BeginAuth(ctx context.Context, tenantID string, platform models.Platform, ipAddress string, scopes []string) (string, error)
	CompleteAuth(ctx context.Context, state, code string) (models.PlatformConnection, error)
}

// Config is everything the router needs from the process's AppConfig.
type Config struct {
	ServiceAuthToken    string
	CORSAllowedOrigins  string
	CORSMaxAge          int
	SettingsRedirectURL string // where OAuth callback 303s to when done.
}

// Server wires the Supervisor, Token Manager, and Persistence Port to an
// HTTP mux.
type Server struct {
	sup      *supervisor.Supervisor
	tokens   TokenManager
	store    store.Port
	cfg      Config
	validate *validator.Validate
	log      *logrus.Entry
}

func New(sup *supervisor.Supervisor, tokens TokenManager, st store.Port, cfg Config, log *logrus.Entry) *Server {
	return &Server{
		sup:      sup,
		tokens:   tokens,
		store:    st,
		cfg:      cfg,
		validate: validator.New(),
		log:      log,
	}
}

// Router assembles the chi mux: public health check, then a tenant-scoped
// group requiring both the shared service token and an X-Tenant-ID header.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   strings.Split(s.cfg.CORSAllowedOrigins, ","),
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		MaxAge:           s.cfg.CORSMaxAge,
	}).Handler)
	r.Use(chimiddleware.Logger, chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(appmiddleware.ServiceAuth(s.cfg.ServiceAuthToken))
		r.Use(appmiddleware.TenantFromHeader)

		r.Post("/auth/{platform}", s.handleAuthBegin)
		r.Get("/auth/{platform}/callback", s.handleAuthCallback)
		r.Delete("/auth/{platform}/disconnect", s.handleAuthDisconnect)

		r.Post("/bot/start", s.handleBotStart)
		r.Post("/bot/stop", s.handleBotStop)
		r.Post("/bot/restart", s.handleBotRestart)
		r.Post("/bot/post-manual", s.handleBotPostManual)
		r.Get("/bot/status", s.handleBotStatus)

		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parsePlatform(r *http.Request) (models.Platform, error) {
	switch p := chi.URLParam(r, "platform"); models.Platform(p) {
	case models.PlatformTwitch, models.PlatformYouTube, models.PlatformKick, models.PlatformSpotify:
		return models.Platform(p), nil
	default:
		return "", fmt.Errorf("%w: unknown platform %q", apperrors.ErrValidationFailed, p)
	}
}

// handleAuthBegin starts the OAuth flow for a platform: 303 to the
// provider's authorize URL (spec §6.2).
func (s *Server) handleAuthBegin(w http.ResponseWriter, r *http.Request) {
	platform, err := parsePlatform(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenantID := appmiddleware.TenantID(r)

	url, err := s.tokens.BeginAuth(r.Context(), tenantID, platform, clientIP(r), nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start oauth flow")
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// handleAuthCallback completes the OAuth flow and 303s back to settings.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		respondError(w, http.StatusBadRequest, "state and code are required")
		return
	}

	_, err := s.tokens.CompleteAuth(r.Context(), state, code)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperrors.ErrReplayDetected), errors.Is(err, apperrors.ErrOAuthStateNotFound):
			status = http.StatusBadRequest
		}
		respondError(w, status, "oauth exchange failed")
		return
	}

	dest := s.cfg.SettingsRedirectURL
	if dest == "" {
		dest = "/"
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// handleAuthDisconnect marks a platform connection disconnected. Token
// ciphertext is left in place (a reconnect reuses it until it's rotated);
// only the connected flag and live session are torn down.
func (s *Server) handleAuthDisconnect(w http.ResponseWriter, r *http.Request) {
	platform, err := parsePlatform(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenantID := appmiddleware.TenantID(r)

	if err := s.store.SetConnectionStatus(r.Context(), tenantID, platform, false); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to disconnect platform")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBotStart(w http.ResponseWriter, r *http.Request) {
	tenantID := appmiddleware.TenantID(r)
	st, err := s.sup.Start(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, statusResponse(st))
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	tenantID := appmiddleware.TenantID(r)
	if err := s.sup.Stop(r.Context(), tenantID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "draining"})
}

func (s *Server) handleBotRestart(w http.ResponseWriter, r *http.Request) {
	tenantID := appmiddleware.TenantID(r)
	st, err := s.sup.Restart(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, statusResponse(st))
}

type postManualRequest struct {
	Platforms []string `json:"platforms" validate:"required,min=1,dive,oneof=twitch youtube kick spotify"`
	Fact      string   `json:"fact,omitempty"`
}

func (s *Server) handleBotPostManual(w http.ResponseWriter, r *http.Request) {
	tenantID := appmiddleware.TenantID(r)

	var req postManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	wk, ok := s.sup.Worker(tenantID)
	if !ok {
		respondError(w, http.StatusConflict, "bot is not running for this tenant")
		return
	}

	platforms := make([]models.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, models.Platform(p))
	}
	if err := wk.PostManual(r.Context(), platforms, req.Fact); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "posted"})
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := appmiddleware.TenantID(r)
	st := s.sup.Status(tenantID)
	respondJSON(w, http.StatusOK, statusResponse(st))
}

func statusResponse(st supervisor.Status) map[string]any {
	return map[string]any{
		"isRunning":       st.State == "running",
		"status":          string(st.State),
		"since":           st.Since,
		"droppedMessages": st.Dropped,
		"lastError":       st.LastErr,
	}
}

// handleEvents streams tenantID's event bus as Server-Sent Events, per spec
// §6.2: "data: <json>\n\n" framing and a ": ping\n\n" heartbeat every 30s.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	tenantID := appmiddleware.TenantID(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan models.Event, 100)
	unsubscribe := s.sup.Subscribe(tenantID, func(evt models.Event) {
		select {
		case events <- evt:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-events:
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
