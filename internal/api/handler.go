// Package api exposes the admin HTTP API: session inspection, settings,
// preferences, and a live event stream.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/events"
	"github.com/ashureev/chatcord/internal/session"
	"github.com/ashureev/chatcord/internal/store"
	"github.com/go-chi/chi/v5"
)

// Sessions is the read and reset surface of the session table.
type Sessions interface {
	Snapshot() []session.Summary
	History(channelID string) []domain.Turn
	LastActivity(channelID string) (time.Time, bool)
	Clear(channelID string) bool
}

// VoiceState reports which guilds have a voice connection.
type VoiceState interface {
	Guilds() []string
	SpeechRate(guildID string) float64
}

// Handler serves the admin endpoints.
type Handler struct {
	sessions Sessions
	settings *domain.Settings
	prefs    store.PreferenceRepository
	voice    VoiceState
	hub      *events.Hub
}

// NewHandler creates a Handler.
func NewHandler(sessions Sessions, settings *domain.Settings, prefs store.PreferenceRepository, voice VoiceState, hub *events.Hub) *Handler {
	return &Handler{
		sessions: sessions,
		settings: settings,
		prefs:    prefs,
		voice:    voice,
		hub:      hub,
	}
}

// RegisterRoutes registers the /api routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{channelID}", h.GetSession)
		r.Delete("/sessions/{channelID}", h.ClearSession)
		r.Get("/settings", h.GetSettings)
		r.Get("/preferences/{userID}", h.GetPreference)
		r.Get("/events", h.RecentEvents)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ListSessions returns a summary of every known channel.
func (h *Handler) ListSessions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.sessions.Snapshot(),
	})
}

// GetSession returns one channel's history.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	last, ok := h.sessions.LastActivity(channelID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"channel_id":    channelID,
		"last_activity": last,
		"history":       h.sessions.History(channelID),
	})
}

// ClearSession empties one channel's history.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	cleared := h.sessions.Clear(channelID)
	h.hub.Publish(events.Event{
		Kind:      events.KindCommand,
		ChannelID: channelID,
		Content:   "clear (admin)",
	})
	JSON(w, http.StatusOK, map[string]interface{}{
		"channel_id": channelID,
		"cleared":    cleared,
	})
}

type voiceGuild struct {
	GuildID    string  `json:"guild_id"`
	SpeechRate float64 `json:"speech_rate"`
}

// GetSettings returns the process-wide model settings and voice guilds.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	guilds := []voiceGuild{}
	if h.voice != nil {
		for _, id := range h.voice.Guilds() {
			guilds = append(guilds, voiceGuild{GuildID: id, SpeechRate: h.voice.SpeechRate(id)})
		}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"model":        h.settings.Model(),
		"temperature":  h.settings.Temperature(),
		"models":       domain.ModelCatalog,
		"voice_guilds": guilds,
	})
}

// GetPreference returns one user's stored preference.
func (h *Handler) GetPreference(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	pref, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load preference")
		return
	}
	if pref == nil {
		Error(w, http.StatusNotFound, "preference not found")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     userID,
		"preferences": pref,
	})
}

// RecentEvents returns the newest buffered events, oldest first.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"events": h.hub.Recent(limit),
	})
}
