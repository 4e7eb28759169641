package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/normanking/meetavatar/internal/i18n"
	"github.com/normanking/meetavatar/internal/view"
)

const (
	maxBodySize      = 1 << 20
	defaultLogsLimit = 100
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	sessions := len(s.sessions)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"sessions":     sessions,
		"timelines":    s.deps.Engine.Active(),
		"participants": len(s.deps.Tracks.IDs()),
	})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	writeJSON(w, http.StatusOK, s.deps.Resolver.Resolve(name, s.config().Avatar.Palette))
}

// avatarProps reads view props from the query string.
func (s *Server) avatarProps(r *http.Request) (view.Props, error) {
	q := r.URL.Query()
	cfg := s.config()

	p := view.Props{
		Icon:            q.Get("icon"),
		URL:             q.Get("url"),
		DisplayName:     q.Get("name"),
		Status:          q.Get("status"),
		TestID:          q.Get("testId"),
		ParticipantID:   chi.URLParam(r, "participant"),
		CORSURLs:        cfg.Avatar.CORSURLs,
		DefaultAvatar:   cfg.Avatar.DefaultImage,
		PaletteOverride: cfg.Avatar.Palette,
		Resolver:        s.deps.Resolver,
	}
	if raw := q.Get("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			return view.Props{}, errors.New("size must be a non-negative integer")
		}
		p.Size = size
	}
	return p, nil
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	p, err := s.avatarProps(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view.Build(p))
}

func (s *Server) handleAvatarHTML(w http.ResponseWriter, r *http.Request) {
	p, err := s.avatarProps(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := view.Render(&buf, view.Build(p)); err != nil {
		s.logger.Error().Err(err).Str("participant", p.ParticipantID).Msg("Render failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

type levelRequest struct {
	Level *float64 `json:"level"`
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Level == nil {
		writeError(w, http.StatusBadRequest, "level is required")
		return
	}

	// Only participants someone is watching have a track.
	track, err := s.deps.Tracks.Lookup(chi.URLParam(r, "participant"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	track.EmitLevel(*req.Level)
	w.WriteHeader(http.StatusNoContent)
}

// translator picks the locale from ?lang, then Accept-Language, then the
// configured locale.
func (s *Server) translator(r *http.Request) *i18n.Translator {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return s.deps.Locales.Translator(lang)
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return s.deps.Locales.TranslatorForAccept(accept)
	}
	return s.deps.Locales.Translator(s.config().Locale)
}

func (s *Server) handleDialIn(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	showTitle, _ := strconv.ParseBool(r.URL.Query().Get("showTitle"))

	sum := s.deps.DialIn.WithTranslator(s.translator(r)).Load(r.Context(), room, showTitle)
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.deps.History(limit))
}
