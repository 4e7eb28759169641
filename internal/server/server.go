// Package server exposes avatars over HTTP and drives live avatar sessions
// over WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/meetavatar/internal/audio"
	"github.com/normanking/meetavatar/internal/bus"
	"github.com/normanking/meetavatar/internal/config"
	"github.com/normanking/meetavatar/internal/dialin"
	"github.com/normanking/meetavatar/internal/i18n"
	"github.com/normanking/meetavatar/internal/identity"
	"github.com/normanking/meetavatar/internal/logging"
	"github.com/normanking/meetavatar/internal/scene"
	"github.com/normanking/meetavatar/internal/tween"
)

// HistoryFunc returns recent log entries, oldest first.
type HistoryFunc func(limit int) []logging.LogEntry

// Deps are the collaborators a Server routes to. Nil fields get fresh
// defaults; Engine, when set, must resolve against Graph.
type Deps struct {
	Logger   zerolog.Logger
	History  HistoryFunc
	Tracks   *audio.Registry
	Graph    *scene.Graph
	Engine   *tween.Engine
	Bus      *bus.EventBus
	DialIn   *dialin.Service
	Locales  *i18n.Bundle
	Resolver *identity.Resolver
}

// Server is the HTTP and WebSocket front of meetavatar.
type Server struct {
	cfg  atomic.Pointer[config.Config]
	deps Deps

	logger   zerolog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu       sync.RWMutex
	sessions map[string]*session

	httpServer *http.Server
}

// New creates a server.
func New(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if deps.Tracks == nil {
		deps.Tracks = audio.NewRegistry(&audio.MeterConfig{
			BitDepth:        cfg.Avatar.BitDepth,
			SmoothingFrames: cfg.Avatar.SmoothingFrames,
		}, deps.Logger)
	}
	if deps.Graph == nil {
		deps.Graph = scene.NewGraph(deps.Logger)
	}
	if deps.Engine == nil {
		deps.Engine = tween.NewEngine(deps.Graph, deps.Logger)
	}
	if deps.Bus == nil {
		deps.Bus = bus.NewEventBus()
	}
	if deps.Locales == nil {
		deps.Locales = i18n.Default()
	}
	if deps.Resolver == nil {
		deps.Resolver = identity.Default()
	}
	if deps.DialIn == nil {
		client := dialin.NewClient(dialInClientConfig(cfg), deps.Logger)
		deps.DialIn = dialin.NewService(client, client.Config(), deps.Locales.Translator(cfg.Locale), deps.Logger)
	}
	if deps.History == nil {
		deps.History = func(int) []logging.LogEntry { return nil }
	}

	s := &Server{
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "server").Logger(),
		sessions: make(map[string]*session),
	}
	s.cfg.Store(cfg)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowedOrigin(origin) != ""
		},
	}
	deps.Bus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeAvatarBound,
		bus.EventTypeAvatarUnbound,
		bus.EventTypeAvatarAnimationStarted,
		bus.EventTypeAvatarAnimationStopped,
		bus.EventTypeSessionOpened,
		bus.EventTypeSessionClosed,
	}, s.logEvent)
	s.router = s.routes()
	return s
}

func dialInClientConfig(cfg *config.Config) dialin.ClientConfig {
	return dialin.ClientConfig{
		ConfCodeURL: cfg.DialIn.ConfCodeURL,
		NumbersURL:  cfg.DialIn.NumbersURL,
		MUCHost:     cfg.DialIn.MUCHost,
		Timeout:     cfg.DialIn.Timeout,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/avatars/{participant}", s.handleAvatarHTML)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.config().Server.RequestTimeout))
		r.Get("/identity", s.handleIdentity)
		r.Get("/avatars/{participant}", s.handleAvatar)
		r.Post("/participants/{participant}/level", s.handleLevel)
		r.Get("/dialin/{room}", s.handleDialIn)
		r.Get("/logs", s.handleLogs)
	})
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// config returns the configuration currently in effect.
func (s *Server) config() *config.Config {
	return s.cfg.Load()
}

// UpdateConfig swaps the configuration. Origins, palette and CORS prefixes
// apply immediately; thresholds and frame rate apply to new sessions.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.cfg.Store(cfg)
	s.logger.Info().Msg("Configuration updated")
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config()
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.Close()
		return err
	case <-ctx.Done():
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Close ends every live session. Hijacked connections are not tracked by
// http.Server.Shutdown.
func (s *Server) Close() {
	s.mu.RLock()
	live := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()

	for _, sess := range live {
		sess.stop()
	}
}

// Sessions returns the ids of live sessions, sorted.
func (s *Server) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Server) logEvent(e bus.Event) {
	s.logger.Debug().Str("event", string(e.Type)).Fields(e.Data).Msg("Avatar event")
}

// requestLogger logs each request through zerolog in the spirit of
// middleware.Logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// corsMiddleware adds CORS headers for configured origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := s.allowedOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept-Language")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the origin to allow, or "" when it is not allowed.
// With no configured origins only localhost is allowed.
func (s *Server) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	allowed := s.config().Server.AllowedOrigins
	if len(allowed) == 0 {
		if isLocalOrigin(origin) {
			return origin
		}
		return ""
	}
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if a == origin {
			return origin
		}
	}
	return ""
}

func isLocalOrigin(origin string) bool {
	for _, host := range []string{"http://localhost", "http://127.0.0.1"} {
		if origin == host || len(origin) > len(host) && origin[:len(host)+1] == host+":" {
			return true
		}
	}
	return false
}
