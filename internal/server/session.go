package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/meetavatar/internal/animation"
	"github.com/normanking/meetavatar/internal/bus"
	"github.com/normanking/meetavatar/internal/i18n"
	"github.com/normanking/meetavatar/internal/identity"
	"github.com/normanking/meetavatar/internal/scene"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	outboxSize     = 16
)

// Message types exchanged on the avatar socket.
const (
	MessageSession = "session"
	MessageFrame   = "frame"
	MessageError   = "error"
	MessageLevel   = "level"
	MessagePCM     = "pcm"
	MessageWatch   = "watch"
)

type inboundMessage struct {
	Type        string   `json:"type"`
	Participant string   `json:"participant,omitempty"`
	Name        string   `json:"name,omitempty"`
	Level       *float64 `json:"level,omitempty"`
	Data        []byte   `json:"data,omitempty"` // base64 PCM
	BitDepth    int      `json:"bitDepth,omitempty"`
}

type sessionMessage struct {
	Type        string            `json:"type"`
	Session     string            `json:"session"`
	Participant string            `json:"participant"`
	Identity    identity.Identity `json:"identity"`
}

type frameMessage struct {
	Type        string                  `json:"type"`
	Session     string                  `json:"session"`
	Participant string                  `json:"participant"`
	State       animation.State         `json:"state"`
	Label       string                  `json:"label"`
	Mouth       string                  `json:"mouth"`
	Offsets     map[string]scene.Offset `json:"offsets"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// session is one live avatar on one socket. The reader goroutine handles
// inbound messages; the writer goroutine owns every write to conn.
type session struct {
	id         string
	srv        *Server
	conn       *websocket.Conn
	logger     zerolog.Logger
	translator *i18n.Translator
	frameRate  int

	out        chan any
	ctx        context.Context
	cancel     context.CancelFunc
	writerDone chan struct{}

	mu          sync.Mutex
	participant string
	identity    identity.Identity
	key         scene.ScopeKey
	controller  *animation.Controller
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sess := s.newSession(conn, s.translator(r))
	if err := sess.bind(participant, r.URL.Query().Get("name")); err != nil {
		s.logger.Warn().Err(err).Msg("Session bind failed")
		_ = conn.Close()
		return
	}
	s.addSession(sess)
	s.deps.Bus.Publish(bus.Event{
		Type: bus.EventTypeSessionOpened,
		Data: map[string]any{"session": sess.id, "participant": participant},
	})
	sess.logger.Info().Str("participant", participant).Msg("Session opened")

	sess.run()
}

func (s *Server) newSession(conn *websocket.Conn, t *i18n.Translator) *session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	fps := s.config().Server.FrameRate
	if fps <= 0 {
		fps = 30
	}
	return &session{
		id:         id,
		srv:        s,
		conn:       conn,
		logger:     s.logger.With().Str("session", id).Logger(),
		translator: t,
		frameRate:  fps,
		out:        make(chan any, outboxSize),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}
}

// bind points the session at participant, mounting its scene subtree and
// (re)binding the controller to its track.
func (ss *session) bind(participant, name string) error {
	deps := ss.srv.deps
	track, err := deps.Tracks.Acquire(participant)
	if err != nil {
		return err
	}
	if name == "" {
		name = participant
	}
	cfg := ss.srv.config()
	id := deps.Resolver.Resolve(name, cfg.Avatar.Palette)
	scope := animation.Scope{View: ss.id, ParticipantID: participant, Variants: id.Variants}
	key := scene.ScopeKey{View: ss.id, Participant: participant}

	rest := animation.MouthRest()
	deps.Graph.Mount(key,
		scene.Element{Name: animation.MouthElement, Path: &rest},
		scene.Element{Name: scope.Accessory()},
	)

	ss.mu.Lock()
	defer ss.mu.Unlock()
	previous := ss.participant
	if ss.controller == nil {
		ss.controller = animation.New(track, scope, deps.Engine,
			animation.WithConfig(animation.Config{
				Threshold:     cfg.Avatar.Threshold,
				StopOnSilence: cfg.Avatar.StopOnSilence,
			}),
			animation.WithBus(deps.Bus),
			animation.WithLogger(ss.logger),
		)
		ss.controller.Mount()
	} else {
		ss.controller.Rebind(track, scope)
		if ss.key != key {
			deps.Graph.Unmount(ss.key)
		}
		deps.Tracks.Release(previous)
	}
	ss.participant = participant
	ss.identity = id
	ss.key = key
	return nil
}

func (ss *session) run() {
	defer ss.close()

	ss.mu.Lock()
	hello := sessionMessage{Type: MessageSession, Session: ss.id, Participant: ss.participant, Identity: ss.identity}
	ss.mu.Unlock()
	ss.send(hello)

	go ss.writeLoop()
	ss.readLoop()
}

func (ss *session) readLoop() {
	ss.conn.SetReadLimit(maxMessageSize)
	_ = ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	ss.conn.SetPongHandler(func(string) error {
		return ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ss.logger.Debug().Err(err).Msg("Socket read failed")
			}
			return
		}
		ss.handle(raw)
	}
}

func (ss *session) handle(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		ss.sendError("invalid message: " + err.Error())
		return
	}

	participant := msg.Participant
	if participant == "" {
		ss.mu.Lock()
		participant = ss.participant
		ss.mu.Unlock()
	}

	switch msg.Type {
	case MessageLevel:
		if msg.Level == nil {
			ss.sendError("level is required")
			return
		}
		track, err := ss.srv.deps.Tracks.Lookup(participant)
		if err != nil {
			ss.sendError(err.Error())
			return
		}
		track.EmitLevel(*msg.Level)

	case MessagePCM:
		if len(msg.Data) == 0 {
			ss.sendError("data is required")
			return
		}
		track, err := ss.srv.deps.Tracks.Lookup(participant)
		if err != nil {
			ss.sendError(err.Error())
			return
		}
		if _, err := track.WritePCM(msg.Data, msg.BitDepth); err != nil {
			ss.sendError(err.Error())
		}

	case MessageWatch:
		if msg.Participant == "" {
			ss.sendError("participant is required")
			return
		}
		if err := ss.bind(msg.Participant, msg.Name); err != nil {
			ss.sendError(err.Error())
			return
		}
		ss.logger.Debug().Str("participant", msg.Participant).Msg("Session rebound")

	default:
		ss.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// send queues msg for the writer. It never blocks the reader.
func (ss *session) send(msg any) {
	select {
	case ss.out <- msg:
	case <-ss.ctx.Done():
	default:
		ss.logger.Warn().Msg("Outbox full, dropping message")
	}
}

func (ss *session) sendError(msg string) {
	ss.send(errorMessage{Type: MessageError, Error: msg})
}

func (ss *session) writeLoop() {
	frames := time.NewTicker(time.Second / time.Duration(ss.frameRate))
	ping := time.NewTicker(pingPeriod)
	defer func() {
		frames.Stop()
		ping.Stop()
		_ = ss.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		// Unblocks the reader.
		_ = ss.conn.Close()
		close(ss.writerDone)
	}()

	var last []byte
	for {
		select {
		case <-ss.ctx.Done():
			return

		case msg := <-ss.out:
			b, err := json.Marshal(msg)
			if err != nil {
				ss.logger.Error().Err(err).Msg("Encode message failed")
				continue
			}
			if err := ss.write(websocket.TextMessage, b); err != nil {
				return
			}

		case <-frames.C:
			f, ok := ss.frame()
			if !ok {
				continue
			}
			b, err := json.Marshal(f)
			if err != nil || bytes.Equal(b, last) {
				continue
			}
			if err := ss.write(websocket.TextMessage, b); err != nil {
				return
			}
			last = b

		case <-ping.C:
			if err := ss.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ss *session) write(messageType int, data []byte) error {
	_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ss.conn.WriteMessage(messageType, data); err != nil {
		ss.logger.Debug().Err(err).Msg("Socket write failed")
		return err
	}
	return nil
}

// frame snapshots the bound subtree.
func (ss *session) frame() (frameMessage, bool) {
	ss.mu.Lock()
	key, participant, ctrl := ss.key, ss.participant, ss.controller
	ss.mu.Unlock()
	if ctrl == nil {
		return frameMessage{}, false
	}

	f, ok := ss.srv.deps.Graph.Snapshot(key)
	if !ok {
		return frameMessage{}, false
	}
	state := ctrl.State()
	return frameMessage{
		Type:        MessageFrame,
		Session:     ss.id,
		Participant: participant,
		State:       state,
		Label:       ss.translator.T("avatar.state." + state.String()),
		Mouth:       f.Paths[animation.MouthElement],
		Offsets:     f.Offsets,
	}, true
}

// stop asks the session to end. Safe to call more than once.
func (ss *session) stop() {
	ss.cancel()
}

func (ss *session) close() {
	ss.stop()
	<-ss.writerDone

	ss.mu.Lock()
	ctrl, key, participant := ss.controller, ss.key, ss.participant
	ss.mu.Unlock()

	if ctrl != nil {
		ctrl.Unmount()
		ss.srv.deps.Tracks.Release(participant)
	}
	ss.srv.deps.Graph.Unmount(key)
	ss.srv.removeSession(ss.id)

	ss.srv.deps.Bus.Publish(bus.Event{
		Type: bus.EventTypeSessionClosed,
		Data: map[string]any{"session": ss.id, "participant": participant},
	})
	ss.logger.Info().Str("participant", participant).Msg("Session closed")
}
