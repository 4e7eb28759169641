package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/meetavatar/internal/animation"
	"github.com/normanking/meetavatar/internal/audio"
	"github.com/normanking/meetavatar/internal/bus"
	"github.com/normanking/meetavatar/internal/config"
	"github.com/normanking/meetavatar/internal/dialin"
	"github.com/normanking/meetavatar/internal/identity"
	"github.com/normanking/meetavatar/internal/logging"
	"github.com/normanking/meetavatar/internal/view"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.FrameRate = 50
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, deps Deps) (*Server, *httptest.Server) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	deps.Logger = zerolog.Nop()
	srv := New(cfg, deps)
	ts := httptest.NewServer(srv.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.deps.Engine.Run(ctx, 60) }()

	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		cancel()
	})
	return srv, ts
}

func getJSON(t *testing.T, url string, header http.Header, v any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, vals := range header {
		req.Header[k] = vals
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["sessions"])
}

func TestIdentity(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})

	var got identity.Identity
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/identity?name=John%20Doe", nil, &got))
	assert.Equal(t, identity.Default().Resolve("John Doe", nil), got)
	assert.Equal(t, "JD", got.Initials)
}

func TestAvatar_Modes(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})

	tests := []struct {
		name  string
		query string
		mode  view.Mode
	}{
		{"initials", "name=John%20Doe", view.ModeInitials},
		{"image", "url=https%3A%2F%2Fcdn.example%2Fa.png&name=John", view.ModeImage},
		{"icon", "icon=mic&url=https%3A%2F%2Fcdn.example%2Fa.png", view.ModeIcon},
		{"default", "", view.ModeDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m view.Model
			require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/avatars/alice?"+tt.query, nil, &m))
			assert.Equal(t, tt.mode, m.Mode)
		})
	}

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/avatars/alice?size=big", nil, nil))
}

func TestAvatar_HTML(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})

	resp, err := http.Get(ts.URL + "/avatars/alice?name=Alice%20Smith&size=64")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `id="Mouth/Smile"`)
	assert.Contains(t, string(body), `id="alice"`)
	assert.Contains(t, string(body), ">AS<")
}

func TestLevel(t *testing.T) {
	tracks := audio.NewRegistry(audio.DefaultMeterConfig(), zerolog.Nop())
	_, ts := newTestServer(t, nil, Deps{Tracks: tracks})

	track, err := tracks.Acquire("alice")
	require.NoError(t, err)
	defer tracks.Release("alice")
	var mu sync.Mutex
	var levels []float64
	track.On(audio.EventLevelChanged, func(l float64) {
		mu.Lock()
		levels = append(levels, l)
		mu.Unlock()
	})

	post := func(body string) int {
		resp, err := http.Post(ts.URL+"/api/participants/alice/level", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, post(`{"level":0.5}`))
	assert.Equal(t, http.StatusNoContent, post(`{"level":3}`))
	assert.Equal(t, http.StatusBadRequest, post(`{}`))
	assert.Equal(t, http.StatusBadRequest, post(`nope`))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0.5, 1}, levels)
}

func TestLevel_UnknownParticipant(t *testing.T) {
	tracks := audio.NewRegistry(audio.DefaultMeterConfig(), zerolog.Nop())
	_, ts := newTestServer(t, nil, Deps{Tracks: tracks})

	for i := 0; i < 50; i++ {
		url := fmt.Sprintf("%s/api/participants/ghost-%d/level", ts.URL, i)
		resp, err := http.Post(url, "application/json", strings.NewReader(`{"level":0.5}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Empty(t, tracks.IDs())
}

func TestDialIn_Translated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"countryCode":"US","tollFree":true,"formattedNumber":"+1 555 0100"}]`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.DialIn.NumbersURL = upstream.URL
	_, ts := newTestServer(t, cfg, Deps{})

	var en dialin.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/dialin/room", nil, &en))
	assert.Equal(t, "Dial-in: US +1 555 0100 (Toll Free)", en.Display)

	var fr dialin.Summary
	header := http.Header{"Accept-Language": {"fr-FR,fr;q=0.9"}}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/dialin/room", header, &fr))
	assert.Equal(t, "Numéro : US +1 555 0100 (Numéro gratuit)", fr.Display)

	var forced dialin.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/dialin/room?lang=en", header, &forced))
	assert.Equal(t, en.Display, forced.Display)
}

func TestDialIn_NotConfigured(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})

	var sum dialin.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/dialin/room?lang=fr", nil, &sum))
	assert.Equal(t, "Désolé, l'accès par téléphone n'est pas disponible pour le moment.", sum.Error)
	assert.Equal(t, sum.Error, sum.Display)
}

func TestLogs(t *testing.T) {
	var gotLimit atomic.Int64
	history := func(limit int) []logging.LogEntry {
		gotLimit.Store(int64(limit))
		return []logging.LogEntry{{Level: "info", Component: "server", Message: "hello"}}
	}
	_, ts := newTestServer(t, nil, Deps{History: history})

	var entries []logging.LogEntry
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/logs?limit=5", nil, &entries))
	assert.EqualValues(t, 5, gotLimit.Load())
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Message)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/logs", nil, &entries))
	assert.EqualValues(t, defaultLogsLimit, gotLimit.Load())

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/logs?limit=x", nil, nil))
}

func TestCORS(t *testing.T) {
	srv, ts := newTestServer(t, nil, Deps{})

	origin := func(o string) string {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/identity", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", o)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		return resp.Header.Get("Access-Control-Allow-Origin")
	}

	assert.Equal(t, "http://localhost:3000", origin("http://localhost:3000"))
	assert.Empty(t, origin("https://evil.example"))

	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://meet.example"}
	srv.UpdateConfig(cfg)
	assert.Equal(t, "https://meet.example", origin("https://meet.example"))
	assert.Empty(t, origin("http://localhost:3000"))
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["type"] == typ }
}

func frameWhere(pred func(map[string]any) bool) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["type"] == MessageFrame && pred(m) }
}

func TestSession_Lifecycle(t *testing.T) {
	srv, ts := newTestServer(t, nil, Deps{})
	rest := animation.MouthRest().String()

	conn := dial(t, ts, "participant=alice&name=Alice%20Smith")

	hello := readUntil(t, conn, ofType(MessageSession))
	assert.Equal(t, "alice", hello["participant"])
	assert.Equal(t, "AS", hello["identity"].(map[string]any)["initials"])

	frame := readUntil(t, conn, ofType(MessageFrame))
	assert.Equal(t, "bound", frame["state"])
	assert.Equal(t, "Listening", frame["label"])
	assert.Equal(t, rest, frame["mouth"])

	require.Len(t, srv.Sessions(), 1)
	keys := srv.deps.Graph.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "alice", keys[0].Participant)
	assert.Equal(t, srv.Sessions()[0], keys[0].View)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": MessageLevel, "level": 0.5}))
	frame = readUntil(t, conn, frameWhere(func(m map[string]any) bool {
		return m["state"] == "animating" && m["mouth"] != rest
	}))
	assert.Equal(t, "Talking", frame["label"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": MessageWatch, "participant": "bob", "name": "Bob"}))
	readUntil(t, conn, frameWhere(func(m map[string]any) bool { return m["participant"] == "bob" }))
	keys = srv.deps.Graph.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "bob", keys[0].Participant)
	assert.Equal(t, []string{"bob"}, srv.deps.Tracks.IDs())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return len(srv.Sessions()) == 0 && len(srv.deps.Graph.Keys()) == 0 &&
			srv.deps.Engine.Active() == 0 && len(srv.deps.Tracks.IDs()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSession_SharedTrack(t *testing.T) {
	srv, ts := newTestServer(t, nil, Deps{})

	first := dial(t, ts, "participant=alice")
	readUntil(t, first, ofType(MessageFrame))
	second := dial(t, ts, "participant=alice")
	readUntil(t, second, ofType(MessageFrame))
	assert.Equal(t, []string{"alice"}, srv.deps.Tracks.IDs())

	require.NoError(t, first.Close())
	assert.Eventually(t, func() bool { return len(srv.Sessions()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, srv.deps.Tracks.IDs())

	require.NoError(t, second.WriteJSON(map[string]any{"type": MessageLevel, "level": 0.5}))
	readUntil(t, second, frameWhere(func(m map[string]any) bool { return m["state"] == "animating" }))

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool { return len(srv.deps.Tracks.IDs()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_PCM(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})
	conn := dial(t, ts, "participant=alice")
	readUntil(t, conn, ofType(MessageFrame))

	pcm := make([]byte, 512)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(16000))
	}
	require.NoError(t, conn.WriteJSON(inboundMessage{Type: MessagePCM, Data: pcm, BitDepth: 16}))
	readUntil(t, conn, frameWhere(func(m map[string]any) bool { return m["state"] == "animating" }))

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: MessagePCM, Data: []byte{1, 2, 3}, BitDepth: 24}))
	readUntil(t, conn, ofType(MessageError))
}

func TestSession_BadInput(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})
	conn := dial(t, ts, "participant=alice")
	readUntil(t, conn, ofType(MessageSession))

	cases := []struct {
		raw  string
		want string
	}{
		{`{`, "invalid message"},
		{`{"type":"dance"}`, "unknown message type"},
		{`{"type":"level"}`, "level is required"},
		{`{"type":"pcm"}`, "data is required"},
		{`{"type":"watch"}`, "participant is required"},
		{`{"type":"level","participant":"ghost","level":0.5}`, "audio track not found"},
	}
	for _, c := range cases {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(c.raw)))
		msg := readUntil(t, conn, ofType(MessageError))
		assert.Contains(t, msg["error"], c.want, c.raw)
	}
}

func TestSession_Rejections(t *testing.T) {
	_, ts := newTestServer(t, nil, Deps{})

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts, "participant=alice"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSession_EventsAndClose(t *testing.T) {
	b := bus.NewEventBus()
	var mu sync.Mutex
	var got []bus.EventType
	b.SubscribeMultiple([]bus.EventType{bus.EventTypeSessionOpened, bus.EventTypeSessionClosed}, func(e bus.Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	})

	srv, ts := newTestServer(t, nil, Deps{Bus: b})
	conn := dial(t, ts, "participant=alice")
	readUntil(t, conn, ofType(MessageSession))

	srv.Close()

	// The server closes the socket; reads fail from here on.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return len(srv.Sessions()) == 0 }, 5*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bus.EventType{bus.EventTypeSessionOpened, bus.EventTypeSessionClosed}, got)
}
