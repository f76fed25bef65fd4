package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hirawatt/sahayak/internal/overlay"
	"github.com/hirawatt/sahayak/internal/protocol"
	"github.com/hirawatt/sahayak/internal/shortcuts"
)

// echoSubmit acknowledges every trigger immediately with a canned reply
// and records what it saw.
type echoSubmit struct {
	mu       sync.Mutex
	triggers []protocol.Trigger
	reply    func(protocol.Trigger) protocol.Envelope
	refuse   bool
	// hold accepts triggers without acknowledging them, so a test can
	// deliver the reply itself at a moment of its choosing.
	hold bool
}

func (e *echoSubmit) submit(t protocol.Trigger) bool {
	e.mu.Lock()
	e.triggers = append(e.triggers, t)
	e.mu.Unlock()
	if e.refuse {
		return false
	}
	if e.hold {
		return true
	}
	if t.Reply != nil {
		env := protocol.Envelope{Success: true}
		if e.reply != nil {
			env = e.reply(t)
		}
		t.Reply <- env
	}
	return true
}

func (e *echoSubmit) last(t *testing.T) protocol.Trigger {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.triggers)
	return e.triggers[len(e.triggers)-1]
}

type fixture struct {
	hub     *Hub
	machine *overlay.StateMachine
	srv     *httptest.Server
	submit  *echoSubmit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	sub := &echoSubmit{}
	hub := NewHub(log, sub.submit)
	machine := overlay.NewStateMachine(log, nil)
	registry, err := shortcuts.NewRegistry(shortcuts.Defaults(), nil)
	require.NoError(t, err)

	server := NewServer(log, "127.0.0.1:0", hub, machine, registry, sub.submit)
	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return &fixture{hub: hub, machine: machine, srv: srv, submit: sub}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	// Registration travels through the hub's run loop; give it a beat
	// before publishing.
	time.Sleep(100 * time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebsocketReceivesBroadcast(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	f.hub.Publish(protocol.Envelope{
		Success: true,
		Data:    protocol.StateChangeFor(protocol.OverlayAIAssist, true),
	})

	env := readEnvelope(t, conn)
	assert.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, "show_ai_assist", data["action"])
	assert.Equal(t, true, data["state"])
	assert.Equal(t, "ai_assist", data["overlay_id"])
}

func TestWebsocketBroadcastReachesAllClients(t *testing.T) {
	f := newFixture(t)
	first := f.dial(t)
	second := f.dial(t)

	f.hub.Publish(protocol.Envelope{Success: true, Message: "fan out"})

	assert.Equal(t, "fan out", readEnvelope(t, first).Message)
	assert.Equal(t, "fan out", readEnvelope(t, second).Message)
}

func TestWebsocketControlTriggersToggle(t *testing.T) {
	f := newFixture(t)
	f.submit.reply = func(tr protocol.Trigger) protocol.Envelope {
		return protocol.Envelope{Success: true, Data: protocol.StateChangeFor(tr.Overlay, true)}
	}
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(protocol.ControlMessage{
		Type:   protocol.ControlOverlayAction,
		Action: protocol.ActionToggleAIAssist,
	}))

	env := readEnvelope(t, conn)
	assert.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, "show_ai_assist", data["action"])

	tr := f.submit.last(t)
	assert.Equal(t, protocol.OverlayAIAssist, tr.Overlay)
	assert.Equal(t, protocol.OpToggle, tr.Op)
	assert.Equal(t, protocol.OriginClient, tr.Origin)
}

func TestWebsocketUnknownActionKeepsConnection(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(protocol.ControlMessage{
		Type:   protocol.ControlOverlayAction,
		Action: "toggle_sidebar",
	}))
	env := readEnvelope(t, conn)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "unknown action")

	// Connection survives: a valid message still works.
	require.NoError(t, conn.WriteJSON(protocol.ControlMessage{
		Type:   protocol.ControlOverlayAction,
		Action: protocol.ActionToggleQuickCapture,
	}))
	env = readEnvelope(t, conn)
	assert.True(t, env.Success)
}

func TestWebsocketMalformedJSON(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readEnvelope(t, conn)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "invalid JSON")
}

func TestAckAfterDisconnectIsDropped(t *testing.T) {
	f := newFixture(t)
	f.submit.hold = true
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(protocol.ControlMessage{
		Type:   protocol.ControlOverlayAction,
		Action: protocol.ActionToggleAIAssist,
	}))

	var tr protocol.Trigger
	require.Eventually(t, func() bool {
		f.submit.mu.Lock()
		defer f.submit.mu.Unlock()
		if len(f.submit.triggers) == 0 {
			return false
		}
		tr = f.submit.triggers[0]
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// The client disconnects while its acknowledgement is still pending.
	require.NoError(t, conn.Close())
	time.Sleep(200 * time.Millisecond)

	// The late reply must be dropped, not pushed into the dead client.
	tr.Reply <- protocol.Envelope{Success: true}
	time.Sleep(200 * time.Millisecond)

	// The daemon survives and keeps serving its remaining clients.
	other := f.dial(t)
	f.hub.Publish(protocol.Envelope{Success: true, Message: "still alive"})
	assert.Equal(t, "still alive", readEnvelope(t, other).Message)
}

func TestWebsocketBusyQueue(t *testing.T) {
	f := newFixture(t)
	f.submit.refuse = true
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(protocol.ControlMessage{
		Type:   protocol.ControlOverlayAction,
		Action: protocol.ActionToggleAIAssist,
	}))
	env := readEnvelope(t, conn)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "busy")
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) protocol.Envelope {
	t.Helper()
	var env protocol.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestRESTHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeEnvelope(t, resp).Success)
}

func TestRESTOverlayToggle(t *testing.T) {
	f := newFixture(t)
	f.submit.reply = func(tr protocol.Trigger) protocol.Envelope {
		return protocol.Envelope{Success: true, Data: protocol.StateChangeFor(tr.Overlay, true)}
	}

	resp := postJSON(t, f.srv.URL+"/overlay/quick_capture/toggle", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)

	tr := f.submit.last(t)
	assert.Equal(t, protocol.OverlayQuickCapture, tr.Overlay)
	assert.Equal(t, protocol.OriginAPI, tr.Origin)
}

func TestRESTOverlayToggleUnknown(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/overlay/sidebar/toggle", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, decodeEnvelope(t, resp).Success)
}

func TestRESTOverlayToggleBusy(t *testing.T) {
	f := newFixture(t)
	f.submit.refuse = true
	resp := postJSON(t, f.srv.URL+"/overlay/ai_assist/toggle", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRESTOverlayStates(t *testing.T) {
	f := newFixture(t)
	f.machine.Seed(protocol.OverlayAutoContext, true)

	resp, err := http.Get(f.srv.URL + "/overlay/states")
	require.NoError(t, err)
	defer resp.Body.Close()
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)
	states := env.Data.(map[string]any)
	assert.Equal(t, true, states["auto_context"])
	assert.Equal(t, false, states["ai_assist"])
	assert.Equal(t, false, states["quick_capture"])
}

func TestRESTContextCapture(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/context/capture", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tr := f.submit.last(t)
	assert.Equal(t, protocol.OpCaptureOnly, tr.Op)
	assert.True(t, tr.RetainImage)
}

func TestRESTContextCaptureWithoutImage(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/context/capture?capture_image=false", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, f.submit.last(t).RetainImage)
}

func TestRESTHotkeys(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/hotkeys")
	require.NoError(t, err)
	defer resp.Body.Close()
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)
	bindings := env.Data.(map[string]any)
	require.Len(t, bindings, 3)
	aiAssist := bindings["toggle_ai_assist"].(map[string]any)
	assert.Equal(t, "ctrl+shift+1", aiAssist["display"])
}

func TestRESTHotkeyUpdate(t *testing.T) {
	f := newFixture(t)

	resp := postJSON(t, f.srv.URL+"/hotkeys/toggle_ai_assist", map[string]any{
		"key":       "a",
		"modifiers": []string{"ctrl", "alt"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	assert.Contains(t, env.Message, "ctrl+alt+a")
}

func TestRESTHotkeyUpdateConflict(t *testing.T) {
	f := newFixture(t)

	// ctrl+shift+2 belongs to quick_capture.
	resp := postJSON(t, f.srv.URL+"/hotkeys/toggle_ai_assist", map[string]any{
		"key":       "2",
		"modifiers": []string{"ctrl", "shift"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, decodeEnvelope(t, resp).Success)
}

func TestRESTHotkeyUpdateUnknownAction(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/hotkeys/toggle_sidebar", map[string]any{"key": "a"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
