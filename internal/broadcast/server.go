package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/overlay"
	"github.com/hirawatt/sahayak/internal/protocol"
	"github.com/hirawatt/sahayak/internal/shortcuts"
)

// Server is the HTTP surface: the websocket upgrade endpoint for
// presentation clients plus a small REST API mirroring the same
// operations for one-shot callers.
type Server struct {
	addr     string
	hub      *Hub
	machine  *overlay.StateMachine
	registry *shortcuts.Registry
	submit   SubmitFunc
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

func NewServer(log *zap.SugaredLogger, addr string, hub *Hub, machine *overlay.StateMachine, registry *shortcuts.Registry, submit SubmitFunc) *Server {
	return &Server{
		addr:     addr,
		hub:      hub,
		machine:  machine,
		registry: registry,
		submit:   submit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Loopback-only service; the frontend connects from file://
			// or app contexts with no meaningful origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Routes builds the router. Exposed separately so tests can drive the
// handlers through httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.Post("/overlay/{overlay}/toggle", s.handleOverlayToggle)
	r.Get("/overlay/states", s.handleOverlayStates)
	r.Post("/context/capture", s.handleContextCapture)
	r.Get("/hotkeys", s.handleHotkeysGet)
	r.Post("/hotkeys/{action}", s.handleHotkeyUpdate)
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infow("listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.Envelope{Success: true, Data: map[string]string{"status": "healthy"}})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := newClient(s.hub, conn, s.log)
	s.hub.register <- c
	go c.writePump()
	go c.readPump()
}

func (s *Server) handleOverlayToggle(w http.ResponseWriter, r *http.Request) {
	id := protocol.OverlayID(chi.URLParam(r, "overlay"))
	if !id.Valid() {
		writeJSON(w, http.StatusBadRequest, protocol.Envelope{Success: false, Message: "unknown overlay: " + string(id)})
		return
	}
	s.dispatch(w, r, protocol.Trigger{
		Overlay: id,
		Op:      protocol.OpToggle,
		Origin:  protocol.OriginAPI,
		Reply:   make(chan protocol.Envelope, 1),
	})
}

func (s *Server) handleContextCapture(w http.ResponseWriter, r *http.Request) {
	retain := r.URL.Query().Get("capture_image") != "false"
	s.dispatch(w, r, protocol.Trigger{
		Op:          protocol.OpCaptureOnly,
		Origin:      protocol.OriginAPI,
		RetainImage: retain,
		Reply:       make(chan protocol.Envelope, 1),
	})
}

// dispatch submits a trigger and relays its single acknowledgement as
// the HTTP response.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, t protocol.Trigger) {
	if !s.submit(t) {
		writeJSON(w, http.StatusServiceUnavailable, protocol.Envelope{Success: false, Message: "busy, please retry"})
		return
	}
	select {
	case env := <-t.Reply:
		status := http.StatusOK
		if !env.Success {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, env)
	case <-time.After(replyWait):
		writeJSON(w, http.StatusGatewayTimeout, protocol.Envelope{Success: false, Message: "request timed out"})
	case <-r.Context().Done():
	}
}

func (s *Server) handleOverlayStates(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]bool)
	for id, st := range s.machine.States() {
		states[string(id)] = st.Visible
	}
	writeJSON(w, http.StatusOK, protocol.Envelope{Success: true, Data: states})
}

func (s *Server) handleHotkeysGet(w http.ResponseWriter, r *http.Request) {
	type binding struct {
		Key       string   `json:"key"`
		Modifiers []string `json:"modifiers"`
		Display   string   `json:"display"`
		Enabled   bool     `json:"enabled"`
	}
	out := make(map[string]binding)
	for _, sc := range s.registry.All() {
		out[string(sc.Action)] = binding{Key: sc.Key, Modifiers: sc.Modifiers, Display: sc.Combo(), Enabled: sc.Enabled}
	}
	writeJSON(w, http.StatusOK, protocol.Envelope{Success: true, Data: out})
}

func (s *Server) handleHotkeyUpdate(w http.ResponseWriter, r *http.Request) {
	action := protocol.Action(chi.URLParam(r, "action"))
	if _, ok := protocol.OverlayForAction(action); !ok {
		writeJSON(w, http.StatusBadRequest, protocol.Envelope{Success: false, Message: "unknown action: " + string(action)})
		return
	}

	var req struct {
		Key       string   `json:"key"`
		Modifiers []string `json:"modifiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Envelope{Success: false, Message: "invalid JSON: " + err.Error()})
		return
	}
	if err := s.registry.Update(action, req.Key, req.Modifiers); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Envelope{Success: false, Message: err.Error()})
		return
	}
	sc, _ := s.registry.Get(action)
	writeJSON(w, http.StatusOK, protocol.Envelope{Success: true, Message: "updated " + string(action) + " to " + sc.Combo()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
