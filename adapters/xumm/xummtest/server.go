// Package xummtest runs an in-process stand-in for the Xumm platform: the
// payload REST endpoints plus the per-payload status websocket.
package xummtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/layer-3/xrpauth/core"
)

const (
	APIKey    = "test-api-key"
	APISecret = "test-api-secret"
)

type payload struct {
	details   core.PayloadDetails
	conns     []*websocket.Conn
	connected chan struct{}
}

// Server is a fake Xumm platform
type Server struct {
	*httptest.Server

	t        testing.TB
	upgrader websocket.Upgrader

	mu       sync.Mutex
	payloads map[string]*payload
	order    []string
}

// NewServer starts a fake platform that is shut down with the test
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		t:        t,
		payloads: make(map[string]*payload),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /platform/payload", s.create)
	mux.HandleFunc("GET /platform/payload/{id}", s.get)
	mux.HandleFunc("GET /sign/{id}", s.channel)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.shutdown)
	return s
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("X-API-Key") == APIKey && r.Header.Get("X-API-Secret") == APISecret
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	var req struct {
		TxJSON map[string]interface{} `json:"txjson"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TxJSON["TransactionType"] != "SignIn" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.payloads[id] = &payload{
		details: core.PayloadDetails{
			Meta:    core.PayloadMeta{Exists: true, UUID: id},
			Payload: json.RawMessage(`{"tx_type":"SignIn"}`),
		},
		connected: make(chan struct{}),
	}
	s.order = append(s.order, id)
	s.mu.Unlock()

	resp := map[string]interface{}{
		"uuid": id,
		"next": map[string]string{"always": s.URL + "/sign/" + id},
		"refs": map[string]string{
			"qr_png":           s.URL + "/sign/" + id + "_q.png",
			"websocket_status": s.ChannelURL(id),
		},
		"pushed": false,
	}
	writeJSON(w, resp)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	s.mu.Lock()
	p, ok := s.payloads[r.PathValue("id")]
	var details core.PayloadDetails
	if ok {
		details = p.details
	}
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"code": 404}})
		return
	}
	writeJSON(w, details)
}

func (s *Server) channel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	p, ok := s.payloads[id]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	p.conns = append(p.conns, conn)
	_ = conn.WriteJSON(map[string]string{"message": "Welcome " + id})
	_ = conn.WriteJSON(map[string]int{"expires_in_seconds": 300})
	if len(p.conns) == 1 {
		close(p.connected)
	}
	s.mu.Unlock()

	// Drain until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ChannelURL returns the status websocket address of a payload
func (s *Server) ChannelURL(id string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/sign/" + id
}

// Payloads lists created payload ids in creation order
func (s *Server) Payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Connected is closed once a watcher subscribed to the payload channel
func (s *Server) Connected(id string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[id]
	if !ok {
		s.t.Fatalf("unknown payload %s", id)
	}
	return p.connected
}

// Send pushes a raw event to every subscriber of the payload
func (s *Server) Send(id string, event interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.payloads[id].conns {
		_ = conn.WriteJSON(event)
	}
}

// Open reports the payload as opened in the app
func (s *Server) Open(id string) {
	s.update(id, func(d *core.PayloadDetails) { d.Meta.AppOpened = true })
	s.Send(id, map[string]bool{"opened": true})
}

// Sign resolves the payload with signedBlob and announces it
func (s *Server) Sign(id, signedBlob string) {
	s.update(id, func(d *core.PayloadDetails) {
		d.Meta.Resolved = true
		d.Meta.Signed = true
		d.Response.Hex = signedBlob
	})
	s.Send(id, map[string]interface{}{
		"payload_uuidv4": id,
		"signed":         true,
		"user_token":     true,
		"return_url":     map[string]interface{}{"app": nil, "web": nil},
	})
}

// Expire marks the payload expired and announces it
func (s *Server) Expire(id string) {
	s.update(id, func(d *core.PayloadDetails) { d.Meta.Expired = true })
	s.Send(id, map[string]bool{"expired": true})
}

// Hangup closes every channel of the payload with a normal close frame
func (s *Server) Hangup(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.payloads[id]
	for _, conn := range p.conns {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
	p.conns = nil
}

func (s *Server) update(id string, fn func(*core.PayloadDetails)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[id]
	if !ok {
		s.t.Fatalf("unknown payload %s", id)
	}
	fn(&p.details)
}

func (s *Server) shutdown() {
	s.mu.Lock()
	for _, p := range s.payloads {
		for _, conn := range p.conns {
			_ = conn.Close()
		}
	}
	s.mu.Unlock()
	s.Server.Close()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
