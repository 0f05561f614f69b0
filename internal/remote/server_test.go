package remote

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/phase"
	"github.com/burahimasree/smartcar-core/internal/topics"
)

func newTestServer(t *testing.T) (*Server, *bus.Hub) {
	t.Helper()
	hub := bus.NewHub(bus.HubConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s := NewServer(Config{}, hub, func() phase.Phase { return phase.Idle }, slog.Default())
	return s, hub
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandleStatusReflectsSnapshot(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	s.handleStatus(w, req)

	var snap TelemetrySnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.Phase != "idle" {
		t.Errorf("Phase = %q, want idle", snap.Phase)
	}
}

func TestHandleIntentRejectsUnrecognizedIntent(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(intentRequest{Intent: "dance"})
	req := httptest.NewRequest(http.MethodPost, "/intent", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleIntent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleIntentRejectsMalformedBody(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/intent", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.handleIntent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleIntentPublishesAndTouchesSession(t *testing.T) {
	s, hub := newTestServer(t)
	sub := hub.Subscribe(bus.Upstream, bus.T(topics.RemoteIntent), 8)
	defer sub.Close()

	body, _ := json.Marshal(intentRequest{Intent: "start"})
	req := httptest.NewRequest(http.MethodPost, "/intent", bytes.NewReader(body))
	req.RemoteAddr = "192.168.1.9:5555"
	w := httptest.NewRecorder()
	s.handleIntent(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	select {
	case env := <-sub.Ch():
		var p topics.RemoteIntentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("unmarshal published envelope: %v", err)
		}
		if p.Intent != "start" || p.Source != "http" {
			t.Errorf("payload = %+v, want intent=start source=http", p)
		}
	case <-time.After(time.Second):
		t.Fatal("expected remote.intent envelope to be published")
	}

	if id, active := s.sessions.Active(); !active || id != "192.168.1.9:5555" {
		t.Errorf("session = (%q, %v), want (192.168.1.9:5555, true)", id, active)
	}
}

func TestObserveDownstreamUpdatesPhaseTransitionMetric(t *testing.T) {
	s, _ := newTestServer(t)
	payload, _ := json.Marshal(topics.DisplayStatePayload{State: "listening", Phase: "listening", Timestamp: 1})
	s.observeDownstream(bus.Envelope{Topic: bus.T(topics.DisplayState), Payload: payload})

	families, err := s.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var got float64
	for _, mf := range families {
		if mf.GetName() != "smartcar_phase_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "phase" && lp.GetValue() == "listening" {
					got = m.GetCounter().GetValue()
				}
			}
		}
	}
	if got != 1 {
		t.Errorf("smartcar_phase_transitions_total{phase=listening} = %v, want 1", got)
	}
}
