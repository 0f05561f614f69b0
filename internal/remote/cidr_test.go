package remote

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAllowListEmptyPermitsEverything(t *testing.T) {
	al, errs := NewAllowList(nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !al.Allows(net.ParseIP("8.8.8.8")) {
		t.Error("empty allow list should permit every address")
	}
}

func TestAllowListRestrictsToConfiguredRanges(t *testing.T) {
	al, errs := NewAllowList([]string{"192.168.1.0/24"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !al.Allows(net.ParseIP("192.168.1.42")) {
		t.Error("expected address inside the range to be allowed")
	}
	if al.Allows(net.ParseIP("10.0.0.1")) {
		t.Error("expected address outside the range to be denied")
	}
}

func TestAllowListSkipsMalformedEntries(t *testing.T) {
	al, errs := NewAllowList([]string{"not-a-cidr", "10.0.0.0/8"})
	if len(errs) != 1 {
		t.Fatalf("expected exactly one parse error, got %d", len(errs))
	}
	if !al.Allows(net.ParseIP("10.1.2.3")) {
		t.Error("expected the well-formed entry to still take effect")
	}
}

func TestAllowListMiddlewareRejectsDisallowedClient(t *testing.T) {
	al, _ := NewAllowList([]string{"192.168.1.0/24"})
	handler := al.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.5:4444"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAllowListMiddlewarePassesAllowedClient(t *testing.T) {
	al, _ := NewAllowList([]string{"192.168.1.0/24"})
	handler := al.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "192.168.1.7:4444"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
