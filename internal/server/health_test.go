package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// fakePinger is a Pinger returning a scripted error.
type fakePinger struct {
	name string
	err  error
}

func (p *fakePinger) Name() string                 { return p.name }
func (p *fakePinger) Ping(_ context.Context) error { return p.err }

func Test_Health_AlwaysOK(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeService{})

	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func Test_Ready_AllProbesPass(t *testing.T) {
	t.Parallel()
	s, err := New(&fakeService{}, &Config{
		Registerer: prometheus.NewRegistry(),
		Pingers: []Pinger{
			&fakePinger{name: "qdrant"},
			&fakePinger{name: "embedder"},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp readyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func Test_Ready_FailingProbeReturns503(t *testing.T) {
	t.Parallel()
	s, err := New(&fakeService{}, &Config{
		Registerer: prometheus.NewRegistry(),
		Pingers: []Pinger{
			&fakePinger{name: "qdrant"},
			&fakePinger{name: "embedder", err: errors.New("connection refused")},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", w.Code)
	}
	var resp readyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Ready {
		t.Error("ready = true with a failing probe")
	}
	var failed *readyCheck
	for i := range resp.Checks {
		if resp.Checks[i].Name == "embedder" {
			failed = &resp.Checks[i]
		}
	}
	if failed == nil || failed.OK || failed.Error == "" {
		t.Errorf("expected failing embedder check, got %+v", resp.Checks)
	}
}

func Test_MultiPinger_ReturnsFirstFailure(t *testing.T) {
	t.Parallel()
	mp := NewMultiPinger(
		&fakePinger{name: "a"},
		&fakePinger{name: "b", err: errors.New("down")},
		&fakePinger{name: "c", err: errors.New("also down")},
	)

	err := mp.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "b: down" {
		t.Errorf("error = %q, want %q", got, "b: down")
	}
}
