package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxline/voxline/internal/controller"
	"github.com/voxline/voxline/internal/health"
	"github.com/voxline/voxline/internal/session"
	"github.com/voxline/voxline/pkg/audio"
)

// newTestServer returns a handler backed by a controller whose session
// cooperates with the stop signal immediately.
func newTestServer(t *testing.T) (*Server, *controller.Controller) {
	t.Helper()
	c := controller.New(func(stop *session.StopSignal, logf audio.Logf, running func()) error {
		running()
		<-stop.Done()
		return nil
	})
	h := health.New(health.APIKey("sk-test"))
	return New(c, h, nil), c
}

func do(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	rec := do(t, handler, "GET", "/api/session/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body controller.Status
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != controller.StateIdle || body.Running {
		t.Errorf("body = %+v, want idle and not running", body)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestLogsEndpoint(t *testing.T) {
	s, c := newTestServer(t)
	handler := s.Handler()
	c.Log("first")
	c.Log("second")
	c.Log("third")

	type logsBody struct {
		Logs []struct {
			ID        int64   `json:"id"`
			Timestamp float64 `json:"timestamp"`
			Message   string  `json:"message"`
		} `json:"logs"`
	}

	tests := []struct {
		name  string
		path  string
		wants []string
	}{
		{"full history", "/api/logs", []string{"first", "second", "third"}},
		{"after zero", "/api/logs?after=0", []string{"first", "second", "third"}},
		{"incremental", "/api/logs?after=2", []string{"third"}},
		{"latest", "/api/logs?after=3", nil},
		{"malformed after", "/api/logs?after=banana", []string{"first", "second", "third"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, handler, "GET", tc.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}

			var body logsBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Logs) != len(tc.wants) {
				t.Fatalf("got %d entries, want %d", len(body.Logs), len(tc.wants))
			}
			for i, want := range tc.wants {
				if body.Logs[i].Message != want {
					t.Errorf("entry %d = %q, want %q", i, body.Logs[i].Message, want)
				}
			}
		})
	}

	// An empty result must still be a JSON array, not null.
	rec := do(t, handler, "GET", "/api/logs?after=999")
	if !strings.Contains(rec.Body.String(), `"logs":[]`) {
		t.Errorf("empty logs body = %s, want logs:[]", rec.Body.String())
	}
}

func TestStartAndStopEndpoints(t *testing.T) {
	s, c := newTestServer(t)
	handler := s.Handler()

	var body struct {
		OK     bool   `json:"ok"`
		Reason string `json:"reason"`
		Status struct {
			State   string `json:"state"`
			Running bool   `json:"running"`
		} `json:"status"`
	}

	rec := do(t, handler, "POST", "/api/session/start")
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK {
		t.Fatalf("first start ok = false: %+v", body)
	}

	// Second start while running is rejected.
	rec = do(t, handler, "POST", "/api/session/start")
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OK || body.Reason != "already_running" {
		t.Errorf("second start = %+v, want ok=false reason=already_running", body)
	}

	rec = do(t, handler, "POST", "/api/session/stop")
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Status.Running {
		t.Errorf("stop = %+v, want ok=true running=false", body)
	}

	// Stop with nothing running reports false.
	rec = do(t, handler, "POST", "/api/session/stop")
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OK {
		t.Error("idle stop ok = true, want false")
	}

	// The controller must be restartable through the API.
	rec = do(t, handler, "POST", "/api/session/start")
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK {
		t.Error("restart after stop failed")
	}
	c.Stop()
}

func TestDashboardServed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), "GET", "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Voxline") {
		t.Error("dashboard body does not mention Voxline")
	}
}

func TestProbesAndMetricsRegistered(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if rec := do(t, handler, "GET", path); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), "POST", "/api/session/reset")
	if rec.Code == http.StatusOK {
		t.Errorf("unknown endpoint returned 200")
	}
}
