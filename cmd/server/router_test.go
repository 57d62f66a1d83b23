package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/monitor"
	"github.com/linnemanlabs/blindspot/internal/prioritize"
	"github.com/linnemanlabs/blindspot/internal/simulate"
	"github.com/linnemanlabs/blindspot/internal/stream"
)

func testHandler(t *testing.T) http.Handler {
	t.Helper()

	mon := monitor.NewService(
		simulate.NewGenerator(simulate.ScenarioNormal),
		simulate.NewWindow(3),
		prioritize.NewLocal(prioritize.Hooks{}),
		log.Nop(), nil, nil, nil,
	)
	hub := stream.NewHub(log.Nop(), nil, nil)
	t.Cleanup(hub.Close)

	probe := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		}
	}
	passthrough := func(h http.Handler) http.Handler { return h }

	return newAPIHandler(log.Nop(), &configs{}, mon, hub, probe("alive"), probe("ready"), passthrough)
}

func TestAPIHandler_Probes(t *testing.T) {
	t.Parallel()

	h := testHandler(t)
	for path, want := range map[string]string{"/-/healthy": "alive", "/-/ready": "ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
		if rec.Body.String() != want {
			t.Errorf("%s body = %q, want %q", path, rec.Body.String(), want)
		}
	}
}

func TestAPIHandler_RoutesAPI(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scenario", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Scenario string `json:"scenario"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Scenario != "NORMAL" {
		t.Errorf("scenario = %q, want NORMAL", body.Scenario)
	}
}

func TestAPIHandler_StreamBypassesRouter(t *testing.T) {
	t.Parallel()

	// a plain GET is not an upgrade; the hub rejects it rather than chi 404ing
	rec := httptest.NewRecorder()
	testHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, streamPath, nil))

	if rec.Code == http.StatusNotFound || rec.Code < 400 || rec.Code >= 500 {
		t.Errorf("status = %d, want a websocket handshake rejection", rec.Code)
	}
}

func TestAPIHandler_UnknownRoute(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
