// Package alertapi exposes the prioritizer and the monitor's current view
// over HTTP for the rendering layer.
package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/blindspot/internal/alert"
	"github.com/linnemanlabs/blindspot/internal/authmw"
	"github.com/linnemanlabs/blindspot/internal/monitor"
	"github.com/linnemanlabs/blindspot/internal/simulate"
)

// Monitor defines the monitor operations alertapi needs.
type Monitor interface {
	Evaluate(ctx context.Context, readings []alert.SensedObject) (*monitor.Snapshot, error)
	Current() *monitor.Snapshot
	Readings() [][]alert.SensedObject
	Scenario() simulate.Scenario
	SetScenario(ctx context.Context, sc simulate.Scenario)
	Reset(ctx context.Context)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	mon    Monitor
	token  string
}

// New creates a new API handler. token guards the control routes; empty
// disables the check.
func New(logger log.Logger, mon Monitor, token string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if mon == nil {
		panic(xerrors.New("monitor is required"))
	}
	return &API{
		logger: logger,
		mon:    mon,
		token:  token,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/prioritize", a.handlePrioritize)
		r.Get("/alerts", a.handleCurrent)
		r.Get("/readings", a.handleReadings)
		r.Get("/scenario", a.handleGetScenario)

		r.Group(func(r chi.Router) {
			r.Use(authmw.BearerToken(a.token))
			r.Put("/scenario", a.handleSetScenario)
			r.Post("/reset", a.handleReset)
		})
	})
}

func annotate(ctx context.Context, snap *monitor.Snapshot) {
	span := trace.SpanFromContext(ctx)
	attrs := []attribute.KeyValue{
		attribute.String("blindspot.scenario", string(snap.Scenario)),
		attribute.Int("blindspot.readings.count", len(snap.Readings)),
		attribute.Int("blindspot.alerts.count", len(snap.Alerts)),
	}
	if snap.CycleID != "" {
		attrs = append(attrs, attribute.String("blindspot.cycle.id", snap.CycleID))
	}
	if len(snap.Alerts) > 0 {
		attrs = append(attrs, attribute.String("blindspot.alerts.top_level", string(snap.Alerts[0].ThreatLevel)))
	}
	span.SetAttributes(attrs...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
