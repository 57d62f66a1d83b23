package alertapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/blindspot/internal/alert"
	"github.com/linnemanlabs/blindspot/internal/simulate"
)

// handlePrioritize runs one synchronous cycle over the posted readings
// without touching the monitor's current view. It waits for any running
// cycle, so at most one prioritization is ever in flight.
func (a *API) handlePrioritize(w http.ResponseWriter, r *http.Request) {
	var in alert.Readings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validateReadings(in.SimulatedData); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.SimulatedData == nil {
		in.SimulatedData = []alert.SensedObject{}
	}

	snap, err := a.mon.Evaluate(r.Context(), in.SimulatedData)
	if err != nil {
		a.logger.Warn(r.Context(), "what-if evaluation abandoned", "error", err)
		writeError(w, http.StatusServiceUnavailable, "evaluation unavailable")
		return
	}
	annotate(r.Context(), snap)

	w.Header().Set("X-Cycle-Id", snap.CycleID)
	writeJSON(w, http.StatusOK, alert.Prioritized{PrioritizedAlerts: snap.Alerts})
}

func validateReadings(readings []alert.SensedObject) error {
	for i, o := range readings {
		if !o.ObjectType.Sensed() {
			return fmt.Errorf("simulatedData[%d]: unknown object type %q", i, o.ObjectType)
		}
	}
	return nil
}

func (a *API) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap := a.mon.Current()
	annotate(r.Context(), snap)
	writeJSON(w, http.StatusOK, snap)
}

type readingsResponse struct {
	Scenario simulate.Scenario      `json:"scenario"`
	Batches  [][]alert.SensedObject `json:"batches"`
}

func (a *API) handleReadings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, readingsResponse{
		Scenario: a.mon.Scenario(),
		Batches:  a.mon.Readings(),
	})
}

type scenarioBody struct {
	Scenario string `json:"scenario"`
}

func (a *API) handleGetScenario(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scenarioBody{Scenario: string(a.mon.Scenario())})
}

func (a *API) handleSetScenario(w http.ResponseWriter, r *http.Request) {
	var in scenarioBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sc, err := simulate.ParseScenario(in.Scenario)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("blindspot.scenario", string(sc)))

	a.mon.SetScenario(r.Context(), sc)
	writeJSON(w, http.StatusOK, scenarioBody{Scenario: string(sc)})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	a.mon.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
