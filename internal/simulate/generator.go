// Package simulate generates synthetic blind-spot sensor readings for the
// scenarios the dashboard can select, and keeps a rolling window of recent
// batches.
package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

// Scenario selects the traffic pattern the generator produces.
type Scenario string

const (
	// ScenarioNormal is regular traffic with the occasional car at a safe distance.
	ScenarioNormal Scenario = "NORMAL"

	// ScenarioBikeOvertaking is a cyclist entering the blind spot from the rear.
	ScenarioBikeOvertaking Scenario = "BIKE_OVERTAKING"

	// ScenarioPedestrianCrossing is a pedestrian walking close to the front-left wheel.
	ScenarioPedestrianCrossing Scenario = "PEDESTRIAN_CROSSING"

	// ScenarioSuddenCutIn is a car swerving into the bus path at speed.
	ScenarioSuddenCutIn Scenario = "SUDDEN_CUT_IN"

	// ScenarioReplay plays back the loaded Script, one batch per tick.
	ScenarioReplay Scenario = "REPLAY"
)

// Scenarios lists every scenario in display order.
var Scenarios = []Scenario{
	ScenarioNormal,
	ScenarioBikeOvertaking,
	ScenarioPedestrianCrossing,
	ScenarioSuddenCutIn,
	ScenarioReplay,
}

// ParseScenario accepts a scenario name case-insensitively.
func ParseScenario(s string) (Scenario, error) {
	want := Scenario(strings.ToUpper(strings.TrimSpace(s)))
	for _, sc := range Scenarios {
		if sc == want {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown scenario %q", s)
}

// normalTrafficChance is the probability NORMAL emits a car on a given tick.
const normalTrafficChance = 0.3

// Generator produces one batch of readings per call for the active scenario.
// Readings in the approach scenarios are periodic in wall-clock time.
type Generator struct {
	mu       sync.RWMutex
	scenario Scenario
	now      func() time.Time
	rand     func() float64
	replay   player
}

// NewGenerator returns a generator for the given scenario using the real
// clock and the global random source.
func NewGenerator(scenario Scenario) *Generator {
	return &Generator{
		scenario: scenario,
		now:      time.Now,
		rand:     rand.Float64,
	}
}

// Scenario returns the active scenario.
func (g *Generator) Scenario() Scenario {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scenario
}

// SetScenario switches the active scenario for subsequent batches.
func (g *Generator) SetScenario(s Scenario) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scenario = s
}

// SetScript replaces the replay script and restarts playback from its first batch.
func (g *Generator) SetScript(s *Script) {
	g.replay.load(s)
}

// Generate returns the readings for the current instant.
func (g *Generator) Generate() []alert.SensedObject {
	g.mu.RLock()
	scenario, now, rnd := g.scenario, g.now, g.rand
	g.mu.RUnlock()

	ms := now().UnixMilli()

	switch scenario {
	case ScenarioBikeOvertaking:
		p := float64(ms%5000) / 1000
		return []alert.SensedObject{{
			ObjectType:     alert.ObjectBike,
			DistanceMeters: math.Max(1, 5-p),
			SpeedMps:       2,
			TTCSeconds:     math.Max(0.5, (5-p)/2),
		}}
	case ScenarioPedestrianCrossing:
		p := float64(ms%3000) / 1000
		return []alert.SensedObject{{
			ObjectType:     alert.ObjectPedestrian,
			DistanceMeters: math.Max(0.5, 3-p),
			SpeedMps:       1.5,
			TTCSeconds:     math.Max(0.2, (3-p)/1.5),
		}}
	case ScenarioReplay:
		return g.replay.step()
	case ScenarioSuddenCutIn:
		p := float64(ms%4000) / 400
		return []alert.SensedObject{{
			ObjectType:     alert.ObjectCar,
			DistanceMeters: math.Max(2, 10-p),
			SpeedMps:       8,
			TTCSeconds:     math.Max(0.8, (10-p)/8),
		}}
	default:
		if rnd() >= normalTrafficChance {
			return []alert.SensedObject{}
		}
		return []alert.SensedObject{{
			ObjectType:     alert.ObjectCar,
			DistanceMeters: 15 + rnd()*10,
			SpeedMps:       1,
			TTCSeconds:     20,
		}}
	}
}
