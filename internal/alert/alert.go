// Package alert defines the sensor readings and driver-facing alerts that
// flow through the blind-spot pipeline.
package alert

// ObjectType identifies what a sensor detected.
type ObjectType string

const (
	ObjectCar        ObjectType = "car"
	ObjectBike       ObjectType = "bike"
	ObjectPedestrian ObjectType = "pedestrian"

	// ObjectSystem is reserved for the synthetic all-clear alert.
	ObjectSystem ObjectType = "system"
)

// Valid reports whether t is a known object type, including system.
func (t ObjectType) Valid() bool {
	switch t {
	case ObjectCar, ObjectBike, ObjectPedestrian, ObjectSystem:
		return true
	}
	return false
}

// Sensed reports whether t is a type a sensor can report (car, bike, pedestrian).
func (t ObjectType) Sensed() bool {
	return t != ObjectSystem && t.Valid()
}

// ThreatLevel is the tier assigned to a sensed object for one cycle.
type ThreatLevel string

const (
	// LevelSafe means no immediate threat.
	LevelSafe ThreatLevel = "SAFE"

	// LevelWarning means increased awareness is needed.
	LevelWarning ThreatLevel = "WARNING"

	// LevelDanger means immediate action is required.
	LevelDanger ThreatLevel = "DANGER"
)

// Valid reports whether l is one of SAFE, WARNING or DANGER.
func (l ThreatLevel) Valid() bool {
	switch l {
	case LevelSafe, LevelWarning, LevelDanger:
		return true
	}
	return false
}

// SensedObject is one detected entity for one tick.
type SensedObject struct {
	ObjectType     ObjectType `json:"objectType"`
	DistanceMeters float64    `json:"distanceMeters"`
	// SpeedMps is the relative speed, positive when closing. Not enforced.
	SpeedMps   float64 `json:"speedMps"`
	TTCSeconds float64 `json:"ttcSeconds"`
}

// Alert is one prioritized, driver-facing alert.
type Alert struct {
	ThreatLevel       ThreatLevel `json:"threatLevel"`
	ObjectType        ObjectType  `json:"objectType"`
	DistanceMeters    float64     `json:"distanceMeters"`
	TTCSeconds        float64     `json:"ttcSeconds"`
	ThreatExplanation string      `json:"threatExplanation"`
}

// AllClearExplanation is the explanation carried by the synthetic all-clear alert.
const AllClearExplanation = "All blind spots clear."

// AllClear returns the synthetic system alert used when nothing is above SAFE.
func AllClear() Alert {
	return Alert{
		ThreatLevel:       LevelSafe,
		ObjectType:        ObjectSystem,
		DistanceMeters:    0,
		TTCSeconds:        0,
		ThreatExplanation: AllClearExplanation,
	}
}

// IsAllClear reports whether a is the synthetic all-clear alert.
func (a Alert) IsAllClear() bool {
	return a.ObjectType == ObjectSystem && a.ThreatLevel == LevelSafe
}

// Readings is the wire envelope for a batch of sensor readings.
type Readings struct {
	SimulatedData []SensedObject `json:"simulatedData"`
}

// Prioritized is the wire envelope for a prioritized alert list.
type Prioritized struct {
	PrioritizedAlerts []Alert `json:"prioritizedAlerts"`
}
