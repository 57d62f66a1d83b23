package prioritize

import (
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

// TTC thresholds in seconds. Below DangerTTC is DANGER, up to and including
// WarningTTC is WARNING, anything above is SAFE.
const (
	DangerTTC  = 2.0
	WarningTTC = 5.0
)

// Level maps a time-to-collision to its threat tier.
// Negative values are DANGER by the same threshold. NaN is DANGER: an
// unknown TTC is never reported as safe.
func Level(ttcSeconds float64) alert.ThreatLevel {
	switch {
	case math.IsNaN(ttcSeconds), ttcSeconds < DangerTTC:
		return alert.LevelDanger
	case ttcSeconds <= WarningTTC:
		return alert.LevelWarning
	default:
		return alert.LevelSafe
	}
}

// Explain returns the driver-facing sentence for an object at a given tier.
func Explain(obj alert.ObjectType, level alert.ThreatLevel) string {
	name := capitalize(string(obj))
	switch level {
	case alert.LevelDanger:
		return name + " very close, immediate collision risk."
	case alert.LevelWarning:
		return name + " approaching, potential conflict."
	default:
		return name + " at safe distance."
	}
}

// Classify assigns a tier and explanation to one reading. It never fails
// and does not validate the reading.
func Classify(o alert.SensedObject) (alert.ThreatLevel, string) {
	level := Level(o.TTCSeconds)
	return level, Explain(o.ObjectType, level)
}

// capitalize upper-cases the first letter and leaves the rest unchanged.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
