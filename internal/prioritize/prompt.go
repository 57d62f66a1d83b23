package prioritize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

// buildSystemPrompt gives the provider the fixed classification rules and the required output shape.
func buildSystemPrompt() string {
	return fmt.Sprintf(`You are an intelligent blind spot detection system on a city bus. You analyze sensor data for objects near the bus, prioritize potential threats, and write concise, actionable alerts for the driver.

Categorize each object's threat level from its Time-to-Collision (TTC):
- DANGER: TTC is less than %[1]g seconds. Immediate action required.
- WARNING: TTC is between %[1]g and %[2]g seconds (inclusive). Increased awareness needed.
- SAFE: TTC is greater than %[2]g seconds. No immediate threat.

Rules:
- Only include alerts that are WARNING or DANGER.
- Order alerts by ascending ttcSeconds (lowest TTC first). Keep input order for equal TTC.
- Copy objectType, distanceMeters and ttcSeconds from the input unchanged.
- If no object is WARNING or DANGER, return exactly one alert: {"threatLevel":"SAFE","objectType":"system","distanceMeters":0,"ttcSeconds":0,"threatExplanation":"%[3]s"}
- threatExplanation is one short sentence for the driver, no jargon.

Example DANGER explanation: "Pedestrian very close, immediate collision risk."
Example WARNING explanation: "Car approaching fast, potential conflict."

Respond with JSON only, no prose and no code fences, in exactly this shape:
{"prioritizedAlerts":[{"threatLevel":"DANGER|WARNING|SAFE","objectType":"car|bike|pedestrian|system","distanceMeters":0,"ttcSeconds":0,"threatExplanation":"..."}]}`,
		DangerTTC, WarningTTC, alert.AllClearExplanation)
}

// buildUserPrompt lists the cycle's readings, once as text and once as JSON.
func buildUserPrompt(readings []alert.SensedObject) string {
	var b strings.Builder
	b.WriteString("Simulated Sensor Data:\n")
	if len(readings) == 0 {
		b.WriteString("(no objects detected)\n")
	}
	for _, o := range readings {
		fmt.Fprintf(&b, "- Object Type: %s, Distance: %sm, Relative Speed: %sm/s, TTC: %ss\n",
			o.ObjectType, num(o.DistanceMeters), num(o.SpeedMps), num(o.TTCSeconds))
	}

	// marshal fails on NaN/Inf, the text listing above still carries those readings
	if raw, err := json.Marshal(alert.Readings{SimulatedData: nonNil(readings)}); err == nil {
		b.WriteString("\nJSON:\n")
		b.Write(raw)
		b.WriteString("\n")
	}
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func nonNil(r []alert.SensedObject) []alert.SensedObject {
	if r == nil {
		return []alert.SensedObject{}
	}
	return r
}
