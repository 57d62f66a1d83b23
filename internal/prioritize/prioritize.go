package prioritize

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

// Prioritizer turns one evaluation cycle's readings into the alert list
// handed to the rendering layer. Implementations never return an empty list
// and never return an error.
type Prioritizer interface {
	Prioritize(ctx context.Context, readings []alert.SensedObject) []alert.Alert
}

// Path records which implementation produced a cycle's alerts.
type Path string

const (
	PathLocal    Path = "local"
	PathRemote   Path = "remote"
	PathFallback Path = "fallback"
)

// Hooks are optional callbacks for instrumentation. Nil fields are skipped.
type Hooks struct {
	// OnCycle fires once per Prioritize call with the path that produced the result.
	OnCycle func(path Path, alerts []alert.Alert, duration float64)

	// OnRemoteCall fires after every provider call, successful or not.
	OnRemoteCall func(inputTokens, outputTokens int, duration float64, err error)

	// OnFallback fires when the remote result is discarded.
	OnFallback func(reason string)
}

func (h Hooks) cycle(path Path, alerts []alert.Alert, start time.Time) {
	if h.OnCycle != nil {
		h.OnCycle(path, alerts, time.Since(start).Seconds())
	}
}

// Prioritize classifies every reading, drops SAFE ones, and stable-sorts the
// rest by ascending TTC. When nothing remains it returns the single
// all-clear alert. The input slice is not modified.
func Prioritize(readings []alert.SensedObject) []alert.Alert {
	out := make([]alert.Alert, 0, len(readings))
	for _, o := range readings {
		level, explanation := Classify(o)
		if level == alert.LevelSafe {
			continue
		}
		out = append(out, alert.Alert{
			ThreatLevel:       level,
			ObjectType:        o.ObjectType,
			DistanceMeters:    o.DistanceMeters,
			TTCSeconds:        o.TTCSeconds,
			ThreatExplanation: explanation,
		})
	}

	if len(out) == 0 {
		return []alert.Alert{alert.AllClear()}
	}

	// cmp.Compare orders NaN first, which matches Level treating it as DANGER.
	slices.SortStableFunc(out, func(a, b alert.Alert) int {
		return cmp.Compare(a.TTCSeconds, b.TTCSeconds)
	})
	return out
}

// Local is the deterministic Prioritizer.
type Local struct {
	hooks Hooks
}

// NewLocal returns a deterministic Prioritizer reporting to hooks.
func NewLocal(hooks Hooks) *Local {
	return &Local{hooks: hooks}
}

// Prioritize implements Prioritizer.
func (l *Local) Prioritize(_ context.Context, readings []alert.SensedObject) []alert.Alert {
	start := time.Now()
	out := Prioritize(readings)
	l.hooks.cycle(PathLocal, out, start)
	return out
}

// Options selects and configures a Prioritizer.
type Options struct {
	// RemoteEnabled is resolved once from configuration. When false, or when
	// Provider is nil, the deterministic path is used without any remote call.
	RemoteEnabled bool
	Provider      Provider
	Model         string

	// Timeout bounds a single remote call. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Strict rejects remote output that contradicts the threshold, filter or
	// ordering rules and falls back instead.
	Strict bool

	Logger log.Logger
	Hooks  Hooks
}

// New returns the Prioritizer the options select.
func New(opts Options) Prioritizer {
	if !opts.RemoteEnabled || opts.Provider == nil {
		return NewLocal(opts.Hooks)
	}
	return NewRemote(opts)
}
