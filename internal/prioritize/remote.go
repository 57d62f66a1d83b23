package prioritize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

const (
	DefaultTimeout = 8 * time.Second
	ResponseTokens = 2048
)

var (
	// ErrMalformed means the provider's reply could not be read as an alert list.
	ErrMalformed = errors.New("malformed remote response")

	// ErrNonConforming means the reply parsed but broke the classification rules.
	ErrNonConforming = errors.New("remote response does not follow classification rules")
)

var tracer = otel.Tracer("github.com/linnemanlabs/blindspot/internal/prioritize")

// Remote asks a Provider to prioritize a whole batch in one call and falls
// back to the deterministic rule when the call or its output fails.
type Remote struct {
	provider Provider
	model    string
	timeout  time.Duration
	strict   bool
	logger   log.Logger
	hooks    Hooks
}

// NewRemote creates a remote-backed Prioritizer. It does not check whether
// the remote path is enabled; use New for that.
func NewRemote(opts Options) *Remote {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Remote{
		provider: opts.Provider,
		model:    opts.Model,
		timeout:  opts.Timeout,
		strict:   opts.Strict,
		logger:   opts.Logger,
		hooks:    opts.Hooks,
	}
}

// Prioritize implements Prioritizer. Remote failures are logged and the
// cycle is recomputed locally, so the caller always gets a valid list.
func (r *Remote) Prioritize(ctx context.Context, readings []alert.SensedObject) []alert.Alert {
	start := time.Now()

	out, err := r.callRemote(ctx, readings)
	if err == nil {
		r.hooks.cycle(PathRemote, out, start)
		return out
	}

	reason := failureReason(err)
	r.logger.Warn(ctx, "remote prioritization failed, falling back to local rule",
		"reason", reason,
		"error", err,
		"readings", len(readings),
	)
	if r.hooks.OnFallback != nil {
		r.hooks.OnFallback(reason)
	}

	out = Prioritize(readings)
	r.hooks.cycle(PathFallback, out, start)
	return out
}

func (r *Remote) callRemote(ctx context.Context, readings []alert.SensedObject) (out []alert.Alert, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "prioritize.remote", trace.WithAttributes(
		attribute.Int("blindspot.readings", len(readings)),
		attribute.String("gen_ai.request.model", r.model),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	callStart := time.Now()
	resp, err := r.provider.Send(ctx, &LLMRequest{
		MaxTokens: ResponseTokens,
		System:    buildSystemPrompt(),
		Messages: []Message{
			{Role: "user", Content: []ContentBlock{{Type: "text", Text: buildUserPrompt(readings)}}},
		},
	})
	if r.hooks.OnRemoteCall != nil {
		var in, outTok int
		if resp != nil {
			in, outTok = resp.Usage.InputTokens, resp.Usage.OutputTokens
		}
		r.hooks.OnRemoteCall(in, outTok, time.Since(callStart).Seconds(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("provider send: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrMalformed)
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)

	if resp.StopReason == StopMaxTokens {
		return nil, fmt.Errorf("%w: response truncated at max tokens", ErrMalformed)
	}

	out, err = parseAlerts(resp.Text())
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return []alert.Alert{alert.AllClear()}, nil
	}

	if r.strict {
		if err := conforms(readings, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parseAlerts reads the provider's JSON reply. Code fences and surrounding
// prose are tolerated; unknown enum values and a missing list are not.
func parseAlerts(text string) ([]alert.Alert, error) {
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last < first {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	var payload struct {
		PrioritizedAlerts *[]alert.Alert `json:"prioritizedAlerts"`
	}
	if err := json.Unmarshal([]byte(text[first:last+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if payload.PrioritizedAlerts == nil {
		return nil, fmt.Errorf("%w: missing prioritizedAlerts", ErrMalformed)
	}

	alerts := *payload.PrioritizedAlerts
	for i, a := range alerts {
		if !a.ThreatLevel.Valid() {
			return nil, fmt.Errorf("%w: alert %d: unknown threat level %q", ErrMalformed, i, a.ThreatLevel)
		}
		if !a.ObjectType.Valid() {
			return nil, fmt.Errorf("%w: alert %d: unknown object type %q", ErrMalformed, i, a.ObjectType)
		}
		if strings.TrimSpace(a.ThreatExplanation) == "" {
			return nil, fmt.Errorf("%w: alert %d: empty explanation", ErrMalformed, i)
		}
	}
	return alerts, nil
}

// conforms checks a remote result against the deterministic rule: same
// tiers, SAFE filtered, ascending TTC, and all-clear only when every
// reading is SAFE. Explanations are free text and are not compared.
func conforms(readings []alert.SensedObject, alerts []alert.Alert) error {
	want := Prioritize(readings)

	if len(want) == 1 && want[0].IsAllClear() {
		if len(alerts) == 1 && alerts[0].IsAllClear() {
			return nil
		}
		return fmt.Errorf("%w: expected all-clear, got %d alerts", ErrNonConforming, len(alerts))
	}

	if len(alerts) != len(want) {
		return fmt.Errorf("%w: got %d alerts, want %d", ErrNonConforming, len(alerts), len(want))
	}
	for i, a := range alerts {
		if a.ThreatLevel == alert.LevelSafe || a.ObjectType == alert.ObjectSystem {
			return fmt.Errorf("%w: alert %d is SAFE or system", ErrNonConforming, i)
		}
		if a.ThreatLevel != Level(a.TTCSeconds) {
			return fmt.Errorf("%w: alert %d: level %s for ttc %g", ErrNonConforming, i, a.ThreatLevel, a.TTCSeconds)
		}
		if i > 0 && a.TTCSeconds < alerts[i-1].TTCSeconds {
			return fmt.Errorf("%w: alert %d out of ttc order", ErrNonConforming, i)
		}
		if a.ObjectType != want[i].ObjectType || a.TTCSeconds != want[i].TTCSeconds {
			return fmt.Errorf("%w: alert %d does not match reading %s@%gs", ErrNonConforming, i, want[i].ObjectType, want[i].TTCSeconds)
		}
	}
	return nil
}

// failureReason buckets a remote error for logs and metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrNonConforming):
		return "nonconforming"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "transport"
	}
}
