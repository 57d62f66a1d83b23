package prioritize

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

func TestMetrics_LocalCycle(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	p := New(Options{Hooks: m.Hooks()})

	_ = p.Prioritize(context.Background(), twoObjects)

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("local")); got != 1 {
		t.Errorf("cycles{local} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AlertsTotal.WithLabelValues("DANGER", "bike")); got != 1 {
		t.Errorf("alerts{DANGER,bike} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AlertsTotal.WithLabelValues("WARNING", "car")); got != 1 {
		t.Errorf("alerts{WARNING,car} = %v, want 1", got)
	}
}

func TestMetrics_RemoteFallback(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	p := New(Options{
		RemoteEnabled: true,
		Provider:      &mockProvider{err: errors.New("unavailable")},
		Logger:        log.Nop(),
		Hooks:         m.Hooks(),
	})

	out := p.Prioritize(context.Background(), nil)
	if len(out) != 1 || !out[0].IsAllClear() {
		t.Fatalf("out = %+v, want all-clear", out)
	}

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("fallback")); got != 1 {
		t.Errorf("cycles{fallback} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("transport")); got != 1 {
		t.Errorf("fallbacks{transport} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RemoteCalls.WithLabelValues("error")); got != 1 {
		t.Errorf("remote_calls{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AlertsTotal.WithLabelValues(string(alert.LevelSafe), string(alert.ObjectSystem))); got != 1 {
		t.Errorf("alerts{SAFE,system} = %v, want 1", got)
	}
}

func TestMetrics_RemoteTokens(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	p := New(Options{
		RemoteEnabled: true,
		Provider:      &mockProvider{text: twoObjectsReply},
		Strict:        true,
		Logger:        log.Nop(),
		Hooks:         m.Hooks(),
	})

	_ = p.Prioritize(context.Background(), twoObjects)

	if got := testutil.ToFloat64(m.TokensIn); got != 120 {
		t.Errorf("tokens in = %v, want 120", got)
	}
	if got := testutil.ToFloat64(m.TokensOut); got != 40 {
		t.Errorf("tokens out = %v, want 40", got)
	}
	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("remote")); got != 1 {
		t.Errorf("cycles{remote} = %v, want 1", got)
	}
}
