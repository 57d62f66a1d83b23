// Blindspot watches simulated blind-spot sensor readings around a bus and
// serves a prioritized list of collision alerts for the driver display.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	bc "github.com/linnemanlabs/blindspot/internal/cfg"
	"github.com/linnemanlabs/blindspot/internal/llm/claude"
	"github.com/linnemanlabs/blindspot/internal/monitor"
	"github.com/linnemanlabs/blindspot/internal/notify/slack"
	"github.com/linnemanlabs/blindspot/internal/prioritize"
	"github.com/linnemanlabs/blindspot/internal/simulate"
	"github.com/linnemanlabs/blindspot/internal/stream"
)

const (
	appName   = "blindspot"
	component = "server"
	envPrefix = "BLINDSPOT_"
)

// configs holds every package's flag-backed settings.
type configs struct {
	app   bc.Config
	http  httpserver.Config
	mw    httpmw.Config
	log   log.Config
	ops   opshttp.Config
	prof  prof.Config
	trace otelx.Config
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var c configs
	fs := flag.CommandLine
	c.app.RegisterFlags(fs)
	c.http.RegisterFlags(fs)
	c.mw.RegisterFlags(fs)
	c.log.RegisterFlags(fs)
	c.ops.RegisterFlags(fs)
	c.prof.RegisterFlags(fs)
	c.trace.RegisterFlags(fs)
	showVersion := fs.Bool("V", false, "Print version+build information and exit")

	// flags first; env only fills what the command line left unset
	flag.Parse()
	if *showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}
	cfg.FillFromEnv(fs, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	// remote path availability is decided once here and never re-read
	c.app.ClaudeAPIKey = c.app.ResolveAPIKey(os.Getenv)

	if err := c.validate(); err != nil {
		return err
	}

	lg, err := log.New(c.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "starting blindspot",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", c.app.APIPort,
		"admin_port", c.ops.Port,
		"enable_pyroscope", c.prof.EnablePyroscope,
		"enable_tracing", c.trace.EnableTracing,
		"otlp_endpoint", c.trace.OTLPEndpoint,
		"trusted_proxy_hops", c.mw.TrustedProxyHops,
		"remote_enabled", c.app.RemoteEnabled(),
		"remote_strict", c.app.RemoteStrict,
		"tick_interval", c.app.TickInterval.String(),
		"window_size", c.app.WindowSize,
		"scenario", c.app.Scenario,
		"replay_file", c.app.ReplayFile,
		"slack_enabled", c.app.SlackWebhookURL != "",
		"api_token_set", c.app.APIToken != "",
	)

	// profiling starts before anything else worth profiling
	profOpts := c.prof.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", c.prof.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	traceOpts := c.trace.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && c.prof.EnablePyroscope)

	prioMetrics := prioritize.NewMetrics(m.Registry())
	prioritizer := newPrioritizer(ctx, &c.app, L, prioMetrics.Hooks())

	var notifier monitor.Notifier
	if c.app.SlackWebhookURL != "" {
		notifier = slack.New(c.app.SlackWebhookURL, L)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	hub := stream.NewHub(L, c.app.Origins(), stream.NewMetrics(m.Registry()))

	gen, err := newGenerator(ctx, &c.app, L)
	if err != nil {
		return err
	}

	mon := monitor.NewService(
		gen,
		simulate.NewWindow(c.app.WindowSize),
		prioritizer,
		L,
		monitor.NewMetrics(m.Registry()),
		notifier,
		hub,
	)

	// the loop outlives the signal; shutdown stops it in order
	monCtx, stopMonitor := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMonitor()
	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(monCtx, c.app.TickInterval) }()

	if c.app.ReplayFile != "" {
		go func() {
			if err := simulate.WatchScript(monCtx, c.app.ReplayFile, gen, L); err != nil {
				L.Error(ctx, err, "replay script watcher stopped")
			}
		}()
	}

	// readiness fails once shutdown starts so the load balancer drains us
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := c.ops.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// ops listener is internal only: opshttp rejects public and forwarded clients
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		if err := opsHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	handler := newAPIHandler(L, &c, mon, hub,
		health.HealthzHandler(liveness), health.ReadyzHandler(readiness),
		func(h http.Handler) http.Handler { return m.Middleware(h) })

	httpOpts, err := c.http.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", c.app.APIPort), handler, L, httpOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	defer func() {
		if err := apiHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop api http listener")
		}
	}()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	drain(L, c.app.DrainSeconds)

	shutdown(L, c.app.ShutdownBudgetSeconds, []stopFn{
		{"monitor", func(ctx context.Context) error {
			stopMonitor()
			select {
			case err := <-monDone:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		{"stream hub", func(context.Context) error {
			hub.Close()
			return nil
		}},
		{"api http server", apiHTTPStop},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	})

	if stopProf != nil {
		stopProf()
	}

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// validate joins every package's validation with the checks only main can do.
func (c *configs) validate() error {
	if err := errors.Join(
		c.app.Validate(),
		c.http.Validate(),
		c.mw.Validate(),
		c.log.Validate(),
		c.ops.Validate(),
		c.prof.Validate(),
		c.trace.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if c.app.APIPort == c.ops.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", c.app.APIPort)
	}
	return nil
}

// newPrioritizer builds the remote-backed prioritizer when a usable key was
// resolved and the local rule otherwise. No provider exists without a key.
func newPrioritizer(ctx context.Context, c *bc.Config, L log.Logger, hooks prioritize.Hooks) prioritize.Prioritizer {
	opts := prioritize.Options{
		RemoteEnabled: c.RemoteEnabled(),
		Model:         c.ClaudeModel,
		Timeout:       c.RemoteTimeout,
		Strict:        c.RemoteStrict,
		Logger:        L,
		Hooks:         hooks,
	}
	if opts.RemoteEnabled {
		opts.Provider = claude.New(c.ClaudeAPIKey, c.ClaudeModel)
		L.Info(ctx, "initialized LLM provider", "provider", "claude", "model", c.ClaudeModel, "strict", c.RemoteStrict)
	} else {
		L.Info(ctx, "no usable claude API key, using local prioritization rule only")
	}
	return prioritize.New(opts)
}

// newGenerator creates the reading generator for the configured scenario and
// loads the replay script when one is set. Config is already validated.
func newGenerator(ctx context.Context, c *bc.Config, L log.Logger) (*simulate.Generator, error) {
	scenario, err := simulate.ParseScenario(c.Scenario)
	if err != nil {
		return nil, err
	}
	gen := simulate.NewGenerator(scenario)
	if c.ReplayFile == "" {
		return gen, nil
	}

	script, err := simulate.LoadScript(c.ReplayFile)
	if err != nil {
		return nil, fmt.Errorf("load replay script: %w", err)
	}
	gen.SetScript(script)
	L.Info(ctx, "replay script loaded", "path", c.ReplayFile, "name", script.Name, "batches", len(script.Batches))
	return gen, nil
}

func notifySystemd() error {
	// NOTIFY_SOCKET is set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
