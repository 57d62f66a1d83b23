package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/linnemanlabs/blindspot/internal/simulate"
)

// AnthropicAPIKeyEnv is consulted when no claude key is configured.
const AnthropicAPIKeyEnv = "ANTHROPIC_API_KEY"

// placeholderKeys are sample values from docs and templates that must not
// enable the remote path.
var placeholderKeys = []string{
	"your_api_key",
	"your-api-key",
	"changeme",
	"<api-key>",
	"sk-ant-...",
}

// Config adds application configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	ClaudeAPIKey          string
	ClaudeModel           string
	RemoteTimeout         time.Duration
	RemoteStrict          bool
	TickInterval          time.Duration
	WindowSize            int
	Scenario              string
	SlackWebhookURL       string
	APIToken              string
	AllowedOrigins        string
	ReplayFile            string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude remote prioritizer (empty = "+AnthropicAPIKeyEnv+", then local rule only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.DurationVar(&c.RemoteTimeout, "remote-timeout", 8*time.Second, "upper bound on one remote prioritization call (100ms..60s)")
	fs.BoolVar(&c.RemoteStrict, "remote-strict", true, "discard remote output that disagrees with the threshold rule")
	fs.DurationVar(&c.TickInterval, "tick-interval", time.Second, "interval between evaluation cycles (100ms..60s)")
	fs.IntVar(&c.WindowSize, "window-size", simulate.DefaultWindowSize, "number of recent reading batches kept (1..1000)")
	fs.StringVar(&c.Scenario, "scenario", string(simulate.ScenarioNormal), "initial simulation scenario")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for DANGER notifications (empty = disabled)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token for the scenario and reset routes (empty = unauthenticated)")
	fs.StringVar(&c.AllowedOrigins, "allowed-origins", "", "comma-separated Origin host patterns accepted on the stream endpoint")
	fs.StringVar(&c.ReplayFile, "replay-file", "", "YAML script for the REPLAY scenario, reloaded on change (empty = REPLAY plays nothing)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Model only matters when the remote path can run
	if c.RemoteEnabled() && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when a claude API key is set"))
	}

	if c.RemoteTimeout < 100*time.Millisecond || c.RemoteTimeout > time.Minute {
		errs = append(errs, fmt.Errorf("invalid REMOTE_TIMEOUT %s (must be 100ms..60s)", c.RemoteTimeout))
	}
	if c.TickInterval < 100*time.Millisecond || c.TickInterval > time.Minute {
		errs = append(errs, fmt.Errorf("invalid TICK_INTERVAL %s (must be 100ms..60s)", c.TickInterval))
	}
	if c.WindowSize < 1 || c.WindowSize > 1000 {
		errs = append(errs, fmt.Errorf("invalid WINDOW_SIZE %d (must be 1..1000)", c.WindowSize))
	}

	sc, err := simulate.ParseScenario(c.Scenario)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid SCENARIO: %w", err))
	}
	if sc == simulate.ScenarioReplay && strings.TrimSpace(c.ReplayFile) == "" {
		errs = append(errs, errors.New("REPLAY_FILE is required when SCENARIO is REPLAY"))
	}

	if c.SlackWebhookURL != "" {
		u, err := url.Parse(c.SlackWebhookURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, errors.New("invalid SLACK_WEBHOOK_URL (must be an absolute http(s) URL)"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ResolveAPIKey returns the configured claude key, falling back to
// ANTHROPIC_API_KEY from getenv. Placeholder values resolve to "".
func (c *Config) ResolveAPIKey(getenv func(string) string) string {
	key := strings.TrimSpace(c.ClaudeAPIKey)
	if key == "" && getenv != nil {
		key = strings.TrimSpace(getenv(AnthropicAPIKeyEnv))
	}
	if isPlaceholder(key) {
		return ""
	}
	return key
}

// RemoteEnabled reports whether ClaudeAPIKey holds a usable key. Call after
// ResolveAPIKey has been applied; the result is fixed for the process.
func (c *Config) RemoteEnabled() bool {
	key := strings.TrimSpace(c.ClaudeAPIKey)
	return key != "" && !isPlaceholder(key)
}

// Origins splits AllowedOrigins into patterns, dropping empty entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func isPlaceholder(key string) bool {
	for _, p := range placeholderKeys {
		if strings.EqualFold(key, p) {
			return true
		}
	}
	return false
}
