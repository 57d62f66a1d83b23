// Package slack posts blind-spot DANGER notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/alert"
	"github.com/linnemanlabs/blindspot/internal/monitor"
)

const (
	maxHeaderLen = 150 // Slack plain_text header limit
	maxFieldLen  = 2000
	maxFields    = 10 // Slack section field limit
	httpTimeout  = 10 * time.Second
)

// Notifier sends DANGER snapshots to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Notify posts snap to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, snap *monitor.Snapshot) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(snap))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "danger notification sent", "cycle_id", snap.CycleID, "alerts", len(snap.Alerts))
	return nil
}

func buildMessage(s *monitor.Snapshot) map[string]any {
	return map[string]any{
		"text": headerText(s), // notification fallback
		"blocks": []map[string]any{
			headerBlock(s),
			{"type": "divider"},
			fieldsBlock(s),
			{"type": "divider"},
			contextBlock(s),
		},
	}
}

func headerText(s *monitor.Snapshot) string {
	if len(s.Alerts) == 0 {
		return levelEmoji(alert.LevelSafe) + " " + alert.AllClearExplanation
	}
	top := s.Alerts[0]
	return truncate(fmt.Sprintf("%s %s: %s", levelEmoji(top.ThreatLevel), top.ThreatLevel, top.ThreatExplanation), maxHeaderLen)
}

func headerBlock(s *monitor.Snapshot) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": headerText(s),
		},
	}
}

func fieldsBlock(s *monitor.Snapshot) map[string]any {
	fields := make([]map[string]any, 0, min(len(s.Alerts), maxFields))
	for i, a := range s.Alerts {
		if i == maxFields {
			break
		}
		text := fmt.Sprintf("%s *%s* %s\n%.1fm • TTC %.1fs\n%s",
			levelEmoji(a.ThreatLevel), a.ThreatLevel, a.ObjectType,
			a.DistanceMeters, a.TTCSeconds, a.ThreatExplanation)
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": truncate(text, maxFieldLen),
		})
	}
	if len(fields) == 0 {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": "_No alerts._"})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func contextBlock(s *monitor.Snapshot) map[string]any {
	ts := s.EvaluatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	text := fmt.Sprintf("blindspot • cycle %s • %s • %s", s.CycleID, s.Scenario, ts.UTC().Format("2006-01-02 15:04:05 UTC"))
	if extra := len(s.Alerts) - maxFields; extra > 0 {
		text += fmt.Sprintf(" • %d more alerts not shown", extra)
	}

	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": text},
		},
	}
}

func levelEmoji(level alert.ThreatLevel) string {
	switch level {
	case alert.LevelDanger:
		return "\U0001f534" // red circle
	case alert.LevelWarning:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
