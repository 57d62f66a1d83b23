package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/alert"
	"github.com/linnemanlabs/blindspot/internal/monitor"
	"github.com/linnemanlabs/blindspot/internal/simulate"
)

func dangerSnapshot() *monitor.Snapshot {
	return &monitor.Snapshot{
		CycleID:     "01JN123",
		Scenario:    simulate.ScenarioBikeOvertaking,
		EvaluatedAt: time.Date(2026, 2, 26, 14, 23, 5, 0, time.UTC),
		Alerts: []alert.Alert{
			{
				ThreatLevel:       alert.LevelDanger,
				ObjectType:        alert.ObjectBike,
				DistanceMeters:    2,
				TTCSeconds:        1,
				ThreatExplanation: "Bike very close, immediate collision risk.",
			},
			{
				ThreatLevel:       alert.LevelWarning,
				ObjectType:        alert.ObjectCar,
				DistanceMeters:    8,
				TTCSeconds:        3.5,
				ThreatExplanation: "Car approaching, potential conflict.",
			},
		},
	}
}

func TestNotify_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	if err := n.Notify(context.Background(), dangerSnapshot()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, context = 5 blocks
	if len(blocks) != 5 {
		t.Fatalf("blocks count = %d, want 5", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "DANGER: Bike very close") {
		t.Errorf("header text = %q, want the most urgent alert", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for DANGER")
	}

	fields := blocks[2].(map[string]any)["fields"].([]any)
	if len(fields) != 2 {
		t.Fatalf("fields = %d, want one per alert", len(fields))
	}
	second := fields[1].(map[string]any)["text"].(string)
	if !strings.Contains(second, "*WARNING* car") || !strings.Contains(second, "8.0m • TTC 3.5s") {
		t.Errorf("second field = %q", second)
	}

	ctxBlock := blocks[4].(map[string]any)["elements"].([]any)[0].(map[string]any)["text"].(string)
	for _, want := range []string{"01JN123", "BIKE_OVERTAKING", "2026-02-26 14:23:05 UTC"} {
		if !strings.Contains(ctxBlock, want) {
			t.Errorf("context = %q, want to contain %q", ctxBlock, want)
		}
	}

	if got["text"] != headerText {
		t.Errorf("fallback text = %v, want header text", got["text"])
	}
}

func TestNotify_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", nil)
	if n.Enabled() {
		t.Error("Enabled() = true with empty URL")
	}
	if err := n.Notify(context.Background(), &monitor.Snapshot{}); err != nil {
		t.Fatalf("Notify with empty URL should be no-op, got: %v", err)
	}
}

func TestNotify_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	err := n.Notify(context.Background(), dangerSnapshot())
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}

func TestNotify_CanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := New(srv.URL, log.Nop()).Notify(ctx, dangerSnapshot()); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestBuildMessage_CapsFields(t *testing.T) {
	t.Parallel()

	snap := dangerSnapshot()
	for i := range 12 {
		snap.Alerts = append(snap.Alerts, alert.Alert{
			ThreatLevel:       alert.LevelWarning,
			ObjectType:        alert.ObjectPedestrian,
			DistanceMeters:    float64(i),
			TTCSeconds:        4,
			ThreatExplanation: "Pedestrian approaching, potential conflict.",
		})
	}

	blocks := buildMessage(snap)["blocks"].([]map[string]any)
	fields := blocks[2]["fields"].([]map[string]any)
	if len(fields) != maxFields {
		t.Errorf("fields = %d, want %d", len(fields), maxFields)
	}
	ctxText := blocks[4]["elements"].([]map[string]any)[0]["text"].(string)
	if !strings.Contains(ctxText, fmt.Sprintf("%d more alerts", len(snap.Alerts)-maxFields)) {
		t.Errorf("context = %q, want overflow note", ctxText)
	}
}

func TestLevelEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level alert.ThreatLevel
		want  string
	}{
		{alert.LevelDanger, "\U0001f534"},
		{alert.LevelWarning, "\U0001f7e1"},
		{alert.LevelSafe, "\U0001f7e2"},
		{"", "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			t.Parallel()
			if got := levelEmoji(tt.level); got != tt.want {
				t.Errorf("levelEmoji(%q) = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"long", "abcdefghij", 8, "abcde..."},
		{"rune boundary", "aaééé", 6, "aa..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := truncate(tt.in, tt.limit)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("bike", "DANGER", "Bike very close, immediate collision risk.", "01JN123")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "WARNING", "*bold* _italic_ ~strike~", "id")
	f.Add("car\x00\x01\x02", "lvl\nline", "explanation\ttab", "i\x00d")
	f.Add(strings.Repeat("A", 5000), "DANGER", strings.Repeat("x", 10000), "cycle")
	f.Add("pedestrian", "SAFE", "```code block``` and <http://example.com|link>", "x")

	f.Fuzz(func(t *testing.T, object, level, explanation, cycleID string) {
		snap := &monitor.Snapshot{
			CycleID:     cycleID,
			Scenario:    simulate.ScenarioNormal,
			EvaluatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Alerts: []alert.Alert{{
				ThreatLevel:       alert.ThreatLevel(level),
				ObjectType:        alert.ObjectType(object),
				DistanceMeters:    1,
				TTCSeconds:        1,
				ThreatExplanation: explanation,
			}},
		}

		// Must not panic
		msg := buildMessage(snap)

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}

		blocks, ok := decoded["blocks"].([]any)
		if !ok {
			t.Fatal("expected blocks array")
		}
		if len(blocks) != 5 {
			t.Fatalf("blocks count = %d, want 5", len(blocks))
		}
		header := blocks[0].(map[string]any)["text"].(map[string]any)["text"].(string)
		if utf8.RuneCountInString(header) > maxHeaderLen {
			t.Fatalf("header has %d runes, limit %d", utf8.RuneCountInString(header), maxHeaderLen)
		}
	})
}

func TestNotifier_ImplementsMonitorNotifier(t *testing.T) {
	t.Parallel()

	var _ monitor.Notifier = New("", nil)
}
