package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/winterbear26/kiwiplates-watcher/internal/config"
	"github.com/winterbear26/kiwiplates-watcher/internal/state"
	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// lookupFixture serves the remote API for a fixed set of combinations.
func lookupFixture(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		comb := strings.Trim(r.URL.Path, "/")
		switch comb {
		case "AB123":
			w.Write([]byte(`{"Data":{"Available":true,"Reason":""}}`))
		case "ZZ999":
			// Persistent transport fault: downgraded to unknown after retries.
			w.WriteHeader(http.StatusGatewayTimeout)
		default:
			w.Write([]byte(`{"Data":{"Available":false,"Reason":"taken"}}`))
		}
	}))
}

func testConfig(t *testing.T, lookupURL, webhookURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	platesPath := filepath.Join(dir, "plates.txt")
	if err := os.WriteFile(platesPath, []byte("ab123\n zz999 \nAB123\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Watch.PlatesFile = platesPath
	cfg.Watch.BaseURL = lookupURL
	cfg.Watch.Timeout = "2s"
	cfg.Watch.RequestDelay = "1ms"
	cfg.State.Path = filepath.Join(dir, "watch_state.json")
	cfg.Notify.Webhook.URL = webhookURL
	cfg.Notify.Webhook.Timeout = "2s"
	return &cfg
}

func TestRunOnceEndToEnd(t *testing.T) {
	t.Parallel()
	lookup := lookupFixture(t)
	defer lookup.Close()

	var alerts []string
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode alert: %v", err)
		}
		alerts = append(alerts, p.Content)
	}))
	defer webhook.Close()

	cfg := testConfig(t, lookup.URL, webhook.URL)

	// Prior state: AB123 known unavailable, ZZ999 never seen.
	prior := map[string]state.Record{
		"AB123": {Available: state.Unavailable, Reason: "taken", LastSeen: "2026-08-29 00:00:00 UTC"},
	}
	b, _ := json.Marshal(prior)
	if err := os.WriteFile(cfg.State.Path, b, 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := New(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	sum, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if sum.Checked != 2 {
		t.Fatalf("Checked = %d, want 2 (deduplicated)", sum.Checked)
	}
	if sum.NewlyAvailable != 1 {
		t.Fatalf("NewlyAvailable = %d, want 1", sum.NewlyAvailable)
	}

	if len(alerts) != 1 {
		t.Fatalf("alerts = %v, want exactly one", alerts)
	}
	if !strings.Contains(alerts[0], "AB123") || strings.Contains(alerts[0], "ZZ999") {
		t.Fatalf("alert content wrong: %q", alerts[0])
	}

	// Persisted state is total: both combinations have records.
	raw, err := os.ReadFile(cfg.State.Path)
	if err != nil {
		t.Fatal(err)
	}
	var persisted map[string]state.Record
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("persisted state unreadable: %v", err)
	}
	if persisted["AB123"].Available != state.Available {
		t.Fatalf("AB123 = %v, want Available", persisted["AB123"].Available)
	}
	if persisted["ZZ999"].Available != state.Unknown {
		t.Fatalf("ZZ999 = %v, want Unknown", persisted["ZZ999"].Available)
	}
	if !strings.HasPrefix(persisted["ZZ999"].Reason, "ERROR: ") {
		t.Fatalf("ZZ999 reason = %q, want diagnostic", persisted["ZZ999"].Reason)
	}
}

func TestRunOnceSecondPassIsQuiet(t *testing.T) {
	t.Parallel()
	lookup := lookupFixture(t)
	defer lookup.Close()

	var alertCount int
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alertCount++
	}))
	defer webhook.Close()

	cfg := testConfig(t, lookup.URL, webhook.URL)
	a, err := New(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.RunOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	sum, err := a.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if sum.NewlyAvailable != 0 {
		t.Fatalf("second pass NewlyAvailable = %d, want 0", sum.NewlyAvailable)
	}
	if alertCount != 1 {
		t.Fatalf("alert fired %d times across two passes, want 1", alertCount)
	}
}

func TestRunOnceInterruptedPersistsNothing(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The service answers AB123 as available, then the process is torn
	// down before ZZ999 is reached.
	lookup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Data":{"Available":true,"Reason":""}}`))
		cancel()
	}))
	defer lookup.Close()

	var webhookCalls int
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls++
	}))
	defer webhook.Close()

	cfg := testConfig(t, lookup.URL, webhook.URL)
	cfg.Watch.RequestDelay = "10s"

	a, err := New(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := a.RunOnce(ctx); err == nil {
		t.Fatal("interrupted run must fail")
	}

	// No state was written: the next complete run re-observes the
	// transition and alerts it, as if this run never happened.
	if _, err := os.Stat(cfg.State.Path); !os.IsNotExist(err) {
		t.Fatalf("state persisted by interrupted run: %v", err)
	}
	if webhookCalls != 0 {
		t.Fatalf("interrupted run sent %d alerts", webhookCalls)
	}
}

func TestRunOnceMissingPlateListIsFatal(t *testing.T) {
	t.Parallel()
	lookup := lookupFixture(t)
	defer lookup.Close()

	cfg := testConfig(t, lookup.URL, "")
	cfg.Watch.PlatesFile = filepath.Join(t.TempDir(), "missing.txt")

	a, err := New(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := a.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error for unreadable plate list")
	}
}

func TestRunOnceWebhookFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()
	lookup := lookupFixture(t)
	defer lookup.Close()

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer webhook.Close()

	cfg := testConfig(t, lookup.URL, webhook.URL)
	a, err := New(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	sum, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run must survive a failed alert: %v", err)
	}
	if sum.NewlyAvailable != 1 {
		t.Fatalf("NewlyAvailable = %d, want 1", sum.NewlyAvailable)
	}

	// State was persisted before the alert attempt.
	if _, err := os.Stat(cfg.State.Path); err != nil {
		t.Fatalf("state not persisted: %v", err)
	}
}
