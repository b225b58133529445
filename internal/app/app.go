// Package app wires the watcher together and sequences a run.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/winterbear26/kiwiplates-watcher/internal/config"
	"github.com/winterbear26/kiwiplates-watcher/internal/engine"
	"github.com/winterbear26/kiwiplates-watcher/internal/lookup"
	"github.com/winterbear26/kiwiplates-watcher/internal/notify"
	"github.com/winterbear26/kiwiplates-watcher/internal/plates"
	"github.com/winterbear26/kiwiplates-watcher/internal/state"
	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

type App struct {
	cfg *config.Config
	log logx.Logger

	store    state.Store
	engine   *engine.Engine
	notifier *notify.Service
}

// Summary is what one pass reports back.
type Summary struct {
	Checked        int
	NewlyAvailable int
	Changed        int
}

// New builds the full component graph from config. Construction fails on
// wiring problems (bad store path, half-configured telegram); per-plate
// lookup faults never do.
func New(cfg *config.Config, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	timeout, err := config.ParseDurationOrDefault("watch.timeout", cfg.Watch.Timeout, 20*time.Second)
	if err != nil {
		return nil, err
	}
	delay, err := config.ParseDurationField("watch.request_delay", cfg.Watch.RequestDelay)
	if err != nil {
		return nil, err
	}
	webhookTimeout, err := config.ParseDurationOrDefault("notify.webhook.timeout", cfg.Notify.Webhook.Timeout, 20*time.Second)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := config.ParseDurationField("state.busy_timeout", cfg.State.BusyTimeout)
	if err != nil {
		return nil, err
	}

	store, err := state.Open(state.Config{
		Driver:      cfg.State.Driver,
		Path:        cfg.State.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "state")))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	client := lookup.New(lookup.Config{
		BaseURL:       cfg.Watch.BaseURL,
		VehicleTypeID: cfg.Watch.VehicleTypeID,
		UserAgent:     cfg.Watch.UserAgent,
		Timeout:       timeout,
		Retries:       cfg.Watch.Retries,
	}, log.With(logx.String("component", "lookup")))

	var sinks []notify.Sink
	if url := strings.TrimSpace(cfg.Notify.Webhook.URL); url != "" {
		sinks = append(sinks, notify.NewWebhook(url, webhookTimeout))
	}
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, tg)
	}

	return &App{
		cfg:    cfg,
		log:    log,
		store:  store,
		engine: engine.New(client, delay, log.With(logx.String("component", "engine"))),
		notifier: notify.New(notify.Config{
			Timeout:    webhookTimeout,
			RatePerSec: cfg.Notify.RatePerSec,
		}, log.With(logx.String("component", "notify")), sinks...),
	}, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// RunOnce executes a single pass: load state, load + normalize the plate
// list, check everything, persist, then alert. Persisting before alerting
// means a failed alert can never lose or replay state.
//
// An interrupted pass persists nothing: the snapshot on disk stays what
// it was, so the next complete run re-observes and re-alerts whatever the
// interrupted one saw.
func (a *App) RunOnce(ctx context.Context) (Summary, error) {
	working, err := plates.LoadFile(a.cfg.Watch.PlatesFile)
	if err != nil {
		return Summary{}, err
	}

	snapshot, err := a.store.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load state: %w", err)
	}

	res, err := a.engine.Run(ctx, working, snapshot)
	if err != nil {
		return Summary{}, fmt.Errorf("run interrupted: %w", err)
	}

	if err := a.store.Save(ctx, snapshot); err != nil {
		return Summary{}, fmt.Errorf("save state: %w", err)
	}

	if len(res.Events) > 0 {
		a.notifier.Notify(ctx, formatAlert(res.Events))
	}

	sum := Summary{
		Checked:        res.Checked,
		NewlyAvailable: len(res.Events),
		Changed:        len(res.Changes),
	}
	a.log.Info("run complete",
		logx.Int("checked", sum.Checked),
		logx.Int("newly_available", sum.NewlyAvailable),
		logx.Int("changed", sum.Changed),
	)
	return sum, nil
}

func formatAlert(events []engine.Event) string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Combination+" ✅")
	}
	return "\U0001F6A8 **KiwiPlates now AVAILABLE:** " + strings.Join(names, ", ")
}
