package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/winterbear26/kiwiplates-watcher/internal/plates"
	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// RunDaemon keeps the watcher alive: one pass immediately, then on the
// configured cron spec, plus an out-of-band pass whenever the plate list
// file changes. Runs are strictly serialized; triggers arriving while a
// pass is in flight coalesce into a single follow-up pass.
func (a *App) RunDaemon(ctx context.Context) error {
	sched := a.cfg.Schedule

	loc := time.Local
	if tz := strings.TrimSpace(sched.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
		loc = l
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))

	trigger := make(chan string, 1)
	kick := func(why string) {
		select {
		case trigger <- why:
		default:
			// a pass is already pending; it will pick up the latest list/state anyway
		}
	}

	if _, err := c.AddFunc(sched.Spec, func() { kick("schedule") }); err != nil {
		return fmt.Errorf("schedule.spec %q: %w", sched.Spec, err)
	}
	c.Start()
	defer c.Stop()

	if sched.WatchList {
		go func() {
			err := plates.Watch(ctx, a.cfg.Watch.PlatesFile, a.log.With(logx.String("component", "listwatch")),
				func() { kick("list changed") })
			if err != nil {
				a.log.Warn("plate list watcher unavailable", logx.Err(err))
			}
		}()
	}

	a.notifySystemd(ctx)

	a.log.Info("daemon started", logx.String("spec", sched.Spec), logx.String("tz", loc.String()))
	kick("startup")

	for {
		select {
		case <-ctx.Done():
			a.log.Info("daemon stopping")
			return nil
		case why := <-trigger:
			a.log.Debug("pass triggered", logx.String("cause", why))
			if _, err := a.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// A missing plate list mid-flight shouldn't kill the daemon;
				// it is fatal only for single-shot runs.
				a.log.Error("pass failed", logx.Err(err))
			}
		}
	}
}

// notifySystemd reports readiness and, when a watchdog is armed, keeps it
// fed in the background. Outside systemd both calls are no-ops.
func (a *App) notifySystemd(ctx context.Context) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd readiness reported")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
