// Package engine decides, per run, which combinations became available.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/winterbear26/kiwiplates-watcher/internal/state"
	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// Fetcher resolves the current availability of one combination.
type Fetcher interface {
	Fetch(ctx context.Context, combination string) (state.Availability, string)
}

// Event marks a combination that just crossed into availability.
// Events are transient; they exist to be formatted into one alert.
type Event struct {
	Combination string
	Record      state.Record
}

// Change records any observed difference against the prior run. Used for
// diagnostics only; it does not gate notifications.
type Change struct {
	Combination string
	Prev        state.Record
	Curr        state.Record
}

// Result summarizes one pass over the working set.
type Result struct {
	Checked int
	Events  []Event
	Changes []Change
}

// Engine runs the sequential check loop. Pacing between combinations is a
// politeness contract with the lookup service, so it applies whether or
// not the fetch succeeded.
type Engine struct {
	fetcher Fetcher
	limiter *rate.Limiter
	log     logx.Logger

	now func() time.Time
}

func New(fetcher Fetcher, requestDelay time.Duration, log logx.Logger) *Engine {
	lim := rate.NewLimiter(rate.Inf, 1)
	if requestDelay > 0 {
		lim = rate.NewLimiter(rate.Every(requestDelay), 1)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		fetcher: fetcher,
		limiter: lim,
		log:     log,
		now:     time.Now,
	}
}

// Run fetches every combination in order and updates snapshot in place.
//
// Every combination ends the run with exactly one record, failed fetches
// included (recorded as Unknown with a diagnostic reason). An Event is
// emitted iff the new observation is Available and the prior one was not:
// a strict edge trigger, so Available -> Available stays quiet and a loss
// of availability never alerts.
//
// If ctx is cancelled mid-pass, Run returns the partial Result together
// with the context error. The caller must then discard the snapshot
// rather than persist it: an interrupted pass has to look like no pass at
// all, otherwise a transition observed just before the interruption would
// be recorded without ever having been alerted.
func (e *Engine) Run(ctx context.Context, working []string, snapshot map[string]state.Record) (Result, error) {
	res := Result{Checked: len(working)}
	runStamp := state.Timestamp(e.now())

	for i, comb := range working {
		// The limiter starts with one token, so the first combination goes
		// out immediately and each later one waits out the request delay.
		if err := e.limiter.Wait(ctx); err != nil {
			e.log.Warn("run interrupted", logx.Int("remaining", len(working)-i), logx.Err(err))
			res.Checked = i
			return res, err
		}

		avail, reason := e.fetcher.Fetch(ctx, comb)

		prev, seen := snapshot[comb]
		curr := state.Record{Available: avail, Reason: reason, LastSeen: runStamp}
		snapshot[comb] = curr

		if !seen || prev.Available != avail || prev.Reason != reason {
			res.Changes = append(res.Changes, Change{Combination: comb, Prev: prev, Curr: curr})
			e.log.Debug("status changed",
				logx.String("combination", comb),
				logx.String("prev", describe(prev)),
				logx.String("curr", describe(curr)),
			)
		}

		if avail == state.Available && prev.Available != state.Available {
			res.Events = append(res.Events, Event{Combination: comb, Record: curr})
			e.log.Info("newly available", logx.String("combination", comb), logx.String("reason", reason))
		}
	}
	return res, nil
}

func describe(r state.Record) string {
	return fmt.Sprintf("%s/%s", r.Available, r.Reason)
}
