// Package notify delivers run alerts to configured sinks, best-effort.
package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// Sink delivers a single text payload somewhere external.
type Sink interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Service fans one message out to every configured sink.
//
// Delivery is strictly best-effort: by the time an alert is sent the run's
// state is already persisted, so a sink failure is logged and swallowed,
// never propagated. With no sinks configured Notify is a logged no-op.
type Service struct {
	sinks   []Sink
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

type Config struct {
	Timeout    time.Duration
	RatePerSec int
}

func New(cfg Config, log logx.Logger, sinks ...Sink) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		sinks:   sinks,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		timeout: cfg.Timeout,
		log:     log,
	}
}

func (s *Service) Enabled() bool { return len(s.sinks) > 0 }

// Notify sends text to each sink with a bounded per-sink timeout.
// It always returns; failures surface only in the log.
func (s *Service) Notify(ctx context.Context, text string) {
	if len(s.sinks) == 0 {
		s.log.Info("no notification sink configured; skipping alert")
		return
	}

	for _, sink := range s.sinks {
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Warn("notify cancelled", logx.String("sink", sink.Name()), logx.Err(err))
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := sink.Send(callCtx, text)
		cancel()
		if err != nil {
			s.log.Warn("notification delivery failed", logx.String("sink", sink.Name()), logx.Err(err))
			continue
		}
		s.log.Debug("notification delivered", logx.String("sink", sink.Name()))
	}
}
