package poller

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 5 * time.Second

	initialProgress = 10
	progressStep    = 1.5
	progressCeiling = 90
	doneProgress    = 100
)

type Outcome string

const (
	// Ready means a probe got a 2xx answer.
	Ready Outcome = "ready"
	// Exhausted means every attempt failed. Callers treat it as an optimistic success.
	Exhausted Outcome = "exhausted"
	// Cancelled means the context ended before an answer; only happens on shutdown.
	Cancelled Outcome = "cancelled"
)

// Result is the resolution of one Poll call.
type Result struct {
	Outcome  Outcome
	Attempts int
	Progress int
}

// Observer receives the cosmetic progress estimate after every failed attempt.
type Observer func(attempt, progress int)

type Options struct {
	MaxAttempts int
	Interval    time.Duration
}

// Poller turns an opaque readiness check into a bounded retry loop.
type Poller struct {
	prober Prober
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a poller; zero options fall back to 60 attempts every 5s.
func New(prober Prober, opts Options) *Poller {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{prober: prober, opts: opts, sleep: sleepContext}
}

func (p *Poller) Options() Options { return p.opts }

// Poll probes descriptor until it is ready or MaxAttempts probes have failed.
// Probe failures never escape; they only drive the next attempt.
func (p *Poller) Poll(ctx context.Context, descriptor string, observe Observer) Result {
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		err := p.prober.Probe(ctx, descriptor)
		if err == nil {
			log.Debug().Str("descriptor", descriptor).Int("attempt", attempt).Msg("transformation ready")
			return Result{Outcome: Ready, Attempts: attempt, Progress: doneProgress}
		}
		if ctx.Err() != nil {
			return Result{Outcome: Cancelled, Attempts: attempt, Progress: Progress(attempt)}
		}
		log.Debug().Str("descriptor", descriptor).Int("attempt", attempt).Err(err).Msg("transformation still processing")

		progress := Progress(attempt)
		if observe != nil {
			observe(attempt, progress)
		}
		if attempt == p.opts.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, p.opts.Interval); err != nil {
			return Result{Outcome: Cancelled, Attempts: attempt, Progress: progress}
		}
	}
	log.Warn().Str("descriptor", descriptor).Int("attempts", p.opts.MaxAttempts).Msg("poll budget exhausted, assuming transformation exists")
	return Result{Outcome: Exhausted, Attempts: p.opts.MaxAttempts, Progress: doneProgress}
}

// Progress is the cosmetic estimate after n failed attempts: 10 + 1.5n capped at 90.
func Progress(attempts int) int {
	return int(math.Min(initialProgress+float64(attempts)*progressStep, progressCeiling))
}

// InitialProgress is reported when polling starts.
func InitialProgress() int { return initialProgress }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
