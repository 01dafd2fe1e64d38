package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune loop behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	Immediate    bool
	StartupDelay time.Duration
}

// Loop drives periodic execution of one worker. The next tick is scheduled
// a fixed interval after the previous tick fired, not after it finished, so
// a slow cycle pushes the following one out without ever overlapping it.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Loop instance.
func New(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{opts: opts, logger: logger.With().Str("component", "scheduler").Str("loop", opts.Name).Logger()}
}

// Run blocks, invoking the tick function at each interval until ctx is
// cancelled. Tick errors are logged and swallowed; a failed cycle must not
// stop the loop.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.StartupDelay > 0 {
		timer := time.NewTimer(l.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if l.opts.Immediate {
		l.fire(ctx, tick, time.Now().UTC())
	}

	next := l.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = l.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		l.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		l.fire(ctx, tick, l.tickStart(next))

		next = next.Add(l.opts.Interval)
	}
}

func (l *Loop) fire(ctx context.Context, tick TickFunc, now time.Time) {
	l.logger.Info().Time("tick", now).Msg("executing scheduled tick")
	if err := tick(ctx, now); err != nil {
		l.logger.Error().Err(err).Time("tick", now).Msg("tick execution failed")
	}
}

func (l *Loop) nextTick(now time.Time) time.Time {
	if !l.opts.AlignToStart {
		return now.Add(l.opts.Interval)
	}
	bucket := now.Truncate(l.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(l.opts.Interval)
	}
	return bucket
}

func (l *Loop) tickStart(t time.Time) time.Time {
	if !l.opts.AlignToStart {
		return t
	}
	return t.Truncate(l.opts.Interval)
}
