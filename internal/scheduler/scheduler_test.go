package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoopFiresAtInterval(t *testing.T) {
	var ticks int32
	loop := New(Options{Name: "test", Interval: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	err := loop.Run(ctx, func(ctx context.Context, now time.Time) error {
		atomic.AddInt32(&ticks, 1)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run should end with the context error, got %v", err)
	}

	got := atomic.LoadInt32(&ticks)
	if got < 3 || got > 6 {
		t.Fatalf("expected roughly 5 ticks over 110ms, got %d", got)
	}
}

func TestLoopImmediateFiresBeforeInterval(t *testing.T) {
	fired := make(chan struct{}, 1)
	loop := New(Options{Name: "test", Interval: time.Hour, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx, func(ctx context.Context, now time.Time) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("immediate loop should tick before the first interval")
	}
	cancel()
	<-done
}

func TestLoopSwallowsTickErrors(t *testing.T) {
	var ticks int32
	loop := New(Options{Name: "test", Interval: 15 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	_ = loop.Run(ctx, func(ctx context.Context, now time.Time) error {
		atomic.AddInt32(&ticks, 1)
		return errors.New("cycle blew up")
	})

	if atomic.LoadInt32(&ticks) < 2 {
		t.Fatal("a failing tick must not stop the loop")
	}
}

func TestNextTickAligned(t *testing.T) {
	loop := New(Options{Name: "test", Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2024, 3, 1, 12, 2, 30, 0, time.UTC)
	next := loop.nextTick(now)
	want := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("aligned next tick expected %s, got %s", want, next)
	}

	// On an exact boundary the next bucket is still a full interval away.
	boundary := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	next = loop.nextTick(boundary)
	want = time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("boundary next tick expected %s, got %s", want, next)
	}
}
