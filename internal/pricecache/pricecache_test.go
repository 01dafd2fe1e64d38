package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestGetWithinTTLSkipsUpstream(t *testing.T) {
	calls := 0
	cache := New("test", 5*time.Minute, func(ctx context.Context) (map[string]decimal.Decimal, error) {
		calls++
		return map[string]decimal.Decimal{"item": decimal.NewFromInt(int64(calls))}, nil
	}, zerolog.Nop())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.WithClock(func() time.Time { return now })

	first := cache.Get(context.Background())
	now = now.Add(time.Minute)
	second := cache.Get(context.Background())

	if calls != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", calls)
	}
	if !first["item"].Equal(second["item"]) {
		t.Fatalf("second get should serve the cached value")
	}
}

func TestGetRefreshesAfterTTL(t *testing.T) {
	calls := 0
	cache := New("test", 5*time.Minute, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}, zerolog.Nop())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.WithClock(func() time.Time { return now })

	cache.Get(context.Background())
	now = now.Add(6 * time.Minute)
	value := cache.Get(context.Background())

	if calls != 2 {
		t.Fatalf("expected second upstream call after ttl, got %d", calls)
	}
	if value != 2 {
		t.Fatalf("expected fresh value 2, got %d", value)
	}
}

func TestFailedRefreshKeepsPreviousValue(t *testing.T) {
	fail := false
	cache := New("test", time.Minute, func(ctx context.Context) (map[string]decimal.Decimal, error) {
		if fail {
			return nil, errors.New("upstream down")
		}
		return map[string]decimal.Decimal{"item": decimal.NewFromInt(42)}, nil
	}, zerolog.Nop())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.WithClock(func() time.Time { return now })

	cache.Get(context.Background())

	fail = true
	now = now.Add(2 * time.Minute)
	value := cache.Get(context.Background())

	if len(value) != 1 || !value["item"].Equal(decimal.NewFromInt(42)) {
		t.Fatalf("failed refresh must keep the previous value, got %#v", value)
	}
}

func TestSeedServedUntilFirstRefreshFails(t *testing.T) {
	cache := New("fx", time.Hour, func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.Decimal{}, errors.New("upstream down")
	}, zerolog.Nop()).Seed(decimal.NewFromFloat(0.138))

	value := cache.Get(context.Background())

	if !value.Equal(decimal.NewFromFloat(0.138)) {
		t.Fatalf("seed should be served when refresh fails, got %s", value)
	}
}

func TestSeedDoesNotCountAsFresh(t *testing.T) {
	calls := 0
	cache := New("fx", time.Hour, func(ctx context.Context) (decimal.Decimal, error) {
		calls++
		return decimal.NewFromFloat(0.14), nil
	}, zerolog.Nop()).Seed(decimal.NewFromFloat(0.138))

	value := cache.Get(context.Background())

	if calls != 1 {
		t.Fatalf("seeded cache must still refresh on first get, calls = %d", calls)
	}
	if !value.Equal(decimal.NewFromFloat(0.14)) {
		t.Fatalf("fresh value should replace the seed, got %s", value)
	}
}
