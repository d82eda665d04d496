package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before crawl time", time.Date(2026, 10, 19, 6, 30, 0, 0, loc), time.Date(2026, 10, 19, 7, 0, 0, 0, loc)},
		{"after crawl time", time.Date(2026, 10, 19, 8, 0, 0, 0, loc), time.Date(2026, 10, 20, 7, 0, 0, 0, loc)},
		{"exactly at crawl time", time.Date(2026, 10, 19, 7, 0, 0, 0, loc), time.Date(2026, 10, 20, 7, 0, 0, 0, loc)},
		{"month boundary", time.Date(2026, 10, 31, 23, 0, 0, 0, loc), time.Date(2026, 11, 1, 7, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextRun(tt.now, 7, 0))
		})
	}
}

func TestNewScheduler_InvalidClock(t *testing.T) {
	_, err := NewScheduler("25:99", func(context.Context) {})
	assert.ErrorIs(t, err, ErrInvalidCrawlTime)
}

func TestScheduler_RunsOncePerDay(t *testing.T) {
	// 呼び出しごとに12時間進む時計
	var mu sync.Mutex
	clock := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	var calls []time.Time
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := clock
		clock = clock.Add(12 * time.Hour)
		return cur
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewScheduler("07:00", func(jobCtx context.Context) {
		if jobCtx.Err() != nil {
			return
		}
		mu.Lock()
		calls = append(calls, clock)
		n := len(calls)
		mu.Unlock()
		if n == 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	s.interval = 5 * time.Millisecond
	s.now = now

	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.NotErrorIs(t, ctx.Err(), context.DeadlineExceeded, "job should have cancelled the context")
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s, err := NewScheduler("07:00", func(context.Context) {
		t.Error("job must not run")
	})
	require.NoError(t, err)
	s.interval = time.Millisecond
	s.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
