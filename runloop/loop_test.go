package runloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func TestLoop_AfterRunsInDueOrder(t *testing.T) {
	loop := New(epoch)
	var order []string

	loop.After(300*time.Millisecond, func() { order = append(order, "late") })
	loop.After(100*time.Millisecond, func() { order = append(order, "early") })
	loop.After(100*time.Millisecond, func() { order = append(order, "early-second") })

	loop.Advance(epoch.Add(50 * time.Millisecond))
	assert.Empty(t, order)

	loop.Advance(epoch.Add(200 * time.Millisecond))
	assert.Equal(t, []string{"early", "early-second"}, order)

	loop.Advance(epoch.Add(time.Second))
	assert.Equal(t, []string{"early", "early-second", "late"}, order)
	assert.Equal(t, 0, loop.Pending())
}

func TestLoop_CancelledTaskNeverRuns(t *testing.T) {
	loop := New(epoch)
	ran := false
	tok := loop.After(time.Second, func() { ran = true })

	assert.False(t, tok.Cancelled())
	tok.Cancel()
	assert.True(t, tok.Cancelled())

	loop.Advance(epoch.Add(2 * time.Second))
	assert.False(t, ran)

	var nilToken *Token
	assert.NotPanics(t, func() { nilToken.Cancel() })
}

func TestLoop_EveryRepeatsUntilCancelled(t *testing.T) {
	loop := New(epoch)
	count := 0
	tok := loop.Every(time.Second, func() { count++ })

	for i := 1; i <= 3; i++ {
		loop.Advance(epoch.Add(time.Duration(i) * time.Second))
	}
	assert.Equal(t, 3, count)

	tok.Cancel()
	loop.Advance(epoch.Add(10 * time.Second))
	assert.Equal(t, 3, count)
}

func TestLoop_WorkScheduledDuringAdvanceRunsWhenDue(t *testing.T) {
	loop := New(epoch)
	var order []string
	loop.After(0, func() {
		order = append(order, "first")
		loop.After(0, func() { order = append(order, "chained") })
		loop.After(time.Minute, func() { order = append(order, "later") })
	})

	loop.Advance(epoch)
	assert.Equal(t, []string{"first", "chained"}, order)
}

func TestLoop_TickHooksRunAfterTasks(t *testing.T) {
	loop := New(epoch)
	var order []string
	loop.OnTick(func(now time.Time) int {
		order = append(order, "tick")
		return 0
	})
	loop.After(0, func() { order = append(order, "task") })

	loop.Advance(epoch)
	assert.Equal(t, []string{"task", "tick", "tick"}, order[:3])
}

func TestLoop_ClockNeverGoesBackwards(t *testing.T) {
	loop := New(epoch)
	loop.Advance(epoch.Add(time.Second))
	loop.Advance(epoch)
	assert.Equal(t, epoch.Add(time.Second), loop.Now())
}

func TestLoop_SyncHopsFromBackground(t *testing.T) {
	loop := New(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx, 5*time.Millisecond)

	value := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			loop.Sync(func() { value++ })
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Sync did not return")
	}
	assert.Equal(t, 5, value)
}
