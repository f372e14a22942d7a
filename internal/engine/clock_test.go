package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/synchrony/internal/ir"
	"github.com/roach88/synchrony/internal/testutil"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(41), NewClockAt(41).Current())
}

func TestClock_NextIncrements(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(12), c.Next())
	assert.Equal(t, int64(12), c.Current(), "Current does not advance")
}

func TestClock_ConcurrentNextUnique(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const calls = 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestClock_NumbersEveryBatch(t *testing.T) {
	e := newTestEngine(nil, WithClock(NewClockAt(100)))

	empty := e.Process(context.Background(), nil)
	rejected := e.Process(context.Background(), []*ir.Transaction{nil})
	ok := e.Process(context.Background(), []*ir.Transaction{testutil.Deposit("T1", 1, "x", 0, 1)})

	assert.Equal(t, int64(101), empty.BatchSeq)
	assert.Equal(t, int64(102), rejected.BatchSeq)
	assert.Equal(t, int64(103), ok.BatchSeq)
}
