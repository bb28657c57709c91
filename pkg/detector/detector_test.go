package detector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	results [][]uint64
}

func (f *fakeSweeper) SweepTimeouts(nowMs, timeoutMs int64) []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls-1 < len(f.results) {
		return f.results[f.calls-1]
	}
	return nil
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDetectorSweepsOnInterval(t *testing.T) {
	sweeper := &fakeSweeper{}
	d := New(sweeper, 10*time.Millisecond, time.Second)
	d.Start()
	defer d.Stop()

	require.Eventually(t, func() bool {
		return sweeper.callCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestDetectorStopEndsTheLoop(t *testing.T) {
	sweeper := &fakeSweeper{}
	d := New(sweeper, 5*time.Millisecond, time.Second)
	d.Start()
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	countAtStop := sweeper.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, countAtStop, sweeper.callCount(), "no further sweeps after Stop")
}
