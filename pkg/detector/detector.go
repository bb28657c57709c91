package detector

import (
	"time"

	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/rs/zerolog"
)

// Sweeper is the slice of the worker registry the detector drives.
type Sweeper interface {
	SweepTimeouts(nowMs, timeoutMs int64) []uint64
}

// Detector runs SweepTimeouts on a fixed interval until Stop. The
// detector never deletes worker records (§4.5); it only moves them
// between sets.
type Detector struct {
	sweeper   Sweeper
	interval  time.Duration
	timeoutMs int64
	stopCh    chan struct{}
	log       zerolog.Logger
}

// New creates a Detector sweeping every interval for workers silent
// longer than timeout.
func New(sweeper Sweeper, interval, timeout time.Duration) *Detector {
	return &Detector{
		sweeper:   sweeper,
		interval:  interval,
		timeoutMs: timeout.Milliseconds(),
		stopCh:    make(chan struct{}),
		log:       log.WithComponent("detector"),
	}
}

// Start runs the sweep loop in a new goroutine.
func (d *Detector) Start() {
	go d.loop()
}

// Stop ends the sweep loop.
func (d *Detector) Stop() {
	close(d.stopCh)
}

func (d *Detector) loop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Detector) sweep() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DetectorSweepDuration)

	lost := d.sweeper.SweepTimeouts(time.Now().UnixMilli(), d.timeoutMs)
	if len(lost) == 0 {
		return
	}
	metrics.WorkersLostTotal.Add(float64(len(lost)))
	d.log.Warn().Uints64("worker_ids", lost).Msg("workers moved to lost set")
}
