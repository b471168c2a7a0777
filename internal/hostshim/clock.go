package hostshim

import (
	"sync"
	"time"

	"github.com/tsenart/tb"
)

// Now returns host wall-clock time, used to stamp atime/ctime/mtime.
func Now() time.Time { return time.Now() }

// IntervalTimer models setitimer(ITIMER_REAL, ...): it calls fire
// periodically until stopped. A tsenart/tb token bucket paces the
// ticks instead of a busy-wait loop, replenished once per period and
// drained by one token per fire — the same token-bucket shape rclone
// vendors for its own pacing (github.com/tsenart/tb), applied here to
// SIGALRM delivery instead of request throttling.
type IntervalTimer struct {
	mu      sync.Mutex
	bucket  *tb.Bucket
	stopCh  chan struct{}
	running bool
}

// NewIntervalTimer arms a timer that calls fire every period, starting
// after the given initial delay. A zero initial delay leaves it
// disarmed; a zero period makes it fire once (one-shot, like
// setitimer's it_interval == 0).
func NewIntervalTimer(initial, period time.Duration, fire func()) *IntervalTimer {
	t := &IntervalTimer{stopCh: make(chan struct{})}
	if initial <= 0 {
		return t
	}
	refill := period
	if refill <= 0 {
		refill = initial
	}
	t.bucket = tb.NewBucket(1, refill)
	t.running = true
	go t.run(initial, period, fire)
	return t
}

func (t *IntervalTimer) run(initial, period time.Duration, fire func()) {
	timer := time.NewTimer(initial)
	defer timer.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-timer.C:
			if t.bucket.Take(1) > 0 {
				fire()
			}
			if period <= 0 {
				return
			}
			timer.Reset(period)
		}
	}
}

// Stop disarms the timer. Safe to call multiple times.
func (t *IntervalTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	if t.bucket != nil {
		t.bucket.Close()
	}
}
