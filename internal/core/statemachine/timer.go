// Package statemachine implements the link state-transition contract:
// SetState's driver-notification side effects, and the two-stage state
// timer that arms on entry to a timed state and fires a controlled timeout
// back into the link without ever taking the link lock from the timer
// callback itself.
package statemachine

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
)

// timerDiscipline arms a Clock timer whose callback (the "deferred" half)
// does nothing but hand an epoch number to a worker goroutine. The worker
// (the "bottom half") takes the link lock and only acts if the epoch it
// received still matches the current one and FlagTimerQueued is still
// set — a timer that was canceled or superseded by a fresh Arm
// between firing and the worker running is silently dropped.
type timerDiscipline struct {
	link   *domain.Link
	clock  ports.Clock
	onFire func()

	mu    sync.Mutex
	timer ports.Timer
	epoch uint64 // atomic

	workCh   chan uint64
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newTimerDiscipline(link *domain.Link, clock ports.Clock, onFire func()) *timerDiscipline {
	t := &timerDiscipline{
		link:   link,
		clock:  clock,
		onFire: onFire,
		workCh: make(chan uint64, 1),
		stopCh: make(chan struct{}),
	}
	go t.worker()
	return t
}

func (t *timerDiscipline) worker() {
	for {
		select {
		case epoch := <-t.workCh:
			t.link.Lock.Lock()
			if atomic.LoadUint64(&t.epoch) == epoch && t.link.Flags&domain.FlagTimerQueued != 0 {
				t.link.Flags &^= domain.FlagTimerQueued
				t.onFire()
			}
			t.link.Lock.Unlock()
		case <-t.stopCh:
			return
		}
	}
}

// Arm schedules a timeout after d. The caller must hold link.Lock.
func (t *timerDiscipline) Arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	epoch := atomic.AddUint64(&t.epoch, 1)
	t.link.Flags |= domain.FlagTimerQueued
	t.timer = t.clock.AfterFunc(d, func() {
		select {
		case t.workCh <- epoch:
		default:
			log.Printf("net80211: %s state timer worker busy, dropping epoch %d", t.link.Name, epoch)
		}
	})
}

// Cancel disarms any pending timeout. The caller must hold link.Lock.
func (t *timerDiscipline) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	atomic.AddUint64(&t.epoch, 1) // invalidate anything already in flight
	t.link.Flags &^= domain.FlagTimerQueued
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Stop permanently shuts the worker goroutine down. Called once, when the
// link's Controller is torn down.
func (t *timerDiscipline) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}
