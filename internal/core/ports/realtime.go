package ports

import "time"

// RealClock is the production Clock backed by the standard library. Tests
// substitute a fake Clock to drive state-timer and scan-dwell logic
// deterministically.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool                 { return r.t.Stop() }
func (r realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
