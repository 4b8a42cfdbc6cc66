package orchestrator

import "time"

// Timer is a pending callback. Stop is best effort; callbacks are
// state-guarded and must tolerate firing after Stop.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler uses the runtime timers.
func RealScheduler() Scheduler {
	return realScheduler{}
}
