package main

import (
	"sync"
	"time"
)

// Clock abstracts wall time so tests can drive the reminder engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Scheduler invokes a callback repeatedly at a fixed interval. At most one
// schedule is active at a time; Start replaces any running schedule. The
// first invocation happens one full interval after Start, not immediately.
type Scheduler interface {
	Start(interval time.Duration, fn func())
	Cancel()
	Active() bool
}

// tickerScheduler is the production Scheduler backed by time.Ticker.
type tickerScheduler struct {
	mutex  sync.Mutex
	stopCh chan struct{}
}

// NewTickerScheduler creates an idle scheduler.
func NewTickerScheduler() Scheduler {
	return &tickerScheduler{}
}

func (s *tickerScheduler) Start(interval time.Duration, fn func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stopLocked()

	stop := make(chan struct{})
	s.stopCh = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()
}

func (s *tickerScheduler) Cancel() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopLocked()
}

func (s *tickerScheduler) Active() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stopCh != nil
}

func (s *tickerScheduler) stopLocked() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}
