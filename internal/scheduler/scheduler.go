// Package scheduler triggers pipeline dispatch at the top of every hour.
package scheduler

import (
	"log"
	"sync"
	"time"
)

// Scheduler fires a dispatch function once per hour, aligned to the clock.
// Profile schedules are hour-granular, so sub-hour drift does not matter.
type Scheduler struct {
	dispatch func() error
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(dispatch func() error) *Scheduler {
	return &Scheduler{
		dispatch: dispatch,
		interval: time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start launches the scheduling loop. The first dispatch fires at the next
// top of the hour, not immediately.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("🚀 Started hourly dispatch scheduler")
}

// Stop halts the scheduling loop. In-flight dispatch completes.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	log.Printf("Stopped dispatch scheduler")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		now := time.Now()
		next := now.Truncate(s.interval).Add(s.interval)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			if err := s.dispatch(); err != nil {
				log.Printf("⚠️ Dispatch failed: %v", err)
			}
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}
