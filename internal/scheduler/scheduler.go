// Package scheduler drives periodic work: cron expressions evaluated at a
// fixed polling interval, dispatched onto a bounded worker pool. A task
// whose body outruns its own period is coalesced rather than queued, so
// at most one instance of a given task is ever in flight.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

const pollInterval = 50 * time.Millisecond

type taskState struct {
	name     string
	schedule cron.Schedule
	run      func(context.Context)
	next     time.Time
	running  atomic.Bool
}

// Scheduler owns the poll loop and a fixed-size worker pool. Zero value is
// not usable; construct with New.
type Scheduler struct {
	log     logger.InterfaceLogger
	parser  cron.Parser
	workers chan struct{}

	mu    sync.Mutex
	tasks []*taskState

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Scheduler with poolSize concurrent worker slots.
func New(poolSize int, log logger.InterfaceLogger) *Scheduler {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Scheduler{
		log:     log,
		parser:  cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		workers: make(chan struct{}, poolSize),
		stopCh:  make(chan struct{}),
	}
}

// AddCron registers a task under a second-granularity cron expression. Must
// be called before Start; it is not goroutine-safe to call concurrently
// with Start's loop, following a construct-then-run lifecycle.
func (s *Scheduler) AddCron(name, expr string, run func(context.Context)) error {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &taskState{
		name:     name,
		schedule: sched,
		run:      run,
		next:     sched.Next(time.Now()),
	})
	return nil
}

// Start begins the poll loop in its own goroutine. ctx cancellation stops
// the loop from firing new tasks but does not itself wait for in-flight
// tasks; call Stop for that.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*taskState, 0, len(s.tasks))
	for _, ts := range s.tasks {
		if !now.Before(ts.next) {
			due = append(due, ts)
			ts.next = ts.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, ts := range due {
		if !ts.running.CompareAndSwap(false, true) {
			if s.log != nil {
				s.log.Warnf("scheduler: coalescing overrun firing for task %s", ts.name)
			}
			continue
		}
		s.dispatch(ctx, ts)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, ts *taskState) {
	select {
	case s.workers <- struct{}{}:
	case <-s.stopCh:
		ts.running.Store(false)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.workers }()
		defer ts.running.Store(false)
		defer func() {
			if r := recover(); r != nil && s.log != nil {
				s.log.Errorf("scheduler: task %s panicked: %v", ts.name, r)
			}
		}()
		ts.run(ctx)
	}()
}

// Stop signals the poll loop to stop firing tasks, waits up to window for
// in-flight tasks to finish, then returns regardless — detaching any task
// still running past the deadline. Running tasks are not signalled; they
// see only the ctx passed to Start.
func (s *Scheduler) Stop(window time.Duration) {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(window):
		if s.log != nil {
			s.log.Warnf("scheduler: shutdown window elapsed, detaching running tasks")
		}
	}
}
