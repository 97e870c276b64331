// Package scheduler runs keyed, cancellable, debounced tasks.
//
// A task is a deadline plus a cancel token. Scheduling a key that already
// has a pending task cancels it and arms a new one, so at most one task per
// key is pending at any instant.
package scheduler

import (
	"sync"
	"time"

	"github.com/spec-kit/reactive-engine/internal/clock"
)

// Task describes a pending task.
type Task struct {
	Key         string
	ScheduledAt time.Time
	Deadline    time.Time
}

// Scheduler holds the pending-task table.
type Scheduler struct {
	clock clock.Clock

	mu    sync.Mutex
	seq   uint64
	tasks map[string]*entry
}

type entry struct {
	task  Task
	gen   uint64
	timer clock.Timer
}

// New creates a scheduler driven by c.
func New(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{clock: c, tasks: make(map[string]*entry)}
}

// Schedule arms fn to run after delay under key, replacing any task already
// pending for key. It reports whether an existing task was replaced.
//
// The table entry is removed right before fn runs, so fn observes the key as
// no longer pending and may schedule it again.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) (Task, bool) {
	if delay <= 0 {
		// keep the callback off the caller's goroutine; it takes s.mu
		delay = time.Nanosecond
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	if existing, ok := s.tasks[key]; ok {
		existing.timer.Stop()
		delete(s.tasks, key)
		replaced = true
	}

	s.seq++
	gen := s.seq
	now := s.clock.Now()
	e := &entry{
		task: Task{Key: key, ScheduledAt: now, Deadline: now.Add(delay)},
		gen:  gen,
	}
	s.tasks[key] = e
	e.timer = s.clock.AfterFunc(delay, func() {
		if !s.claim(key, gen) {
			return
		}
		fn()
	})
	return e.task, replaced
}

// claim removes the entry for key if it still belongs to generation gen.
func (s *Scheduler) claim(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[key]
	if !ok || current.gen != gen {
		return false
	}
	delete(s.tasks, key)
	return true
}

// Cancel stops the task pending for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[key]
	if !ok {
		return false
	}
	existing.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Pending returns the task pending for key, if any.
func (s *Scheduler) Pending(key string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[key]
	if !ok {
		return Task{}, false
	}
	return existing.task, true
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
