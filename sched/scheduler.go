// Package sched runs deferred drawing work on a single goroutine, one
// continuation per turn. Continuations are tagged (by tile id) so a whole
// tile's queued work can be re-ranked or canceled without tracking
// individual steps.
package sched

import (
	"sort"
	"sync"
)

type entry struct {
	tag      string
	run      func()
	seq      uint64
	canceled bool
}

// Scheduler executes deferred continuations on a dedicated goroutine.
// Entries with the same rank run in FIFO order; entries whose tag has no
// rank sort ahead of ranked ones.
type Scheduler struct {
	mu      sync.Mutex
	pending []*entry
	ranks   map[string]float64
	seq     uint64

	signal   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	idle     *sync.Cond
	running  bool
}

// New creates a Scheduler and starts its run loop.
func New() *Scheduler {
	s := &Scheduler{
		ranks:  make(map[string]float64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Stop terminates the run loop. Queued continuations are dropped.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Defer queues fn to run on a later scheduler turn under the given tag.
func (s *Scheduler) Defer(tag string, fn func()) {
	s.mu.Lock()
	s.seq++
	s.pending = append(s.pending, &entry{tag: tag, run: fn, seq: s.seq})
	s.sortLocked()
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// SetRank assigns a rank to every queued and future continuation with the
// given tag and re-sorts the pending queue. Lower ranks run sooner.
func (s *Scheduler) SetRank(tag string, rank float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranks[tag] = rank
	s.sortLocked()
}

// Cancel marks every queued continuation with the given tag so it no-ops
// when its turn arrives, and forgets the tag's rank.
func (s *Scheduler) Cancel(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.pending {
		if e.tag == tag {
			e.canceled = true
		}
	}
	delete(s.ranks, tag)
}

// Wait blocks until the queue is empty and no continuation is running.
// Intended for tests and batch rendering.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 || s.running {
		s.idle.Wait()
	}
}

func (s *Scheduler) sortLocked() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		ra, oka := s.ranks[a.tag]
		rb, okb := s.ranks[b.tag]
		if oka != okb {
			return !oka // undefined rank sorts first
		}
		if oka && ra != rb {
			return ra < rb
		}
		return a.seq < b.seq
	})
}

func (s *Scheduler) next() *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	e := s.pending[0]
	copy(s.pending, s.pending[1:])
	s.pending[len(s.pending)-1] = nil
	s.pending = s.pending[:len(s.pending)-1]
	s.running = true
	return e
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.running = false
	if len(s.pending) == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Scheduler) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			select {
			case <-s.done:
				return
			default:
			}
			e := s.next()
			if e == nil {
				break
			}
			if !e.canceled {
				e.run()
			}
			s.finish()
		}
	}
}
