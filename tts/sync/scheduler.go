// Package sync fires aligned word boundaries against a playing audio clock.
package sync

import (
	"sync"
	"time"

	"github.com/dgnsrekt/ttsync/internal/clock"
	"github.com/dgnsrekt/ttsync/tts/align"
)

const (
	// MinInterval is the polling resolution.
	MinInterval = 16 * time.Millisecond
	// MaxInterval caps how far ahead a single wait may look.
	MaxInterval = 50 * time.Millisecond
)

// FireFunc receives each boundary as it becomes due, with its table index.
type FireFunc func(index int, entry align.Entry)

// Scheduler polls an audio position and fires every entry whose offset has
// been reached, in order. Pausing keeps the cursor so a later Resume picks up
// exactly where polling stopped.
type Scheduler struct {
	clock clock.Clock

	mu       sync.Mutex
	entries  []align.Entry
	next     int
	position func() time.Duration
	fire     FireFunc
	running  bool
	paused   bool
	gen      uint64
	timer    clock.Timer

	// held for the whole of a tick so fired entries never interleave
	tickMu sync.Mutex
}

// NewScheduler creates an idle scheduler. A nil clock uses the real one.
func NewScheduler(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{clock: c}
}

// Start replaces any current table and begins polling from index next. An
// empty table, or a cursor past its end, leaves the scheduler stopped.
func (s *Scheduler) Start(entries []align.Entry, next int, position func() time.Duration, fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if len(entries) == 0 || next >= len(entries) {
		return
	}

	s.entries = entries
	s.next = max(next, 0)
	s.position = position
	s.fire = fire
	s.running = true
	s.paused = false
	s.armLocked()
}

// Pause halts polling without discarding the cursor.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.paused {
		return
	}
	s.paused = true
	s.disarmLocked()
}

// Resume restarts polling from the cursor left by Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || !s.paused {
		return
	}
	s.paused = false
	s.armLocked()
}

// Stop discards the table. It is safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Pending returns how many entries have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return len(s.entries) - s.next
}

func (s *Scheduler) stopLocked() {
	s.disarmLocked()
	s.entries = nil
	s.next = 0
	s.position = nil
	s.fire = nil
	s.running = false
	s.paused = false
}

func (s *Scheduler) disarmLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) armLocked() {
	s.disarmLocked()
	gen := s.gen

	delay := MinInterval
	if s.next < len(s.entries) && s.position != nil {
		remaining := time.Duration(s.entries[s.next].OffsetMs)*time.Millisecond - s.position()
		delay = min(max(MinInterval, remaining), MaxInterval)
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.tick(gen) })
}

func (s *Scheduler) tick(gen uint64) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || !s.running || s.paused {
		s.mu.Unlock()
		return
	}
	s.timer = nil

	nowMs := s.position().Milliseconds()
	var due []int
	for s.next < len(s.entries) && s.entries[s.next].OffsetMs <= nowMs {
		due = append(due, s.next)
		s.next++
	}
	entries, fire := s.entries, s.fire
	s.mu.Unlock()

	for _, i := range due {
		fire(i, entries[i])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || !s.running || s.paused {
		return
	}
	if s.next >= len(s.entries) {
		// table exhausted; keep it loaded so Pending and Next stay meaningful
		return
	}
	s.armLocked()
}
