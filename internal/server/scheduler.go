package server

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler is a single deadline min-heap keyed by (timestamp, game id).
// Deadline extensions are advisory: stale entries stay in the heap and are
// re-checked at pop time (lazy cancellation). The run loop sleeps on a
// monotonic timer until the earliest entry is due.
type Scheduler struct {
	mu      sync.Mutex
	entries deadlineHeap
	wake    chan struct{}
	stop    chan struct{}
	stopped sync.Once

	// fire receives each popped entry; the callback decides whether the
	// deadline is still current before acting.
	fire func(gameID string, deadline time.Time)
}

type deadlineEntry struct {
	at     time.Time
	gameID string
}

type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].gameID < h[j].gameID
}
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)        { *h = append(*h, x.(deadlineEntry)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// NewScheduler creates a scheduler delivering due entries to fire.
func NewScheduler(fire func(gameID string, deadline time.Time)) *Scheduler {
	s := &Scheduler{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		fire: fire,
	}
	go s.run()
	return s
}

// Schedule registers a deadline for a game. Re-scheduling does not remove
// older entries; they are discarded when popped.
func (s *Scheduler) Schedule(gameID string, at time.Time) {
	if at.IsZero() {
		return
	}
	s.mu.Lock()
	heap.Push(&s.entries, deadlineEntry{at: at, gameID: gameID})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop terminates the run loop.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() { close(s.stop) })
}

// Len returns the number of queued entries, including stale ones.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

func (s *Scheduler) run() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		s.mu.Lock()
		hasEntries := s.entries.Len() > 0
		var wait time.Duration
		if hasEntries {
			wait = time.Until(s.entries[0].at)
		}
		s.mu.Unlock()

		if hasEntries && wait <= 0 {
			s.popDue()
			continue
		}

		if !hasEntries {
			// Nothing queued: sleep until woken.
			select {
			case <-s.stop:
				return
			case <-s.wake:
			}
			continue
		}

		timer.Reset(wait)
		select {
		case <-s.stop:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			return
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			s.popDue()
		}
	}
}

// popDue pops and fires every entry whose time has come.
func (s *Scheduler) popDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if s.entries.Len() == 0 || s.entries[0].at.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.entries).(deadlineEntry)
		s.mu.Unlock()

		log.Debug().Str("gameId", e.gameID).Time("deadline", e.at).Msg("Deadline popped")
		// Fire off-loop: processing enqueues onto the game's serial queue
		// and must not stall other games' pops.
		go s.fire(e.gameID, e.at)
	}
}
