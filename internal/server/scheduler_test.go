package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedEntry struct {
	gameID string
	at     time.Time
}

type fireRecorder struct {
	mu    sync.Mutex
	fired []firedEntry
}

func (f *fireRecorder) fire(gameID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, firedEntry{gameID, at})
}

func (f *fireRecorder) snapshot() []firedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]firedEntry(nil), f.fired...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerFiresDueEntriesInOrder(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire)
	defer s.Stop()

	now := time.Now()
	s.Schedule("b", now.Add(60*time.Millisecond))
	s.Schedule("a", now.Add(20*time.Millisecond))

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) == 2 })
	fired := rec.snapshot()
	require.Len(t, fired, 2)
	assert.Equal(t, "a", fired[0].gameID)
	assert.Equal(t, "b", fired[1].gameID)
}

func TestSchedulerLazyCancellation(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire)
	defer s.Stop()

	// Extending a deadline leaves the stale entry queued; both pop, and
	// the consumer is the one that discards the stale value.
	old := time.Now().Add(20 * time.Millisecond)
	extended := time.Now().Add(50 * time.Millisecond)
	s.Schedule("g", old)
	s.Schedule("g", extended)

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) == 2 })
	fired := rec.snapshot()
	assert.Equal(t, "g", fired[0].gameID)
	assert.True(t, fired[0].at.Equal(old))
	assert.True(t, fired[1].at.Equal(extended))
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire)
	defer s.Stop()

	s.Schedule("late", time.Now().Add(-time.Second))
	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 1 })
}

func TestSchedulerIgnoresZeroDeadline(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire)
	defer s.Stop()

	s.Schedule("none", time.Time{})
	assert.Equal(t, 0, s.Len())
}
