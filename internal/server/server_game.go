package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// ServerGame owns one game's state behind a single-owner task queue: at
// most one mutation is in flight per game, and readers snapshot under the
// same discipline. Adjudication runs inside a task, atomically.
type ServerGame struct {
	id    string
	game  *diplomacy.Game
	tasks chan gameTask
	stop  chan struct{}

	// quarantined flips when a task violates an invariant (panics); the
	// game then refuses further mutations until operator action.
	quarantined atomic.Bool
}

type gameTask struct {
	fn    func(*diplomacy.Game) error
	reply chan error
}

// newServerGame wraps a game and starts its owner goroutine.
func newServerGame(g *diplomacy.Game) *ServerGame {
	sg := &ServerGame{
		id:    g.ID,
		game:  g,
		tasks: make(chan gameTask, 32),
		stop:  make(chan struct{}),
	}
	go sg.run()
	return sg
}

// run is the single-owner loop: it executes queued tasks serially.
func (sg *ServerGame) run() {
	for {
		select {
		case <-sg.stop:
			return
		case t := <-sg.tasks:
			t.reply <- sg.execute(t.fn)
		}
	}
}

// execute runs one task, converting panics into quarantine.
func (sg *ServerGame) execute(fn func(*diplomacy.Game) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sg.quarantined.Store(true)
			log.Error().
				Str("gameId", sg.id).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Invariant violation, quarantining game")
			err = protocol.Errorf(protocol.ErrInternal, "game %s quarantined", sg.id)
		}
	}()
	if sg.quarantined.Load() {
		return protocol.Errorf(protocol.ErrInternal, "game %s quarantined", sg.id)
	}
	return fn(sg.game)
}

// Do enqueues a task on the game's serial queue and waits for it. The
// context bounds only the wait for queue admission and completion; a task
// that has started always runs to completion.
func (sg *ServerGame) Do(ctx context.Context, fn func(*diplomacy.Game) error) error {
	t := gameTask{fn: fn, reply: make(chan error, 1)}
	select {
	case sg.tasks <- t:
	case <-sg.stop:
		return protocol.Errorf(protocol.ErrNotFound, "game %s is gone", sg.id)
	case <-ctx.Done():
		return fmt.Errorf("game %s: enqueue: %w", sg.id, ctx.Err())
	}
	select {
	case err := <-t.reply:
		return err
	case <-sg.stop:
		return protocol.Errorf(protocol.ErrNotFound, "game %s is gone", sg.id)
	case <-ctx.Done():
		// The task still commits; only the caller stops waiting.
		return fmt.Errorf("game %s: wait: %w", sg.id, ctx.Err())
	}
}

// Close stops the owner goroutine. Pending tasks are abandoned.
func (sg *ServerGame) Close() {
	select {
	case <-sg.stop:
	default:
		close(sg.stop)
	}
}

// Quarantined reports whether the game has been quarantined.
func (sg *ServerGame) Quarantined() bool {
	return sg.quarantined.Load()
}
