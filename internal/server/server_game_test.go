package server

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Tasks on one game run strictly one at a time.
func TestServerGameSerialisesTasks(t *testing.T) {
	sg := newServerGame(diplomacy.NewGame("g1", diplomacy.NewRuleSet()))
	defer sg.Close()

	const n = 64
	inFlight := 0
	maxInFlight := 0
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sg.Do(context.Background(), func(g *diplomacy.Game) error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "at most one mutation in flight per game")
}

// A panicking task quarantines the game: the panic maps to INTERNAL and
// later mutations are refused.
func TestServerGameQuarantineOnPanic(t *testing.T) {
	sg := newServerGame(diplomacy.NewGame("g2", diplomacy.NewRuleSet()))
	defer sg.Close()

	err := sg.Do(context.Background(), func(g *diplomacy.Game) error {
		panic("invariant violated")
	})
	require.Error(t, err)
	werr := protocol.AsError(err)
	assert.Equal(t, protocol.ErrInternal, werr.Code)
	assert.True(t, sg.Quarantined())

	err = sg.Do(context.Background(), func(g *diplomacy.Game) error { return nil })
	require.Error(t, err)
	assert.Equal(t, protocol.ErrInternal, protocol.AsError(err).Code)
}

func TestServerGameClosedRefusesWork(t *testing.T) {
	sg := newServerGame(diplomacy.NewGame("g3", diplomacy.NewRuleSet()))
	sg.Close()

	err := sg.Do(context.Background(), func(g *diplomacy.Game) error { return nil })
	assert.Error(t, err)
}
