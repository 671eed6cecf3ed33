package diplomacy

// NextPhase computes the phase following the current one.
// Movement -> Retreat when there are dislodgements, otherwise onward.
// Spring flows to Fall movement; Fall always flows to adjustment (Game
// skips an adjustment phase with no deltas); adjustment flows to next
// Spring movement.
func NextPhase(gs *GameState, hasDislodgements bool) (Season, PhaseType) {
	switch gs.Phase {
	case PhaseMovement:
		if hasDislodgements {
			return gs.Season, PhaseRetreat
		}
		return afterMovement(gs.Season)
	case PhaseRetreat:
		return afterMovement(gs.Season)
	case PhaseAdjustment:
		return Spring, PhaseMovement
	}
	return Spring, PhaseMovement
}

func afterMovement(season Season) (Season, PhaseType) {
	if season == Spring {
		return Fall, PhaseMovement
	}
	return Fall, PhaseAdjustment
}

// NeedsAdjustmentPhase returns true if any power has a unit/SC mismatch.
func NeedsAdjustmentPhase(gs *GameState) bool {
	for _, power := range AllPowers() {
		if gs.BuildDelta(power) != 0 {
			return true
		}
	}
	return false
}

// MaxYear is the highest year a game can reach before ending as a draw.
const MaxYear = 3000

// IsYearLimitReached returns true if the game has exceeded the maximum year.
func IsYearLimitReached(gs *GameState) bool {
	return gs.Year > MaxYear
}

// Victor returns the power holding at least the map's victory threshold of
// supply centers, or Neutral if there is none.
func Victor(gs *GameState, m *Map) Power {
	for _, power := range AllPowers() {
		if gs.SupplyCenterCount(power) >= m.VictoryThreshold() {
			return power
		}
	}
	return Neutral
}

// AdvanceState transitions the game state to the next phase. Callers must
// apply resolution results to units before calling this. Supply center
// ownership is recomputed after Fall movement and retreat phases.
func AdvanceState(gs *GameState, m *Map, hasDislodgements bool) {
	nextSeason, nextPhase := NextPhase(gs, hasDislodgements)

	if gs.Season == Fall && (gs.Phase == PhaseMovement || gs.Phase == PhaseRetreat) {
		UpdateSupplyCenterOwnership(gs, m)
	}

	if nextSeason == Spring && nextPhase == PhaseMovement {
		gs.Year++
	}
	gs.Season = nextSeason
	gs.Phase = nextPhase
	if nextPhase != PhaseRetreat {
		gs.Dislodged = nil
		gs.Contested = nil
	}
}

// UpdateSupplyCenterOwnership assigns each occupied supply center to the
// power whose unit stands on it; unoccupied centers keep their owner.
// Idempotent; AdvanceState calls it after Fall movement and retreat phases.
func UpdateSupplyCenterOwnership(gs *GameState, m *Map) {
	for provID := range gs.SupplyCenters {
		prov := m.Provinces[provID]
		if prov == nil || !prov.IsSupplyCenter {
			continue
		}
		if unit := gs.UnitAt(provID); unit != nil {
			gs.SupplyCenters[provID] = unit.Power
		}
	}
}
