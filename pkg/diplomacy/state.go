package diplomacy

// Season represents a game season.
type Season string

const (
	Spring Season = "spring"
	Fall   Season = "fall"
)

// PhaseType represents the type of game phase.
type PhaseType string

const (
	PhaseMovement   PhaseType = "movement"
	PhaseRetreat    PhaseType = "retreat"
	PhaseAdjustment PhaseType = "adjustment"
)

// GameState represents a complete snapshot of the board at a point in time.
type GameState struct {
	Year          int              `json:"year"`
	Season        Season           `json:"season"`
	Phase         PhaseType        `json:"phase"`
	Units         []Unit           `json:"units"`
	SupplyCenters map[string]Power `json:"supply_centers"` // province ID -> owning power
	Dislodged     []DislodgedUnit  `json:"dislodged,omitempty"`
	// Contested lists provinces left vacant by a standoff in the preceding
	// movement phase; dislodged units may not retreat into them.
	Contested []string `json:"contested,omitempty"`
}

// DislodgedUnit is a unit that was dislodged and needs a retreat order.
type DislodgedUnit struct {
	Unit          Unit   `json:"unit"`
	DislodgedFrom string `json:"dislodged_from"` // Province the unit was dislodged from
	AttackerFrom  string `json:"attacker_from"`  // Province the attacker came from (cannot retreat there)
	// AttackerViaConvoy records that the dislodging move arrived by convoy,
	// which re-opens the attacker's origin as a retreat target.
	AttackerViaConvoy bool `json:"attacker_via_convoy,omitempty"`
}

// NewInitialState returns the standard starting position (Spring 1901 Movement).
func NewInitialState(m *Map) *GameState {
	gs := &GameState{
		Year:          1901,
		Season:        Spring,
		Phase:         PhaseMovement,
		SupplyCenters: make(map[string]Power),
	}
	for _, power := range AllPowers() {
		gs.Units = append(gs.Units, m.StartingUnits(power)...)
	}
	for _, sc := range m.SupplyCenters() {
		gs.SupplyCenters[sc] = m.Provinces[sc].HomePower
	}
	return gs
}

// UnitAt returns the unit at the given province, or nil if none.
func (gs *GameState) UnitAt(province string) *Unit {
	for i := range gs.Units {
		if gs.Units[i].Province == province {
			return &gs.Units[i]
		}
	}
	return nil
}

// SupplyCenterCount returns the number of supply centers owned by the power.
func (gs *GameState) SupplyCenterCount(power Power) int {
	count := 0
	for _, owner := range gs.SupplyCenters {
		if owner == power {
			count++
		}
	}
	return count
}

// UnitCount returns the number of units belonging to the power.
func (gs *GameState) UnitCount(power Power) int {
	count := 0
	for _, u := range gs.Units {
		if u.Power == power {
			count++
		}
	}
	return count
}

// UnitsOf returns all units belonging to the power.
func (gs *GameState) UnitsOf(power Power) []Unit {
	var units []Unit
	for _, u := range gs.Units {
		if u.Power == power {
			units = append(units, u)
		}
	}
	return units
}

// DislodgedOf returns all dislodged units belonging to the power.
func (gs *GameState) DislodgedOf(power Power) []DislodgedUnit {
	var out []DislodgedUnit
	for _, d := range gs.Dislodged {
		if d.Unit.Power == power {
			out = append(out, d)
		}
	}
	return out
}

// IsContested reports whether a standoff occurred in the province last phase.
func (gs *GameState) IsContested(province string) bool {
	for _, p := range gs.Contested {
		if p == province {
			return true
		}
	}
	return false
}

// PowerIsAlive returns true if the power has at least one supply center or unit.
func (gs *GameState) PowerIsAlive(power Power) bool {
	return gs.SupplyCenterCount(power) > 0 || gs.UnitCount(power) > 0
}

// BuildDelta returns owned centers minus units for the power. Positive means
// builds available, negative means disbands required.
func (gs *GameState) BuildDelta(power Power) int {
	return gs.SupplyCenterCount(power) - gs.UnitCount(power)
}

// Clone returns a deep copy of the GameState. Mutations to the clone do not
// affect the original, which is needed when history snapshots must survive
// later in-place resolution.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		Year:   gs.Year,
		Season: gs.Season,
		Phase:  gs.Phase,
	}
	if gs.Units != nil {
		c.Units = make([]Unit, len(gs.Units))
		copy(c.Units, gs.Units)
	}
	if gs.SupplyCenters != nil {
		c.SupplyCenters = make(map[string]Power, len(gs.SupplyCenters))
		for k, v := range gs.SupplyCenters {
			c.SupplyCenters[k] = v
		}
	}
	if gs.Dislodged != nil {
		c.Dislodged = make([]DislodgedUnit, len(gs.Dislodged))
		copy(c.Dislodged, gs.Dislodged)
	}
	if gs.Contested != nil {
		c.Contested = make([]string, len(gs.Contested))
		copy(c.Contested, gs.Contested)
	}
	return c
}
