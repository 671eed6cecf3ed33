package diplomacy

// RetreatOrderType represents a retreat-phase order.
type RetreatOrderType int

const (
	RetreatMove    RetreatOrderType = iota // Retreat to adjacent province
	RetreatDisband                         // Unit is disbanded
)

// RetreatOrder represents an order given during the retreat phase.
type RetreatOrder struct {
	UnitType    UnitType         `json:"unit_type"`
	Power       Power            `json:"power"`
	Location    string           `json:"location"` // Where it was dislodged from
	Coast       Coast            `json:"coast,omitempty"`
	Type        RetreatOrderType `json:"type"`
	Target      string           `json:"target,omitempty"`
	TargetCoast Coast            `json:"target_coast,omitempty"`
}

// RetreatResult describes the outcome of a retreat order.
type RetreatResult struct {
	Order   RetreatOrder `json:"order"`
	Results ResultSet    `json:"results"`
}

// RetreatOptions lists the legal retreat targets for a dislodged unit:
// adjacent, unoccupied, not the attacker's origin (unless the attacker
// arrived by convoy), and not a standoff province from the preceding phase.
func RetreatOptions(d DislodgedUnit, gs *GameState, m *Map) []string {
	isFleet := d.Unit.Type == Fleet
	var options []string
	for _, to := range m.ProvincesAdjacentTo(d.DislodgedFrom, d.Unit.Coast, isFleet) {
		if to == d.AttackerFrom && !d.AttackerViaConvoy {
			continue
		}
		if gs.UnitAt(to) != nil {
			continue
		}
		if gs.IsContested(to) {
			continue
		}
		options = append(options, to)
	}
	return options
}

// ValidateRetreatOrder checks if a retreat order is legal.
func ValidateRetreatOrder(order RetreatOrder, gs *GameState, m *Map) error {
	if order.Type == RetreatDisband {
		return nil
	}

	var dislodged *DislodgedUnit
	for i := range gs.Dislodged {
		if gs.Dislodged[i].DislodgedFrom == order.Location && gs.Dislodged[i].Unit.Power == order.Power {
			dislodged = &gs.Dislodged[i]
			break
		}
	}
	if dislodged == nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no dislodged unit at " + order.Location,
		}
	}

	if order.Target == dislodged.AttackerFrom && !dislodged.AttackerViaConvoy {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "cannot retreat to province attacker came from",
		}
	}

	isFleet := order.UnitType == Fleet
	if !m.Adjacent(order.Location, order.Coast, order.Target, order.TargetCoast, isFleet) {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "target not adjacent for retreat",
		}
	}

	if gs.UnitAt(order.Target) != nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "cannot retreat to occupied province",
		}
	}

	if gs.IsContested(order.Target) {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "cannot retreat to a standoff province",
		}
	}

	return nil
}

// ResolveRetreats processes retreat orders. Two units retreating to the same
// province all disband. An absent or invalid retreat disbands the unit.
func ResolveRetreats(orders []RetreatOrder, gs *GameState, m *Map) []RetreatResult {
	var results []RetreatResult

	orderedUnits := make(map[string]bool)
	for _, o := range orders {
		orderedUnits[o.Location] = true
	}

	// Default: disband any unordered dislodged units.
	for _, d := range gs.Dislodged {
		if !orderedUnits[d.DislodgedFrom] {
			results = append(results, RetreatResult{
				Order: RetreatOrder{
					UnitType: d.Unit.Type,
					Power:    d.Unit.Power,
					Location: d.DislodgedFrom,
					Coast:    d.Unit.Coast,
					Type:     RetreatDisband,
				},
				Results: ResultSet{ResultOK},
			})
		}
	}

	targetCounts := make(map[string]int)
	for _, o := range orders {
		if o.Type == RetreatMove && ValidateRetreatOrder(o, gs, m) == nil {
			targetCounts[o.Target]++
		}
	}

	for _, o := range orders {
		if o.Type == RetreatDisband {
			results = append(results, RetreatResult{Order: o, Results: ResultSet{ResultOK}})
			continue
		}

		if err := ValidateRetreatOrder(o, gs, m); err != nil {
			// Invalid retreat disbands the unit.
			results = append(results, RetreatResult{Order: o, Results: ResultSet{ResultVoid}})
			continue
		}

		if targetCounts[o.Target] > 1 {
			results = append(results, RetreatResult{Order: o, Results: ResultSet{ResultBounce}})
		} else {
			results = append(results, RetreatResult{Order: o, Results: ResultSet{ResultOK}})
		}
	}

	return results
}

// ApplyRetreats updates the game state based on resolved retreat orders.
// Bounced and void retreats disband; successful moves re-enter the board.
func ApplyRetreats(gs *GameState, results []RetreatResult, m *Map) {
	for _, r := range results {
		if r.Order.Type == RetreatMove && r.Results.Succeeded() {
			coast := r.Order.TargetCoast
			if coast == NoCoast && m.HasCoasts(r.Order.Target) {
				coasts := m.FleetCoastsTo(r.Order.Location, r.Order.Coast, r.Order.Target)
				if len(coasts) == 1 {
					coast = coasts[0]
				}
			}
			gs.Units = append(gs.Units, Unit{
				Type:     r.Order.UnitType,
				Power:    r.Order.Power,
				Province: r.Order.Target,
				Coast:    coast,
			})
		}
	}

	gs.Dislodged = nil
	gs.Contested = nil
}
