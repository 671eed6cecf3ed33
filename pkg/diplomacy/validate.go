package diplomacy

import "fmt"

// ValidationError describes why an order is invalid. Validation is pure:
// it inspects the map and state and never mutates either.
type ValidationError struct {
	Order   Order
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Order.Describe(), e.Message)
}

// ValidateOrder checks whether a movement-phase order is legal given the
// current game state and map. Returns nil if valid.
func ValidateOrder(order Order, gs *GameState, m *Map) error {
	unit := gs.UnitAt(order.Location)
	if unit == nil {
		return &ValidationError{order, "no unit at " + order.Location}
	}
	if unit.Power != order.Power {
		return &ValidationError{order, fmt.Sprintf("unit belongs to %s, not %s", unit.Power, order.Power)}
	}
	if unit.Type != order.UnitType {
		return &ValidationError{order, fmt.Sprintf("unit is %s, not %s", unit.Type, order.UnitType)}
	}

	switch order.Type {
	case OrderHold:
		return nil
	case OrderMove:
		return validateMove(order, gs, m)
	case OrderSupport:
		return validateSupport(order, gs, m)
	case OrderConvoy:
		return validateConvoy(order, gs, m)
	default:
		return &ValidationError{order, "unknown order type"}
	}
}

func validateMove(order Order, gs *GameState, m *Map) error {
	isFleet := order.UnitType == Fleet
	target := m.Provinces[order.Target]
	if target == nil {
		return &ValidationError{order, "target province does not exist: " + order.Target}
	}
	if order.Target == order.Location {
		return &ValidationError{order, "cannot move to own province"}
	}

	if !m.UnitTypeLegal(order.UnitType, order.Target) {
		if isFleet {
			return &ValidationError{order, "fleet cannot move to inland province"}
		}
		return &ValidationError{order, "army cannot move to sea province"}
	}

	if !order.ViaConvoy && m.Adjacent(order.Location, order.Coast, order.Target, order.TargetCoast, isFleet) {
		if isFleet && m.HasCoasts(order.Target) {
			return validateFleetCoast(order, m)
		}
		return nil
	}

	// Not directly adjacent (or explicitly via convoy): an army may cross
	// water if a convoy route is even conceivable.
	if !isFleet && m.WaterDistance(order.Location, order.Target) >= 0 {
		return nil
	}

	return &ValidationError{order, fmt.Sprintf("cannot move from %s to %s", order.Location, order.Target)}
}

func validateFleetCoast(order Order, m *Map) error {
	coasts := m.FleetCoastsTo(order.Location, order.Coast, order.Target)
	if order.TargetCoast == NoCoast {
		if len(coasts) == 0 {
			return &ValidationError{order, "fleet cannot reach any coast of " + order.Target}
		}
		if len(coasts) > 1 {
			return &ValidationError{order, "must specify coast for " + order.Target}
		}
		return nil
	}
	for _, c := range coasts {
		if c == order.TargetCoast {
			return nil
		}
	}
	return &ValidationError{order, fmt.Sprintf("fleet cannot reach %s/%s from %s", order.Target, order.TargetCoast, order.Location)}
}

func validateSupport(order Order, gs *GameState, m *Map) error {
	supported := gs.UnitAt(order.AuxLoc)
	if supported == nil {
		return &ValidationError{order, "no unit at " + order.AuxLoc + " to support"}
	}

	isFleet := order.UnitType == Fleet

	if order.AuxTarget == "" {
		// Support hold: the supporter must be able to move to the held province.
		if !m.Adjacent(order.Location, order.Coast, order.AuxLoc, NoCoast, isFleet) {
			return &ValidationError{order, fmt.Sprintf("cannot support hold at %s from %s", order.AuxLoc, order.Location)}
		}
		return nil
	}

	// Support move: the supporter must be able to move to the destination;
	// it need not be adjacent to the supported unit itself.
	if !m.Adjacent(order.Location, order.Coast, order.AuxTarget, NoCoast, isFleet) {
		return &ValidationError{order, fmt.Sprintf("cannot support move to %s from %s", order.AuxTarget, order.Location)}
	}

	supportedIsFleet := supported.Type == Fleet
	if !m.Adjacent(order.AuxLoc, supported.Coast, order.AuxTarget, NoCoast, supportedIsFleet) {
		if supported.Type == Army && m.WaterDistance(order.AuxLoc, order.AuxTarget) >= 0 {
			return nil
		}
		return &ValidationError{order, fmt.Sprintf("supported unit at %s cannot reach %s", order.AuxLoc, order.AuxTarget)}
	}

	return nil
}

func validateConvoy(order Order, gs *GameState, m *Map) error {
	if order.UnitType != Fleet {
		return &ValidationError{order, "only fleets can convoy"}
	}

	prov := m.Provinces[order.Location]
	if prov == nil || prov.Type != Sea {
		return &ValidationError{order, "fleet must be in a sea province to convoy"}
	}

	convoyed := gs.UnitAt(order.AuxLoc)
	if convoyed == nil {
		return &ValidationError{order, "no unit at " + order.AuxLoc + " to convoy"}
	}
	if convoyed.Type != Army {
		return &ValidationError{order, "only armies can be convoyed"}
	}

	if m.WaterDistance(order.AuxLoc, order.AuxTarget) < 0 {
		return &ValidationError{order, fmt.Sprintf("no water route from %s to %s", order.AuxLoc, order.AuxTarget)}
	}

	return nil
}

// ValidateAndDefaultOrders takes submitted orders and returns a complete set
// of orders for all units of all powers. Units without orders get a default
// Hold. Invalid orders are replaced with Hold and reported as VOID.
func ValidateAndDefaultOrders(orders []Order, gs *GameState, m *Map) ([]Order, []ResolvedOrder) {
	ordered := make(map[string]bool) // province -> has order
	var valid []Order
	var voided []ResolvedOrder

	for _, o := range orders {
		if ordered[o.Location] {
			// One order per unit: later callers replace earlier at the
			// submission layer; duplicates arriving here are void.
			voided = append(voided, ResolvedOrder{Order: o, Results: ResultSet{ResultVoid}})
			continue
		}
		if err := ValidateOrder(o, gs, m); err != nil {
			hold := Order{
				UnitType: o.UnitType,
				Power:    o.Power,
				Location: o.Location,
				Coast:    o.Coast,
				Type:     OrderHold,
			}
			if gs.UnitAt(o.Location) != nil {
				valid = append(valid, hold)
				ordered[o.Location] = true
			}
			voided = append(voided, ResolvedOrder{Order: o, Results: ResultSet{ResultVoid}})
			continue
		}
		valid = append(valid, o)
		ordered[o.Location] = true
	}

	for _, unit := range gs.Units {
		if !ordered[unit.Province] {
			valid = append(valid, Order{
				UnitType: unit.Type,
				Power:    unit.Power,
				Location: unit.Province,
				Coast:    unit.Coast,
				Type:     OrderHold,
			})
		}
	}

	return valid, voided
}
