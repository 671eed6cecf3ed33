package diplomacy

import "fmt"

// OrderType represents the kind of movement-phase order given to a unit.
type OrderType int

const (
	OrderHold    OrderType = iota // Unit holds position
	OrderMove                     // Unit moves to adjacent province (or via convoy)
	OrderSupport                  // Unit supports another unit's hold or move
	OrderConvoy                   // Fleet convoys army across sea
)

func (o OrderType) String() string {
	switch o {
	case OrderHold:
		return "hold"
	case OrderMove:
		return "move"
	case OrderSupport:
		return "support"
	case OrderConvoy:
		return "convoy"
	default:
		return "unknown"
	}
}

// Order represents a single movement-phase order issued to a unit.
type Order struct {
	// Unit being ordered
	UnitType UnitType `json:"unit_type"`
	Power    Power    `json:"power"`
	Location string   `json:"location"`
	Coast    Coast    `json:"coast,omitempty"`

	Type OrderType `json:"type"`

	// Target province (move)
	Target      string `json:"target,omitempty"`
	TargetCoast Coast  `json:"target_coast,omitempty"`

	// ViaConvoy marks a move explicitly ordered through a convoy chain
	// even when the destination is directly adjacent.
	ViaConvoy bool `json:"via_convoy,omitempty"`

	// Aux fields for support and convoy:
	// For support: the province of the supported unit.
	// For convoy: the province of the convoyed army.
	AuxLoc string `json:"aux_loc,omitempty"`
	// For support: the destination of the supported move ("" for support-hold).
	// For convoy: the destination of the convoyed move.
	AuxTarget string `json:"aux_target,omitempty"`
	// For support: the type of the supported unit.
	AuxUnitType UnitType `json:"aux_unit_type,omitempty"`
}

// OrderResult is one outcome flag attached to an adjudicated order.
// An order carries a set of results; a fully successful order carries
// only ResultOK.
type OrderResult int

const (
	ResultOK        OrderResult = iota // Order carried out
	ResultBounce                       // Move failed against equal or greater strength
	ResultVoid                         // Order was invalid, unit treated as holding
	ResultCut                          // Support was cut by an attack
	ResultDislodged                    // Unit was dislodged and must retreat
	ResultDisrupted                    // Convoying fleet was dislodged mid-convoy
	ResultNoConvoy                     // Convoyed move had no intact convoy path
)

func (r OrderResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultBounce:
		return "bounce"
	case ResultVoid:
		return "void"
	case ResultCut:
		return "cut"
	case ResultDislodged:
		return "dislodged"
	case ResultDisrupted:
		return "disrupted"
	case ResultNoConvoy:
		return "no_convoy"
	default:
		return "unknown"
	}
}

// ResultSet is the set of outcomes attached to a single order.
type ResultSet []OrderResult

// Has reports whether the set contains the given result.
func (rs ResultSet) Has(r OrderResult) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// Succeeded reports whether the order fully succeeded: the set is exactly
// {OK}. Any other flag, a dislodgement included, counts as not succeeded.
func (rs ResultSet) Succeeded() bool {
	return len(rs) == 1 && rs[0] == ResultOK
}

// ResolvedOrder pairs an order with its adjudicated result set.
type ResolvedOrder struct {
	Order   Order     `json:"order"`
	Results ResultSet `json:"results"`
}

// Describe returns a human-readable description of the order.
func (o *Order) Describe() string {
	unitStr := "A"
	if o.UnitType == Fleet {
		unitStr = "F"
	}
	loc := o.Location
	if o.Coast != NoCoast {
		loc += "/" + string(o.Coast)
	}

	switch o.Type {
	case OrderHold:
		return fmt.Sprintf("%s %s H", unitStr, loc)
	case OrderMove:
		target := o.Target
		if o.TargetCoast != NoCoast {
			target += "/" + string(o.TargetCoast)
		}
		if o.ViaConvoy {
			return fmt.Sprintf("%s %s - %s VIA", unitStr, loc, target)
		}
		return fmt.Sprintf("%s %s - %s", unitStr, loc, target)
	case OrderSupport:
		auxUnit := "A"
		if o.AuxUnitType == Fleet {
			auxUnit = "F"
		}
		if o.AuxTarget == "" {
			return fmt.Sprintf("%s %s S %s %s", unitStr, loc, auxUnit, o.AuxLoc)
		}
		return fmt.Sprintf("%s %s S %s %s - %s", unitStr, loc, auxUnit, o.AuxLoc, o.AuxTarget)
	case OrderConvoy:
		return fmt.Sprintf("%s %s C A %s - %s", unitStr, loc, o.AuxLoc, o.AuxTarget)
	default:
		return fmt.Sprintf("%s %s ???", unitStr, loc)
	}
}
