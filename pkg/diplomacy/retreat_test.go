package diplomacy

import "testing"

func retreatState(dislodged []DislodgedUnit, units ...Unit) *GameState {
	gs := stateWith(units...)
	gs.Phase = PhaseRetreat
	gs.Dislodged = dislodged
	return gs
}

// Two units retreating to the same province all disband.
func TestRetreatsToSameProvinceDisband(t *testing.T) {
	m := StandardMap()
	gs := retreatState([]DislodgedUnit{
		{Unit: Unit{Army, France, "bur", NoCoast}, DislodgedFrom: "bur", AttackerFrom: "mun"},
		{Unit: Unit{Army, Germany, "pic", NoCoast}, DislodgedFrom: "pic", AttackerFrom: "bre"},
	})

	results := ResolveRetreats([]RetreatOrder{
		{UnitType: Army, Power: France, Location: "bur", Type: RetreatMove, Target: "par"},
		{UnitType: Army, Power: Germany, Location: "pic", Type: RetreatMove, Target: "par"},
	}, gs, m)

	for _, r := range results {
		if r.Results.Succeeded() {
			t.Errorf("retreat from %s to par should fail (standoff)", r.Order.Location)
		}
	}

	ApplyRetreats(gs, results, m)
	if gs.UnitAt("par") != nil {
		t.Error("no unit may enter paris after the retreat standoff")
	}
	if gs.Dislodged != nil {
		t.Error("dislodged list must clear after retreats")
	}
}

// An unordered dislodged unit disbands.
func TestUnorderedDislodgedUnitDisbands(t *testing.T) {
	m := StandardMap()
	gs := retreatState([]DislodgedUnit{
		{Unit: Unit{Army, France, "bur", NoCoast}, DislodgedFrom: "bur", AttackerFrom: "mun"},
	})

	results := ResolveRetreats(nil, gs, m)
	if len(results) != 1 || results[0].Order.Type != RetreatDisband {
		t.Fatalf("expected a default disband, got %+v", results)
	}

	ApplyRetreats(gs, results, m)
	if len(gs.Units) != 0 {
		t.Error("disbanded unit must leave the board")
	}
}

// Retreat options exclude occupied provinces, the attacker's origin, and
// standoff provinces.
func TestRetreatOptions(t *testing.T) {
	m := StandardMap()
	gs := retreatState(
		[]DislodgedUnit{
			{Unit: Unit{Army, Germany, "bur", NoCoast}, DislodgedFrom: "bur", AttackerFrom: "mun"},
		},
		Unit{Army, France, "par", NoCoast},
	)
	gs.Contested = []string{"gas"}

	options := RetreatOptions(gs.Dislodged[0], gs, m)
	for _, opt := range options {
		switch opt {
		case "mun":
			t.Error("attacker origin must not be a retreat option")
		case "par":
			t.Error("occupied province must not be a retreat option")
		case "gas":
			t.Error("standoff province must not be a retreat option")
		}
	}
	if len(options) == 0 {
		t.Error("burgundy must have at least one legal retreat")
	}
}

// A successful retreat re-enters the board at the target.
func TestSuccessfulRetreat(t *testing.T) {
	m := StandardMap()
	gs := retreatState([]DislodgedUnit{
		{Unit: Unit{Army, France, "bur", NoCoast}, DislodgedFrom: "bur", AttackerFrom: "mun"},
	})

	results := ResolveRetreats([]RetreatOrder{
		{UnitType: Army, Power: France, Location: "bur", Type: RetreatMove, Target: "gas"},
	}, gs, m)
	if !results[0].Results.Succeeded() {
		t.Fatalf("retreat to gas should succeed: %+v", results[0])
	}

	ApplyRetreats(gs, results, m)
	if u := gs.UnitAt("gas"); u == nil || u.Power != France {
		t.Error("retreated unit should stand in gascony")
	}
}

// An invalid retreat target disbands the unit.
func TestInvalidRetreatDisbands(t *testing.T) {
	m := StandardMap()
	gs := retreatState([]DislodgedUnit{
		{Unit: Unit{Army, France, "bur", NoCoast}, DislodgedFrom: "bur", AttackerFrom: "mun"},
	})

	results := ResolveRetreats([]RetreatOrder{
		// Burgundy is inland; a retreat to a sea province is illegal.
		{UnitType: Army, Power: France, Location: "bur", Type: RetreatMove, Target: "eng"},
	}, gs, m)
	if !results[0].Results.Has(ResultVoid) {
		t.Fatalf("illegal retreat should be void: %+v", results[0])
	}

	ApplyRetreats(gs, results, m)
	if len(gs.Units) != 0 {
		t.Error("unit with an illegal retreat must disband")
	}
}
