package diplomacy

import "testing"

// adjustmentState builds a Fall adjustment state with the given units and
// centers.
func adjustmentState(units []Unit, centers map[string]Power) *GameState {
	return &GameState{
		Year:          1901,
		Season:        Fall,
		Phase:         PhaseAdjustment,
		Units:         units,
		SupplyCenters: centers,
	}
}

// A power owing two disbands that submits none loses the two units
// farthest from home, fleets before armies, then alphabetically — and the
// choice is deterministic.
func TestCivilDisorderDisbandOrdering(t *testing.T) {
	m := StandardMap()
	// France with 4 units but only 2 centers: must disband 2.
	units := []Unit{
		{Army, France, "par", NoCoast},
		{Army, France, "pie", NoCoast},
		{Fleet, France, "naf", NoCoast},
		{Army, France, "apu", NoCoast},
	}
	centers := map[string]Power{"par": France, "mar": France}

	var first []string
	for run := 0; run < 20; run++ {
		gs := adjustmentState(append([]Unit(nil), units...), centers)
		results := ResolveBuildOrders(nil, gs, m, NewRuleSet())

		var disbanded []string
		for _, r := range results {
			if r.Order.Type == DisbandUnit && r.Results.Succeeded() {
				disbanded = append(disbanded, r.Order.Location)
			}
		}
		if len(disbanded) != 2 {
			t.Fatalf("expected 2 auto-disbands, got %v", disbanded)
		}
		if run == 0 {
			first = disbanded
			// naf (two steps) and apu (three steps) are the two units
			// farthest from the French home centers; apu is strictly
			// farther than pie (one step) and par (home).
			if disbanded[0] == "par" || disbanded[1] == "par" {
				t.Errorf("home-adjacent unit disbanded before distant ones: %v", disbanded)
			}
			continue
		}
		if disbanded[0] != first[0] || disbanded[1] != first[1] {
			t.Fatalf("civil disorder not deterministic: run %d gave %v, first gave %v", run, disbanded, first)
		}
	}
}

// Fleets disband before armies at equal distance, then alphabetically.
func TestCivilDisorderFleetBeforeArmy(t *testing.T) {
	m := StandardMap()
	// Both units sit in home centers (distance 0); one disband required.
	units := []Unit{
		{Army, England, "lvp", NoCoast},
		{Fleet, England, "lon", NoCoast},
	}
	centers := map[string]Power{"lon": England}
	gs := adjustmentState(units, centers)

	results := ResolveBuildOrders(nil, gs, m, NewRuleSet())
	var disbanded []string
	for _, r := range results {
		if r.Order.Type == DisbandUnit && r.Results.Succeeded() {
			disbanded = append(disbanded, r.Order.Location)
		}
	}
	if len(disbanded) != 1 || disbanded[0] != "lon" {
		t.Errorf("fleet should disband before army at equal distance, got %v", disbanded)
	}
}

func TestBuildRequiresHomeCenter(t *testing.T) {
	m := StandardMap()
	gs := adjustmentState(
		[]Unit{{Army, France, "par", NoCoast}},
		map[string]Power{"par": France, "mar": France, "spa": France},
	)

	badOrder := BuildOrder{Power: France, Type: BuildUnit, UnitType: Army, Location: "spa"}
	if err := ValidateBuildOrder(badOrder, gs, m, NewRuleSet()); err == nil {
		t.Error("build outside home centers must fail without BUILD_ANY")
	}
	if err := ValidateBuildOrder(badOrder, gs, m, NewRuleSet(RuleBuildAny)); err != nil {
		t.Errorf("BUILD_ANY should allow building in any owned center: %v", err)
	}
}

func TestBuildValidation(t *testing.T) {
	m := StandardMap()
	gs := adjustmentState(
		[]Unit{{Army, France, "par", NoCoast}},
		map[string]Power{"par": France, "mar": France, "bre": France},
	)

	// Occupied home center.
	if err := ValidateBuildOrder(BuildOrder{Power: France, Type: BuildUnit, UnitType: Army, Location: "par"}, gs, m, NewRuleSet()); err == nil {
		t.Error("build in occupied province must fail")
	}
	// Fleet in a coastal home center.
	if err := ValidateBuildOrder(BuildOrder{Power: France, Type: BuildUnit, UnitType: Fleet, Location: "mar"}, gs, m, NewRuleSet()); err != nil {
		t.Errorf("fleet build in coastal marseilles should pass: %v", err)
	}
	// Valid army build.
	if err := ValidateBuildOrder(BuildOrder{Power: France, Type: BuildUnit, UnitType: Army, Location: "bre"}, gs, m, NewRuleSet()); err != nil {
		t.Errorf("army build in brest should pass: %v", err)
	}
}

func TestApplyBuildOrders(t *testing.T) {
	m := StandardMap()
	gs := adjustmentState(
		[]Unit{{Army, France, "gas", NoCoast}},
		map[string]Power{"par": France, "mar": France},
	)

	results := ResolveBuildOrders([]BuildOrder{
		{Power: France, Type: BuildUnit, UnitType: Army, Location: "par"},
	}, gs, m, NewRuleSet())
	ApplyBuildOrders(gs, results)

	if gs.UnitCount(France) != 2 {
		t.Errorf("expected 2 french units after build, got %d", gs.UnitCount(France))
	}
	if gs.UnitAt("par") == nil {
		t.Error("built unit should stand in paris")
	}
}

// Unit conservation: units_after + disbanded = units_before + built.
func TestUnitConservationThroughAdjustment(t *testing.T) {
	m := StandardMap()
	gs := adjustmentState(
		[]Unit{
			{Army, France, "par", NoCoast},
			{Army, France, "pie", NoCoast},
			{Fleet, Germany, "kie", NoCoast},
		},
		map[string]Power{"par": France, "kie": Germany, "ber": Germany},
	)

	before := len(gs.Units)
	results := ResolveBuildOrders([]BuildOrder{
		{Power: Germany, Type: BuildUnit, UnitType: Army, Location: "ber"},
	}, gs, m, NewRuleSet())

	built, disbanded := 0, 0
	for _, r := range results {
		if !r.Results.Succeeded() {
			continue
		}
		switch r.Order.Type {
		case BuildUnit:
			built++
		case DisbandUnit:
			disbanded++
		}
	}
	ApplyBuildOrders(gs, results)

	if len(gs.Units)+disbanded != before+built {
		t.Errorf("unit conservation violated: after=%d disbanded=%d before=%d built=%d",
			len(gs.Units), disbanded, before, built)
	}
}
