package diplomacy

import "testing"

func TestParseDSONMovementOrders(t *testing.T) {
	m := StandardMap()
	cases := []struct {
		text string
		want DSONOrder
	}{
		{"A par H", DSONOrder{Type: DSONHold, UnitType: Army, Location: "par"}},
		{"A PAR - BUR", DSONOrder{Type: DSONMove, UnitType: Army, Location: "par", Target: "bur"}},
		{"A lon - bre VIA", DSONOrder{Type: DSONMove, UnitType: Army, Location: "lon", Target: "bre", ViaConvoy: true}},
		{"A mar S A par - bur", DSONOrder{Type: DSONSupportMove, UnitType: Army, Location: "mar", AuxUnitType: Army, AuxLocation: "par", AuxTarget: "bur"}},
		{"A tyr S A vie H", DSONOrder{Type: DSONSupportHold, UnitType: Army, Location: "tyr", AuxUnitType: Army, AuxLocation: "vie"}},
		{"F eng C A lon - bre", DSONOrder{Type: DSONConvoy, UnitType: Fleet, Location: "eng", AuxUnitType: Army, AuxLocation: "lon", AuxTarget: "bre"}},
		{"F stp/nc - bar", DSONOrder{Type: DSONMove, UnitType: Fleet, Location: "stp", Coast: NorthCoast, Target: "bar"}},
		{"A vie R boh", DSONOrder{Type: DSONRetreat, UnitType: Army, Location: "vie", Target: "boh"}},
		{"F tri D", DSONOrder{Type: DSONDisband, UnitType: Fleet, Location: "tri"}},
		{"A vie B", DSONOrder{Type: DSONBuild, UnitType: Army, Location: "vie"}},
		{"W", DSONOrder{Type: DSONWaive}},
	}
	for _, c := range cases {
		got, err := ParseDSON(c.text, m)
		if err != nil {
			t.Errorf("ParseDSON(%q): %v", c.text, err)
			continue
		}
		if len(got) != 1 {
			t.Errorf("ParseDSON(%q) returned %d orders", c.text, len(got))
			continue
		}
		if got[0] != c.want {
			t.Errorf("ParseDSON(%q) = %+v, want %+v", c.text, got[0], c.want)
		}
	}
}

func TestParseDSONFullNames(t *testing.T) {
	m := StandardMap()
	got, err := ParseDSON("A Paris - Burgundy", m)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Location != "par" || got[0].Target != "bur" {
		t.Errorf("full names should resolve, got %+v", got[0])
	}
}

func TestParseDSONRejectsMalformed(t *testing.T) {
	m := StandardMap()
	for _, text := range []string{
		"A",
		"A par",
		"A par X bur",
		"A xyz - bur",
		"A par - xyz",
		"F stp/zz - bar",
		"A mar S",
	} {
		if _, err := ParseDSON(text, m); err == nil {
			t.Errorf("ParseDSON(%q) should fail", text)
		}
	}
}

func TestDSONFormatParseRoundTrip(t *testing.T) {
	m := StandardMap()
	orders := []DSONOrder{
		{Type: DSONHold, UnitType: Army, Location: "par"},
		{Type: DSONMove, UnitType: Fleet, Location: "stp", Coast: NorthCoast, Target: "bar"},
		{Type: DSONMove, UnitType: Army, Location: "lon", Target: "bre", ViaConvoy: true},
		{Type: DSONSupportMove, UnitType: Army, Location: "mar", AuxUnitType: Army, AuxLocation: "par", AuxTarget: "bur"},
		{Type: DSONSupportHold, UnitType: Fleet, Location: "eng", AuxUnitType: Army, AuxLocation: "bre"},
		{Type: DSONConvoy, UnitType: Fleet, Location: "eng", AuxUnitType: Army, AuxLocation: "lon", AuxTarget: "bre"},
		{Type: DSONRetreat, UnitType: Army, Location: "vie", Target: "boh"},
		{Type: DSONDisband, UnitType: Fleet, Location: "tri"},
		{Type: DSONBuild, UnitType: Army, Location: "vie"},
		{Type: DSONWaive},
	}

	text := FormatDSON(orders)
	back, err := ParseDSON(text, m)
	if err != nil {
		t.Fatalf("ParseDSON(%q): %v", text, err)
	}
	if len(back) != len(orders) {
		t.Fatalf("round trip changed order count: %d -> %d", len(orders), len(back))
	}
	for i := range orders {
		if back[i] != orders[i] {
			t.Errorf("order %d round trip mismatch: %+v -> %+v", i, orders[i], back[i])
		}
	}
}

func TestDSONOrderConversions(t *testing.T) {
	d := DSONOrder{Type: DSONMove, UnitType: Army, Location: "par", Target: "bur"}
	o := DSONToOrder(d, France)
	if o.Power != France || o.Type != OrderMove || o.Target != "bur" {
		t.Errorf("DSONToOrder gave %+v", o)
	}
	if got := OrderToDSON(o); got != d {
		t.Errorf("OrderToDSON round trip gave %+v", got)
	}

	r := DSONToRetreatOrder(DSONOrder{Type: DSONRetreat, UnitType: Army, Location: "vie", Target: "boh"}, Austria)
	if r.Type != RetreatMove || r.Target != "boh" {
		t.Errorf("DSONToRetreatOrder gave %+v", r)
	}

	b := DSONToBuildOrder(DSONOrder{Type: DSONWaive}, Italy)
	if b.Type != WaiveBuild {
		t.Errorf("DSONToBuildOrder gave %+v", b)
	}
}
