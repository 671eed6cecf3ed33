package diplomacy

import "testing"

// stateWith builds a movement-phase state containing only the given units.
func stateWith(units ...Unit) *GameState {
	return &GameState{
		Year:          1901,
		Season:        Spring,
		Phase:         PhaseMovement,
		Units:         units,
		SupplyCenters: make(map[string]Power),
	}
}

// resultFor returns the result set of the order issued at loc.
func resultFor(res *Resolution, loc string) ResultSet {
	for _, ro := range res.Orders {
		if ro.Order.Location == loc {
			return ro.Results
		}
	}
	return nil
}

func move(ut UnitType, p Power, from, to string) Order {
	return Order{UnitType: ut, Power: p, Location: from, Type: OrderMove, Target: to}
}

func moveVia(p Power, from, to string) Order {
	return Order{UnitType: Army, Power: p, Location: from, Type: OrderMove, Target: to, ViaConvoy: true}
}

func hold(ut UnitType, p Power, at string) Order {
	return Order{UnitType: ut, Power: p, Location: at, Type: OrderHold}
}

func supportMove(ut UnitType, p Power, at, auxFrom, auxTo string) Order {
	return Order{UnitType: ut, Power: p, Location: at, Type: OrderSupport, AuxLoc: auxFrom, AuxTarget: auxTo}
}

func supportHold(ut UnitType, p Power, at, aux string) Order {
	return Order{UnitType: ut, Power: p, Location: at, Type: OrderSupport, AuxLoc: aux}
}

func convoy(p Power, fleetAt, auxFrom, auxTo string) Order {
	return Order{UnitType: Fleet, Power: p, Location: fleetAt, Type: OrderConvoy, AuxLoc: auxFrom, AuxTarget: auxTo, AuxUnitType: Army}
}

func resolveAll(t *testing.T, gs *GameState, orders []Order) *Resolution {
	t.Helper()
	m := StandardMap()
	full, voided := ValidateAndDefaultOrders(orders, gs, m)
	if len(voided) > 0 {
		t.Fatalf("unexpected void orders: %v", voided)
	}
	return ResolveOrders(full, gs, m)
}

// Two unsupported moves into the same province bounce; both units stay.
func TestBounceInBurgundy(t *testing.T) {
	gs := stateWith(
		Unit{Army, France, "par", NoCoast},
		Unit{Army, Germany, "mun", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		move(Army, France, "par", "bur"),
		move(Army, Germany, "mun", "bur"),
	})

	if !resultFor(res, "par").Has(ResultBounce) {
		t.Error("par -> bur should bounce")
	}
	if !resultFor(res, "mun").Has(ResultBounce) {
		t.Error("mun -> bur should bounce")
	}

	ApplyResolution(gs, StandardMap(), res)
	if gs.UnitAt("par") == nil || gs.UnitAt("mun") == nil {
		t.Error("both units should remain in place after the bounce")
	}
	if gs.UnitAt("bur") != nil {
		t.Error("burgundy should stay empty")
	}
}

// A supported attack dislodges an unsupported holder.
func TestSupportedAttackDislodges(t *testing.T) {
	gs := stateWith(
		Unit{Army, France, "par", NoCoast},
		Unit{Army, France, "mar", NoCoast},
		Unit{Army, Germany, "bur", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		move(Army, France, "par", "bur"),
		supportMove(Army, France, "mar", "par", "bur"),
		hold(Army, Germany, "bur"),
	})

	if !resultFor(res, "par").Succeeded() {
		t.Error("supported par -> bur should succeed")
	}
	if !resultFor(res, "bur").Has(ResultDislodged) {
		t.Error("german army in bur should be dislodged")
	}

	ApplyResolution(gs, StandardMap(), res)
	if u := gs.UnitAt("bur"); u == nil || u.Power != France {
		t.Error("french army should occupy burgundy")
	}
	if len(gs.Dislodged) != 1 || gs.Dislodged[0].AttackerFrom != "par" {
		t.Errorf("dislodged bookkeeping wrong: %+v", gs.Dislodged)
	}
}

// Cutting the supporting unit reduces the attack back to a bounce.
func TestCutSupportTurnsAttackIntoBounce(t *testing.T) {
	gs := stateWith(
		Unit{Army, France, "par", NoCoast},
		Unit{Army, France, "mar", NoCoast},
		Unit{Army, Germany, "bur", NoCoast},
		Unit{Army, Germany, "gas", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		move(Army, France, "par", "bur"),
		supportMove(Army, France, "mar", "par", "bur"),
		hold(Army, Germany, "bur"),
		move(Army, Germany, "gas", "mar"),
	})

	if !resultFor(res, "mar").Has(ResultCut) {
		t.Error("mar support should be cut")
	}
	if !resultFor(res, "par").Has(ResultBounce) {
		t.Error("par -> bur should bounce once support is cut")
	}
	if !resultFor(res, "gas").Has(ResultBounce) {
		t.Error("gas -> mar should bounce (1 vs hold 1)")
	}
	if resultFor(res, "bur").Has(ResultDislodged) {
		t.Error("bur should not be dislodged")
	}
}

// Dislodging the only convoying fleet leaves the army ashore with NO_CONVOY.
func TestConvoyDisruption(t *testing.T) {
	gs := stateWith(
		Unit{Fleet, England, "eng", NoCoast},
		Unit{Army, England, "lon", NoCoast},
		Unit{Fleet, France, "mao", NoCoast},
		Unit{Fleet, France, "iri", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		convoy(England, "eng", "lon", "bre"),
		moveVia(England, "lon", "bre"),
		move(Fleet, France, "mao", "eng"),
		supportMove(Fleet, France, "iri", "mao", "eng"),
	})

	if !resultFor(res, "eng").Has(ResultDislodged) {
		t.Error("convoying fleet should be dislodged")
	}
	if !resultFor(res, "eng").Has(ResultDisrupted) {
		t.Error("convoy order should be disrupted")
	}
	if !resultFor(res, "lon").Has(ResultNoConvoy) {
		t.Error("lon -> bre should be NO_CONVOY")
	}

	ApplyResolution(gs, StandardMap(), res)
	if u := gs.UnitAt("lon"); u == nil || u.Type != Army {
		t.Error("army should hold in london")
	}
}

// Three units rotating through each other's provinces all succeed.
func TestCircularMovement(t *testing.T) {
	gs := stateWith(
		Unit{Army, Germany, "boh", NoCoast},
		Unit{Army, Germany, "mun", NoCoast},
		Unit{Army, Germany, "sil", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		move(Army, Germany, "boh", "mun"),
		move(Army, Germany, "mun", "sil"),
		move(Army, Germany, "sil", "boh"),
	})

	for _, loc := range []string{"boh", "mun", "sil"} {
		if !resultFor(res, loc).Succeeded() {
			t.Errorf("circular move from %s should succeed, got %v", loc, resultFor(res, loc))
		}
	}
	if len(res.Dislodged) != 0 {
		t.Error("circular movement must not dislodge")
	}
}

// Two adjacent units trying to trade places head-to-head both bounce;
// a swap needs a convoy on one leg.
func TestHeadToHeadSwapBounces(t *testing.T) {
	gs := stateWith(
		Unit{Army, Germany, "hol", NoCoast},
		Unit{Army, France, "bel", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		move(Army, Germany, "hol", "bel"),
		move(Army, France, "bel", "hol"),
	})

	if !resultFor(res, "hol").Has(ResultBounce) || !resultFor(res, "bel").Has(ResultBounce) {
		t.Error("direct swap must bounce head-to-head")
	}
	if len(res.Dislodged) != 0 {
		t.Error("head-to-head tie must not dislodge")
	}
}

// A convoyed army and a direct mover may trade places: the convoyed move
// never engages head-to-head.
func TestConvoySwapSucceeds(t *testing.T) {
	gs := stateWith(
		Unit{Army, England, "nwy", NoCoast},
		Unit{Army, Russia, "swe", NoCoast},
		Unit{Fleet, England, "ska", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		moveVia(England, "nwy", "swe"),
		move(Army, Russia, "swe", "nwy"),
		convoy(England, "ska", "nwy", "swe"),
	})

	if !resultFor(res, "nwy").Succeeded() {
		t.Errorf("convoyed nwy -> swe should succeed, got %v", resultFor(res, "nwy"))
	}
	if !resultFor(res, "swe").Succeeded() {
		t.Errorf("swe -> nwy should succeed, got %v", resultFor(res, "swe"))
	}
}

// Determinism: identical inputs resolve identically across many runs.
func TestResolutionDeterminism(t *testing.T) {
	build := func() (*GameState, []Order) {
		gs := stateWith(
			Unit{Army, France, "par", NoCoast},
			Unit{Army, France, "mar", NoCoast},
			Unit{Army, Germany, "bur", NoCoast},
			Unit{Army, Germany, "gas", NoCoast},
			Unit{Fleet, England, "eng", NoCoast},
			Unit{Army, England, "lon", NoCoast},
		)
		orders := []Order{
			move(Army, France, "par", "bur"),
			supportMove(Army, France, "mar", "par", "bur"),
			hold(Army, Germany, "bur"),
			move(Army, Germany, "gas", "mar"),
			convoy(England, "eng", "lon", "bre"),
			moveVia(England, "lon", "bre"),
		}
		return gs, orders
	}

	gs0, orders0 := build()
	ref := resolveAll(t, gs0, orders0)
	for i := 0; i < 50; i++ {
		gs, orders := build()
		got := resolveAll(t, gs, orders)
		if len(got.Orders) != len(ref.Orders) {
			t.Fatalf("run %d: order count differs", i)
		}
		for j := range got.Orders {
			if got.Orders[j].Order != ref.Orders[j].Order {
				t.Fatalf("run %d: order %d differs", i, j)
			}
			a, b := got.Orders[j].Results, ref.Orders[j].Results
			if len(a) != len(b) {
				t.Fatalf("run %d: results differ at %d", i, j)
			}
			for k := range a {
				if a[k] != b[k] {
					t.Fatalf("run %d: results differ at %d", i, j)
				}
			}
		}
	}
}

// No adjudication outcome lets a power dislodge its own unit.
func TestSelfDislodgeForbidden(t *testing.T) {
	gs := stateWith(
		Unit{Army, Germany, "ber", NoCoast},
		Unit{Army, Germany, "sil", NoCoast},
		Unit{Army, Germany, "pru", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		hold(Army, Germany, "ber"),
		move(Army, Germany, "sil", "ber"),
		supportMove(Army, Germany, "pru", "sil", "ber"),
	})

	if !resultFor(res, "sil").Has(ResultBounce) {
		t.Error("attack on own unit must fail")
	}
	if len(res.Dislodged) != 0 {
		t.Error("self-dislodgement must never happen")
	}
}

// Supports from the defender's owner do not count toward dislodging it.
func TestForeignSupportCannotDislodgeOwnUnit(t *testing.T) {
	gs := stateWith(
		Unit{Army, Germany, "ber", NoCoast},
		Unit{Army, Russia, "sil", NoCoast},
		Unit{Army, Germany, "pru", NoCoast},
	)
	res := resolveAll(t, gs, []Order{
		hold(Army, Germany, "ber"),
		move(Army, Russia, "sil", "ber"),
		supportMove(Army, Germany, "pru", "sil", "ber"),
	})

	if !resultFor(res, "sil").Has(ResultBounce) {
		t.Error("german support must not help dislodge the german army")
	}
	if len(res.Dislodged) != 0 {
		t.Error("no dislodgement expected")
	}
}
