package diplomacy

import "sort"

// BuildOrderType represents an adjustment-phase order.
type BuildOrderType int

const (
	BuildUnit   BuildOrderType = iota // Build a new unit
	DisbandUnit                       // Disband an existing unit
	WaiveBuild                        // Voluntarily skip a build
)

// BuildOrder represents an order given during the adjustment phase.
type BuildOrder struct {
	Power    Power          `json:"power"`
	Type     BuildOrderType `json:"type"`
	UnitType UnitType       `json:"unit_type"`
	Location string         `json:"location,omitempty"`
	Coast    Coast          `json:"coast,omitempty"`
}

// BuildResult describes the outcome of a build order.
type BuildResult struct {
	Order   BuildOrder `json:"order"`
	Results ResultSet  `json:"results"`
}

// ValidateBuildOrder checks if an adjustment order is legal under the rules.
func ValidateBuildOrder(order BuildOrder, gs *GameState, m *Map, rules RuleSet) error {
	switch order.Type {
	case BuildUnit:
		return validateBuild(order, gs, m, rules)
	case DisbandUnit:
		return validateDisband(order, gs)
	case WaiveBuild:
		return nil
	default:
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "unknown build order type",
		}
	}
}

func validateBuild(order BuildOrder, gs *GameState, m *Map, rules RuleSet) error {
	if gs.BuildDelta(order.Power) <= 0 {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no builds available (units >= supply centers)",
		}
	}

	prov := m.Provinces[order.Location]
	if prov == nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "province does not exist",
		}
	}
	if !prov.IsSupplyCenter {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "not a supply center",
		}
	}
	if !rules.Has(RuleBuildAny) && prov.HomePower != order.Power {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "not a home supply center",
		}
	}

	if gs.SupplyCenters[order.Location] != order.Power {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "supply center not currently owned",
		}
	}

	if gs.UnitAt(order.Location) != nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "province is occupied",
		}
	}

	if !m.UnitTypeLegal(order.UnitType, order.Location) {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "unit type illegal for province",
		}
	}

	if order.UnitType == Fleet && len(prov.Coasts) > 0 && order.Coast == NoCoast {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "must specify coast for fleet build",
		}
	}

	return nil
}

func validateDisband(order BuildOrder, gs *GameState) error {
	if gs.BuildDelta(order.Power) >= 0 {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no disbands required (units <= supply centers)",
		}
	}

	unit := gs.UnitAt(order.Location)
	if unit == nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no unit at location",
		}
	}
	if unit.Power != order.Power {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "unit belongs to another power",
		}
	}

	return nil
}

// ResolveBuildOrders processes adjustment orders for every power: builds up
// to the positive delta, disbands down to the negative delta, and applies
// the civil-disorder auto-disband rule for missing disbands.
func ResolveBuildOrders(orders []BuildOrder, gs *GameState, m *Map, rules RuleSet) []BuildResult {
	var results []BuildResult

	buildsByPower := make(map[Power][]BuildOrder)
	for _, o := range orders {
		buildsByPower[o.Power] = append(buildsByPower[o.Power], o)
	}

	for _, power := range AllPowers() {
		delta := gs.BuildDelta(power)
		submitted := buildsByPower[power]

		switch {
		case delta > 0:
			built := 0
			for _, o := range submitted {
				if o.Type != BuildUnit && o.Type != WaiveBuild {
					continue
				}
				if built >= delta {
					results = append(results, BuildResult{Order: o, Results: ResultSet{ResultVoid}})
					continue
				}
				if o.Type == WaiveBuild {
					results = append(results, BuildResult{Order: o, Results: ResultSet{ResultOK}})
					built++
					continue
				}
				if err := ValidateBuildOrder(o, gs, m, rules); err != nil {
					results = append(results, BuildResult{Order: o, Results: ResultSet{ResultVoid}})
					continue
				}
				results = append(results, BuildResult{Order: o, Results: ResultSet{ResultOK}})
				built++
			}
			// Unused builds are waived implicitly.

		case delta < 0:
			needed := -delta
			disbanded := 0
			removed := make(map[string]bool)
			for _, o := range submitted {
				if o.Type != DisbandUnit {
					continue
				}
				if err := ValidateBuildOrder(o, gs, m, rules); err != nil {
					results = append(results, BuildResult{Order: o, Results: ResultSet{ResultVoid}})
					continue
				}
				if disbanded >= needed || removed[o.Location] {
					results = append(results, BuildResult{Order: o, Results: ResultSet{ResultVoid}})
					continue
				}
				removed[o.Location] = true
				results = append(results, BuildResult{Order: o, Results: ResultSet{ResultOK}})
				disbanded++
			}

			if disbanded < needed {
				results = append(results, civilDisorder(power, needed-disbanded, removed, gs, m)...)
			}
		}
	}

	return results
}

// civilDisorder auto-disbands units for a power that did not submit enough
// disband orders, by the published rule: farthest from any home supply
// center first, fleets before armies at equal distance, then alphabetical
// by province.
func civilDisorder(power Power, count int, already map[string]bool, gs *GameState, m *Map) []BuildResult {
	units := gs.UnitsOf(power)
	if len(units) == 0 || count == 0 {
		return nil
	}

	homes := m.HomeCenters(power)

	type unitDist struct {
		unit Unit
		dist int
	}
	var candidates []unitDist
	for _, u := range units {
		if already[u.Province] {
			continue
		}
		candidates = append(candidates, unitDist{u, distanceToNearestHome(u.Province, homes, m)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.dist != b.dist {
			return a.dist > b.dist
		}
		if a.unit.Type != b.unit.Type {
			return a.unit.Type == Fleet
		}
		return a.unit.Province < b.unit.Province
	})

	if count > len(candidates) {
		count = len(candidates)
	}

	var results []BuildResult
	for _, c := range candidates[:count] {
		results = append(results, BuildResult{
			Order: BuildOrder{
				Power:    power,
				Type:     DisbandUnit,
				UnitType: c.unit.Type,
				Location: c.unit.Province,
			},
			Results: ResultSet{ResultOK},
		})
	}
	return results
}

// distanceToNearestHome computes the minimum BFS distance from a province to
// any home SC, ignoring unit-type restrictions.
func distanceToNearestHome(from string, homes []string, m *Map) int {
	const unreachable = 999
	if len(homes) == 0 {
		return unreachable
	}

	homeSet := make(map[string]bool, len(homes))
	for _, h := range homes {
		homeSet[h] = true
	}
	if homeSet[from] {
		return 0
	}

	visited := map[string]bool{from: true}
	queue := []string{from}
	dist := 0

	for len(queue) > 0 {
		dist++
		var next []string
		for _, prov := range queue {
			for _, adj := range m.Adjacencies[prov] {
				if visited[adj.To] {
					continue
				}
				if homeSet[adj.To] {
					return dist
				}
				visited[adj.To] = true
				next = append(next, adj.To)
			}
		}
		queue = next
	}

	return unreachable
}

// ApplyBuildOrders updates the game state based on resolved build orders.
func ApplyBuildOrders(gs *GameState, results []BuildResult) {
	for _, r := range results {
		if !r.Results.Succeeded() {
			continue
		}
		switch r.Order.Type {
		case BuildUnit:
			gs.Units = append(gs.Units, Unit{
				Type:     r.Order.UnitType,
				Power:    r.Order.Power,
				Province: r.Order.Location,
				Coast:    r.Order.Coast,
			})
		case DisbandUnit:
			for i := range gs.Units {
				if gs.Units[i].Province == r.Order.Location && gs.Units[i].Power == r.Order.Power {
					gs.Units = append(gs.Units[:i], gs.Units[i+1:]...)
					break
				}
			}
		}
	}
}
