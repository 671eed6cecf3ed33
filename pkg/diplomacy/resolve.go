package diplomacy

import "sort"

// Resolution state constants for the fixed-point resolution algorithm.
type resolutionState int

const (
	rsUnresolved resolutionState = iota
	rsGuessing
	rsResolved
)

// adjNode tracks the resolution of a single order in the dependency graph.
type adjNode struct {
	order      Order
	state      resolutionState
	resolution bool // true = succeeds, false = fails
	noConvoy   bool // move failed because no intact convoy chain exists
	provIdx    int32
	targetIdx  int32
}

// Resolution is the full outcome of adjudicating a movement phase.
type Resolution struct {
	Orders    []ResolvedOrder
	Dislodged []DislodgedUnit
	// Contested lists provinces where two or more moves bounced against each
	// other; dislodged units may not retreat into them.
	Contested []string
}

// ResolveOrders adjudicates a set of validated orders against the game state.
// Orders must contain exactly one order per unit on the board (callers
// default missing orders to Hold). The adjudication is deterministic: no
// randomness, no clock, and iteration follows the input order and the map's
// dense province index.
func ResolveOrders(orders []Order, gs *GameState, m *Map) *Resolution {
	r := newResolver(orders, gs, m)
	return r.resolve()
}

type resolver struct {
	m      *Map
	gs     *GameState
	nodes  []adjNode
	lookup []int32 // province index -> node index (-1 = no order)
	deps   []int32 // dependency chain for cycle detection
}

func newResolver(orders []Order, gs *GameState, m *Map) *resolver {
	r := &resolver{
		m:      m,
		gs:     gs,
		nodes:  make([]adjNode, len(orders)),
		lookup: make([]int32, m.ProvinceCount()),
	}
	for i := range r.lookup {
		r.lookup[i] = -1
	}
	for i, o := range orders {
		pIdx := int32(m.ProvinceIndex(o.Location))
		tIdx := int32(-1)
		if o.Target != "" {
			tIdx = int32(m.ProvinceIndex(o.Target))
		}
		r.nodes[i] = adjNode{order: o, provIdx: pIdx, targetIdx: tIdx}
		if pIdx >= 0 {
			r.lookup[pIdx] = int32(i)
		}
	}
	return r
}

// nodeAt returns the node index for the given province index, or -1.
func (r *resolver) nodeAt(provIdx int32) int32 {
	if provIdx < 0 {
		return -1
	}
	return r.lookup[provIdx]
}

func (r *resolver) resolve() *Resolution {
	for i := range r.nodes {
		r.adjudicate(int32(i))
	}
	return r.buildResolution()
}

// adjudicate resolves a single order to success or failure, guessing through
// dependency cycles with a two-valued guess and falling back to the backup
// rule when neither guess reaches a unique fixed point.
func (r *resolver) adjudicate(i int32) bool {
	n := &r.nodes[i]
	switch n.state {
	case rsResolved:
		return n.resolution
	case rsGuessing:
		// Part of a cycle: register as a dependency of the current chain.
		if !r.inDeps(i) {
			r.deps = append(r.deps, i)
		}
		return n.resolution
	}

	oldLen := len(r.deps)

	n.resolution = false
	n.state = rsGuessing
	first := r.applyRule(i)

	if len(r.deps) == oldLen {
		// No cycle through this order; the answer is final.
		if n.state != rsResolved {
			n.resolution = first
			n.state = rsResolved
		}
		return first
	}

	if r.deps[oldLen] != i {
		// A cycle exists but starts higher up the chain; pass the result up.
		r.deps = append(r.deps, i)
		n.resolution = first
		return first
	}

	// Cycle starts here. Retry with the opposite guess.
	r.clearDeps(oldLen)
	n.resolution = true
	n.state = rsGuessing
	second := r.applyRule(i)

	if first == second {
		// Unique fixed point regardless of the guess.
		r.clearDeps(oldLen)
		n.resolution = first
		n.state = rsResolved
		return first
	}

	// Two consistent outcomes (circular movement) or none (convoy paradox):
	// apply the backup rule to the cycle and re-adjudicate.
	r.backupRule(oldLen)
	return r.adjudicate(i)
}

func (r *resolver) inDeps(i int32) bool {
	for _, d := range r.deps {
		if d == i {
			return true
		}
	}
	return false
}

// clearDeps resets every order in the dependency tail to unresolved and
// truncates the chain.
func (r *resolver) clearDeps(oldLen int) {
	for _, d := range r.deps[oldLen:] {
		if r.nodes[d].state == rsGuessing {
			r.nodes[d].state = rsUnresolved
		}
	}
	r.deps = r.deps[:oldLen]
}

// backupRule breaks an ambiguous dependency cycle. If the cycle runs through
// a convoy, the Szykman rule applies: the convoyed moves are treated as
// having no convoy and fail; everything else re-resolves. Otherwise the
// cycle is pure circular movement and every move in it succeeds.
func (r *resolver) backupRule(oldLen int) {
	cycle := make([]int32, len(r.deps)-oldLen)
	copy(cycle, r.deps[oldLen:])
	r.deps = r.deps[:oldLen]

	// Szykman applies only when the ambiguity runs through a convoying
	// fleet (a convoy paradox); a cycle of plain moves is circular
	// movement. A convoyed swap (two movers, convoy resolved outside the
	// cycle) counts as circular movement and succeeds.
	convoyed := false
	for _, d := range cycle {
		if r.nodes[d].order.Type == OrderConvoy {
			convoyed = true
			break
		}
	}

	brokeCycle := false
	for _, d := range cycle {
		n := &r.nodes[d]
		if convoyed {
			if n.order.Type == OrderMove && r.moveNeedsConvoy(d) {
				n.noConvoy = true
				n.resolution = false
				n.state = rsResolved
				brokeCycle = true
			} else {
				n.state = rsUnresolved
			}
		} else {
			if n.order.Type == OrderMove {
				n.resolution = true
				n.state = rsResolved
				brokeCycle = true
			} else {
				n.state = rsUnresolved
			}
		}
	}

	if !brokeCycle {
		// Degenerate cycle with nothing to pin: fail its convoys so the
		// re-resolution terminates.
		for _, d := range cycle {
			n := &r.nodes[d]
			if n.order.Type == OrderConvoy {
				n.resolution = false
				n.state = rsResolved
			}
		}
	}
}

// applyRule evaluates the success condition for a single order, consulting
// dependent orders through adjudicate.
func (r *resolver) applyRule(i int32) bool {
	switch r.nodes[i].order.Type {
	case OrderHold:
		return true
	case OrderMove:
		return r.moveSucceeds(i)
	case OrderSupport:
		return r.supportIntact(i)
	case OrderConvoy:
		return r.convoySurvives(i)
	default:
		return false
	}
}

// moveSucceeds determines whether a move order succeeds: an intact convoy
// path when needed, attack strength above the defense at the destination,
// and above every competing prevent strength.
func (r *resolver) moveSucceeds(i int32) bool {
	n := &r.nodes[i]

	if r.moveNeedsConvoy(i) && !r.convoyPathIntact(i) {
		n.noConvoy = true
		return false
	}
	n.noConvoy = false

	attack := r.attackStrength(i)

	if opp := r.headToHeadOpponent(i); opp >= 0 {
		if attack <= r.defendStrength(opp) {
			return false
		}
	} else if attack <= r.holdStrength(n.targetIdx) {
		return false
	}

	for k := range r.nodes {
		other := &r.nodes[k]
		if int32(k) == i || other.order.Type != OrderMove || other.targetIdx != n.targetIdx {
			continue
		}
		if attack <= r.preventStrength(int32(k)) {
			return false
		}
	}
	return true
}

// headToHeadOpponent returns the node index of a unit at the move's target
// that is moving directly back into the mover's province, or -1. Convoyed
// moves on either side never engage head-to-head.
func (r *resolver) headToHeadOpponent(i int32) int32 {
	n := &r.nodes[i]
	if r.moveNeedsConvoy(i) {
		return -1
	}
	j := r.nodeAt(n.targetIdx)
	if j < 0 {
		return -1
	}
	o := &r.nodes[j]
	if o.order.Type != OrderMove || o.targetIdx != n.provIdx {
		return -1
	}
	if r.moveNeedsConvoy(j) {
		return -1
	}
	return j
}

// attackStrength computes the strength of a move against its destination.
// A power can never dislodge its own unit, and supports given by the
// defender's owner do not count toward dislodging it.
func (r *resolver) attackStrength(i int32) int {
	n := &r.nodes[i]

	defender := Neutral
	occupied := false
	if occ := r.gs.UnitAt(n.order.Target); occ != nil {
		j := r.nodeAt(n.targetIdx)
		vacated := false
		if j >= 0 {
			o := &r.nodes[j]
			// The occupier vacates when its own move succeeds, unless the
			// two moves are a true head-to-head (both direct, swapping).
			headOn := o.targetIdx == n.provIdx && !r.moveNeedsConvoy(i) && !r.moveNeedsConvoy(j)
			if o.order.Type == OrderMove && !headOn && r.adjudicate(j) {
				vacated = true
			}
		}
		if !vacated {
			defender = occ.Power
			occupied = true
		}
	}

	if occupied && defender == n.order.Power {
		return 0
	}

	strength := 1
	for k := range r.nodes {
		s := &r.nodes[k]
		if s.order.Type != OrderSupport {
			continue
		}
		if s.order.AuxLoc != n.order.Location || s.order.AuxTarget != n.order.Target {
			continue
		}
		if occupied && s.order.Power == defender {
			continue
		}
		if r.adjudicate(int32(k)) {
			strength++
		}
	}
	return strength
}

// defendStrength computes a head-to-head defender's strength: its own move
// strength with every support counted.
func (r *resolver) defendStrength(i int32) int {
	n := &r.nodes[i]
	strength := 1
	for k := range r.nodes {
		s := &r.nodes[k]
		if s.order.Type != OrderSupport {
			continue
		}
		if s.order.AuxLoc != n.order.Location || s.order.AuxTarget != n.order.Target {
			continue
		}
		if r.adjudicate(int32(k)) {
			strength++
		}
	}
	return strength
}

// preventStrength computes how strongly a competing move contests its
// destination. A move that lost a head-to-head battle prevents nothing.
func (r *resolver) preventStrength(i int32) int {
	if opp := r.headToHeadOpponent(i); opp >= 0 && r.adjudicate(opp) {
		return 0
	}
	n := &r.nodes[i]
	if r.moveNeedsConvoy(i) && !r.convoyPathIntact(i) {
		return 0
	}
	strength := 1
	for k := range r.nodes {
		s := &r.nodes[k]
		if s.order.Type != OrderSupport {
			continue
		}
		if s.order.AuxLoc != n.order.Location || s.order.AuxTarget != n.order.Target {
			continue
		}
		if r.adjudicate(int32(k)) {
			strength++
		}
	}
	return strength
}

// holdStrength computes the strength with which a province is held.
// Empty provinces hold with 0; a unit whose move succeeded holds with 0;
// a unit whose move failed holds with 1 and no support.
func (r *resolver) holdStrength(provIdx int32) int {
	j := r.nodeAt(provIdx)
	if j < 0 {
		return 0
	}
	n := &r.nodes[j]
	if n.order.Type == OrderMove {
		if r.adjudicate(j) {
			return 0
		}
		return 1
	}
	strength := 1
	for k := range r.nodes {
		s := &r.nodes[k]
		if s.order.Type != OrderSupport {
			continue
		}
		if s.order.AuxLoc != n.order.Location || s.order.AuxTarget != "" {
			continue
		}
		if r.adjudicate(int32(k)) {
			strength++
		}
	}
	return strength
}

// supportIntact determines whether a support is given (not cut). A support
// is cut by a move into the supporter's province from any other power,
// except from the province the support is directed against — unless that
// attack actually dislodges the supporter. A convoyed attack needs an
// intact convoy chain to cut.
func (r *resolver) supportIntact(i int32) bool {
	n := &r.nodes[i]
	for k := range r.nodes {
		other := &r.nodes[k]
		if other.order.Type != OrderMove || other.targetIdx != n.provIdx {
			continue
		}
		if other.order.Power == n.order.Power {
			continue
		}
		if r.moveNeedsConvoy(int32(k)) && !r.convoyPathIntact(int32(k)) {
			continue
		}
		if n.order.AuxTarget != "" && other.order.Location == n.order.AuxTarget {
			// Attack from the province being attacked only cuts by dislodging.
			if r.adjudicate(int32(k)) {
				return false
			}
			continue
		}
		return false
	}
	return true
}

// convoySurvives determines whether a convoying fleet stays in place: it is
// disrupted when any move into its province succeeds.
func (r *resolver) convoySurvives(i int32) bool {
	n := &r.nodes[i]
	for k := range r.nodes {
		other := &r.nodes[k]
		if other.order.Type == OrderMove && other.targetIdx == n.provIdx {
			if r.adjudicate(int32(k)) {
				return false
			}
		}
	}
	return true
}

// moveNeedsConvoy returns true if the move can only proceed by convoy:
// an army explicitly ordered via convoy, or moving to a non-adjacent target.
func (r *resolver) moveNeedsConvoy(i int32) bool {
	o := &r.nodes[i].order
	if o.Type != OrderMove || o.UnitType != Army {
		return false
	}
	if o.ViaConvoy {
		return true
	}
	return !r.m.Adjacent(o.Location, o.Coast, o.Target, NoCoast, false)
}

// convoyPathIntact checks for a continuous chain of surviving convoying
// fleets from the move's source to its destination.
func (r *resolver) convoyPathIntact(i int32) bool {
	o := &r.nodes[i].order

	visited := make(map[int32]bool)
	var queue []int32

	for k := range r.nodes {
		c := &r.nodes[k]
		if !r.isConvoyFor(c, o) {
			continue
		}
		if r.m.Adjacent(o.Location, NoCoast, c.order.Location, NoCoast, true) && r.adjudicate(int32(k)) {
			visited[int32(k)] = true
			queue = append(queue, int32(k))
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curLoc := r.nodes[cur].order.Location

		if r.m.Adjacent(curLoc, NoCoast, o.Target, NoCoast, true) {
			return true
		}

		for k := range r.nodes {
			c := &r.nodes[k]
			if visited[int32(k)] || !r.isConvoyFor(c, o) {
				continue
			}
			if r.m.Adjacent(curLoc, NoCoast, c.order.Location, NoCoast, true) && r.adjudicate(int32(k)) {
				visited[int32(k)] = true
				queue = append(queue, int32(k))
			}
		}
	}
	return false
}

// isConvoyFor reports whether node c is a convoy order carrying move o,
// issued by a fleet in a sea province.
func (r *resolver) isConvoyFor(c *adjNode, o *Order) bool {
	if c.order.Type != OrderConvoy {
		return false
	}
	if c.order.AuxLoc != o.Location || c.order.AuxTarget != o.Target {
		return false
	}
	p := r.m.Provinces[c.order.Location]
	return p != nil && p.Type == Sea
}

// buildResolution converts internal adjudication state to the external
// result format: per-order result sets, the dislodged list, and contested
// provinces for retreat exclusion.
func (r *resolver) buildResolution() *Resolution {
	res := &Resolution{}

	// Successful moves by destination, for dislodgement detection.
	winners := make(map[string]int32)
	// Bounced (non-convoy-starved) moves by destination, for standoffs.
	bounced := make(map[string]int)
	for i := range r.nodes {
		n := &r.nodes[i]
		if n.order.Type != OrderMove {
			continue
		}
		if n.resolution {
			winners[n.order.Target] = int32(i)
		} else if !n.noConvoy {
			bounced[n.order.Target]++
		}
	}

	for i := range r.nodes {
		n := &r.nodes[i]
		o := n.order
		var results ResultSet

		switch o.Type {
		case OrderMove:
			if n.noConvoy {
				results = append(results, ResultNoConvoy)
			} else if !n.resolution {
				results = append(results, ResultBounce)
			}
		case OrderSupport:
			if !n.resolution {
				results = append(results, ResultCut)
			}
		case OrderConvoy:
			if !n.resolution {
				results = append(results, ResultDisrupted)
			}
		}

		if att, ok := winners[o.Location]; ok && (o.Type != OrderMove || !n.resolution) {
			results = append(results, ResultDislodged)
			attacker := &r.nodes[att]
			res.Dislodged = append(res.Dislodged, DislodgedUnit{
				Unit: Unit{
					Type:     o.UnitType,
					Power:    o.Power,
					Province: o.Location,
					Coast:    o.Coast,
				},
				DislodgedFrom:     o.Location,
				AttackerFrom:      attacker.order.Location,
				AttackerViaConvoy: r.moveNeedsConvoy(att),
			})
		}

		if len(results) == 0 {
			results = ResultSet{ResultOK}
		}
		res.Orders = append(res.Orders, ResolvedOrder{Order: o, Results: results})
	}

	// A standoff province saw at least two moves bounce and no move succeed.
	for _, target := range sortedKeys(bounced) {
		if bounced[target] >= 2 {
			if _, taken := winners[target]; !taken {
				res.Contested = append(res.Contested, target)
			}
		}
	}

	return res
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// applyUnitKey identifies a unit by power and province for resolution application.
type applyUnitKey struct {
	power    Power
	province string
}

// ApplyResolution updates the game state in place: successful movers
// relocate, dislodged units leave the board and are recorded along with the
// contested provinces for the retreat phase.
func ApplyResolution(gs *GameState, m *Map, res *Resolution) {
	dislodgedSet := make(map[applyUnitKey]bool, len(res.Dislodged))
	for _, d := range res.Dislodged {
		dislodgedSet[applyUnitKey{d.Unit.Power, d.DislodgedFrom}] = true
	}

	type moveEntry struct {
		target      string
		targetCoast Coast
		clearCoast  bool
	}
	moves := make(map[applyUnitKey]moveEntry)
	for _, ro := range res.Orders {
		if ro.Order.Type != OrderMove || !ro.Results.Succeeded() {
			continue
		}
		moves[applyUnitKey{ro.Order.Power, ro.Order.Location}] = moveEntry{
			target:      ro.Order.Target,
			targetCoast: ro.Order.TargetCoast,
			clearCoast:  ro.Order.TargetCoast == NoCoast && !m.HasCoasts(ro.Order.Target),
		}
	}

	for i := range gs.Units {
		key := applyUnitKey{gs.Units[i].Power, gs.Units[i].Province}
		if mu, ok := moves[key]; ok {
			gs.Units[i].Province = mu.target
			if mu.targetCoast != NoCoast {
				gs.Units[i].Coast = mu.targetCoast
			} else if mu.clearCoast {
				gs.Units[i].Coast = NoCoast
			}
		}
	}

	remaining := gs.Units[:0]
	for _, u := range gs.Units {
		if !dislodgedSet[applyUnitKey{u.Power, u.Province}] {
			remaining = append(remaining, u)
		}
	}
	gs.Units = remaining
	gs.Dislodged = res.Dislodged
	gs.Contested = res.Contested
}
