package diplomacy

import (
	"fmt"
	"sort"
	"time"
)

// GameStatus mirrors the game lifecycle: forming, active, completed.
type GameStatus string

const (
	StatusForming   GameStatus = "forming"
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

// ObserverLevel controls what non-player sessions may see during a phase.
type ObserverLevel string

const (
	// ObserverAll lets observers see submitted orders as the phase runs.
	ObserverAll ObserverLevel = "all"
	// ObserverHistory restricts observers to processed history only.
	ObserverHistory ObserverLevel = "history"
)

// PowerState tracks the per-power bookkeeping of a game.
type PowerState struct {
	Name          Power  `json:"name"`
	Controller    string `json:"controller,omitempty"` // username, "" = uncontrolled
	CivilDisorder bool   `json:"civil_disorder,omitempty"`
	Eliminated    bool   `json:"eliminated,omitempty"`
	DrawVote      bool   `json:"draw_vote,omitempty"`
}

// PhaseData is one history entry: the board before processing, the orders
// submitted, and the per-unit result sets. Result keys are unit provinces;
// waives always succeed and are not recorded.
type PhaseData struct {
	Phase   string                 `json:"phase"`
	State   *GameState             `json:"state"`
	Orders  map[Power][]DSONOrder  `json:"orders,omitempty"`
	Results map[string]ResultSet   `json:"results,omitempty"`
}

// Game is the full state machine for one game: phase sequencing, order
// buffers, power bookkeeping, history, and end detection. A Game is not
// safe for concurrent use; the server serialises access per game.
type Game struct {
	ID    string `json:"id"`
	Phase string `json:"phase"` // FORMING, COMPLETED, or a short phase string

	State   *GameState            `json:"state,omitempty"`
	Powers  map[Power]*PowerState `json:"powers"`
	Orders  map[Power]map[string]DSONOrder `json:"orders,omitempty"` // per power, keyed by unit province
	Waives  map[Power]int         `json:"waives,omitempty"`
	History []PhaseData           `json:"history,omitempty"`

	Deadline time.Time `json:"deadline,omitempty"`
	// DeadlineSeconds overrides the server's default phase duration when
	// positive.
	DeadlineSeconds int     `json:"deadline_seconds,omitempty"`
	Rules           RuleSet `json:"rules,omitempty"`

	RegistrationPassword string        `json:"registration_password,omitempty"`
	ObserverLevel        ObserverLevel `json:"observer_level,omitempty"`

	Winner Power `json:"winner,omitempty"`
	Draw   bool  `json:"draw,omitempty"`
}

// NewGame creates a game in the FORMING state.
func NewGame(id string, rules RuleSet) *Game {
	g := &Game{
		ID:            id,
		Phase:         PhaseForming,
		Powers:        make(map[Power]*PowerState, 7),
		Orders:        make(map[Power]map[string]DSONOrder),
		Waives:        make(map[Power]int),
		Rules:         rules,
		ObserverLevel: ObserverHistory,
	}
	for _, p := range AllPowers() {
		g.Powers[p] = &PowerState{Name: p}
	}
	return g
}

// Status derives the lifecycle status from the phase string.
func (g *Game) Status() GameStatus {
	switch g.Phase {
	case PhaseForming:
		return StatusForming
	case PhaseCompleted:
		return StatusCompleted
	default:
		return StatusActive
	}
}

// PhaseTypeNow returns the current phase type, or "" outside active play.
func (g *Game) PhaseTypeNow() PhaseType {
	if g.Status() != StatusActive {
		return ""
	}
	return g.State.Phase
}

// ControlledBy returns the powers controlled by a user, in map order.
func (g *Game) ControlledBy(username string) []Power {
	var out []Power
	for _, p := range AllPowers() {
		if g.Powers[p].Controller == username {
			out = append(out, p)
		}
	}
	return out
}

// FreePowers returns the uncontrolled powers, in map order.
func (g *Game) FreePowers() []Power {
	var out []Power
	for _, p := range AllPowers() {
		if g.Powers[p].Controller == "" {
			out = append(out, p)
		}
	}
	return out
}

// AssignPower seats a controller on a power. Returns an error if the power
// is already controlled by someone else.
func (g *Game) AssignPower(power Power, username string) error {
	ps, ok := g.Powers[power]
	if !ok {
		return fmt.Errorf("game %s: unknown power %s", g.ID, power)
	}
	if ps.Controller != "" && ps.Controller != username {
		return fmt.Errorf("game %s: power %s already controlled", g.ID, power)
	}
	ps.Controller = username
	ps.CivilDisorder = false
	return nil
}

// ReleasePower clears a power's controller and puts it in civil disorder.
func (g *Game) ReleasePower(power Power) {
	if ps, ok := g.Powers[power]; ok {
		ps.Controller = ""
		if g.Status() == StatusActive {
			ps.CivilDisorder = true
		}
		ps.DrawVote = false
	}
}

// SetCivilDisorder toggles a power's civil-disorder flag. While set, order
// submissions from the power are ignored and defaults apply at processing.
func (g *Game) SetCivilDisorder(power Power, flag bool) {
	if ps, ok := g.Powers[power]; ok {
		ps.CivilDisorder = flag
	}
}

// Start moves a FORMING game onto the board at Spring 1901 Movement.
// Powers without a controller begin in civil disorder, except under the
// SOLITAIRE rule.
func (g *Game) Start(m *Map) error {
	if g.Phase != PhaseForming {
		return fmt.Errorf("game %s: already started", g.ID)
	}
	g.State = NewInitialState(m)
	g.Phase = ShortPhase(g.State)
	for _, ps := range g.Powers {
		if ps.Controller == "" && !g.Rules.Has(RuleSolitaire) {
			ps.CivilDisorder = true
		}
	}
	return nil
}

// SetOrders buffers orders for a power in the current phase. A later order
// for the same unit replaces the earlier one. Submissions from powers in
// civil disorder are silently ignored. Orders for the wrong phase type are
// rejected; semantic validation applies unless the NO_CHECK rule is set.
func (g *Game) SetOrders(power Power, orders []DSONOrder, m *Map) error {
	if g.Status() != StatusActive {
		return fmt.Errorf("game %s: not active", g.ID)
	}
	ps, ok := g.Powers[power]
	if !ok {
		return fmt.Errorf("game %s: unknown power %s", g.ID, power)
	}
	if ps.CivilDisorder {
		return nil
	}

	phaseType := g.State.Phase
	for _, d := range orders {
		if !orderMatchesPhase(d, phaseType) {
			return fmt.Errorf("game %s: order %q not valid in %s phase", g.ID, FormatDSON([]DSONOrder{d}), phaseType)
		}
		if !g.Rules.Has(RuleNoCheck) {
			if err := g.checkOrder(power, d, m); err != nil {
				return err
			}
		}
	}

	if g.Orders[power] == nil {
		g.Orders[power] = make(map[string]DSONOrder)
	}
	for _, d := range orders {
		if d.Type == DSONWaive {
			g.Waives[power]++
			continue
		}
		g.Orders[power][d.Location] = d
	}
	return nil
}

// ClearOrders drops every buffered order of a power for the current phase.
func (g *Game) ClearOrders(power Power) {
	delete(g.Orders, power)
	delete(g.Waives, power)
}

// OrdersOf returns the buffered orders of a power in deterministic order.
func (g *Game) OrdersOf(power Power) []DSONOrder {
	buf := g.Orders[power]
	locs := make([]string, 0, len(buf))
	for loc := range buf {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	out := make([]DSONOrder, 0, len(locs)+g.Waives[power])
	for _, loc := range locs {
		out = append(out, buf[loc])
	}
	for i := 0; i < g.Waives[power]; i++ {
		out = append(out, DSONOrder{Type: DSONWaive})
	}
	return out
}

// orderMatchesPhase reports whether a DSON order kind belongs to the phase.
func orderMatchesPhase(d DSONOrder, pt PhaseType) bool {
	switch d.Type {
	case DSONHold, DSONMove, DSONSupportHold, DSONSupportMove, DSONConvoy:
		return pt == PhaseMovement
	case DSONRetreat:
		return pt == PhaseRetreat
	case DSONBuild, DSONWaive:
		return pt == PhaseAdjustment
	case DSONDisband:
		return pt == PhaseRetreat || pt == PhaseAdjustment
	default:
		return false
	}
}

// checkOrder runs immediate semantic validation for a submitted order.
func (g *Game) checkOrder(power Power, d DSONOrder, m *Map) error {
	switch g.State.Phase {
	case PhaseMovement:
		return ValidateOrder(DSONToOrder(d, power), g.State, m)
	case PhaseRetreat:
		return ValidateRetreatOrder(DSONToRetreatOrder(d, power), g.State, m)
	case PhaseAdjustment:
		return ValidateBuildOrder(DSONToBuildOrder(d, power), g.State, m, g.Rules)
	}
	return nil
}

// VoteDraw records a power's draw vote. The game completes in a draw when
// every non-eliminated power has voted. Draw voting is disabled under the
// SOLITAIRE rule.
func (g *Game) VoteDraw(power Power, vote bool) error {
	if g.Status() != StatusActive {
		return fmt.Errorf("game %s: not active", g.ID)
	}
	if g.Rules.Has(RuleSolitaire) {
		return fmt.Errorf("game %s: draw votes disabled in solitaire", g.ID)
	}
	ps, ok := g.Powers[power]
	if !ok {
		return fmt.Errorf("game %s: unknown power %s", g.ID, power)
	}
	ps.DrawVote = vote

	if vote && g.drawAccepted() {
		g.completeDraw()
	}
	return nil
}

func (g *Game) drawAccepted() bool {
	any := false
	for _, p := range AllPowers() {
		ps := g.Powers[p]
		if ps.Eliminated {
			continue
		}
		any = true
		if !ps.DrawVote {
			return false
		}
	}
	return any
}

func (g *Game) completeDraw() {
	g.Draw = true
	g.Phase = PhaseCompleted
	g.Deadline = time.Time{}
}

// PhaseIndex returns the number of processed phases (the length of history),
// which clients use as a synchronisation cursor.
func (g *Game) PhaseIndex() int { return len(g.History) }

// HistorySince returns the PhaseData entries after the given index.
func (g *Game) HistorySince(index int) []PhaseData {
	if index < 0 {
		index = 0
	}
	if index >= len(g.History) {
		return nil
	}
	return g.History[index:]
}

// Process adjudicates the current phase, appends a PhaseData entry, clears
// the order buffers, and advances to the next phase (skipping empty retreat
// and adjustment phases). It returns the recorded PhaseData.
func (g *Game) Process(m *Map) (*PhaseData, error) {
	if g.Status() != StatusActive {
		return nil, fmt.Errorf("game %s: not active", g.ID)
	}

	pd := PhaseData{
		Phase:   g.Phase,
		State:   g.State.Clone(),
		Orders:  g.snapshotOrders(),
		Results: make(map[string]ResultSet),
	}

	switch g.State.Phase {
	case PhaseMovement:
		g.processMovement(m, &pd)
	case PhaseRetreat:
		g.processRetreat(m, &pd)
	case PhaseAdjustment:
		g.processAdjustment(m, &pd)
	default:
		return nil, fmt.Errorf("game %s: unknown phase type %q", g.ID, g.State.Phase)
	}

	g.History = append(g.History, pd)
	g.Orders = make(map[Power]map[string]DSONOrder)
	g.Waives = make(map[Power]int)

	g.markEliminated()

	if g.Phase != PhaseCompleted {
		if w := Victor(g.State, m); w != Neutral {
			g.Winner = w
			g.Phase = PhaseCompleted
			g.Deadline = time.Time{}
		} else if IsYearLimitReached(g.State) {
			g.completeDraw()
		} else {
			g.Phase = ShortPhase(g.State)
			if g.State.Phase == PhaseMovement {
				// Draw votes reset at each movement phase.
				for _, ps := range g.Powers {
					ps.DrawVote = false
				}
			}
		}
	}

	return &pd, nil
}

func (g *Game) snapshotOrders() map[Power][]DSONOrder {
	out := make(map[Power][]DSONOrder, len(g.Orders))
	for _, p := range AllPowers() {
		if orders := g.OrdersOf(p); len(orders) > 0 {
			out[p] = orders
		}
	}
	return out
}

func (g *Game) processMovement(m *Map, pd *PhaseData) {
	var submitted []Order
	for _, p := range AllPowers() {
		ps := g.Powers[p]
		if ps.CivilDisorder {
			continue // unordered units default to hold below
		}
		for _, d := range g.OrdersOf(p) {
			submitted = append(submitted, DSONToOrder(d, p))
		}
	}

	orders, voided := ValidateAndDefaultOrders(submitted, g.State, m)
	for _, v := range voided {
		pd.Results[v.Order.Location] = v.Results
	}

	res := ResolveOrders(orders, g.State, m)
	for _, ro := range res.Orders {
		if prior, dup := pd.Results[ro.Order.Location]; dup {
			// A voided order keeps its VOID result, but a dislodgement of
			// the defaulted hold still shows.
			if ro.Results.Has(ResultDislodged) && !prior.Has(ResultDislodged) {
				pd.Results[ro.Order.Location] = append(prior, ResultDislodged)
			}
		} else {
			pd.Results[ro.Order.Location] = ro.Results
		}
	}

	ApplyResolution(g.State, m, res)
	g.advance(m, len(res.Dislodged) > 0)
}

func (g *Game) processRetreat(m *Map, pd *PhaseData) {
	var orders []RetreatOrder
	for _, p := range AllPowers() {
		if g.Powers[p].CivilDisorder {
			continue // unordered dislodged units disband below
		}
		for _, d := range g.OrdersOf(p) {
			orders = append(orders, DSONToRetreatOrder(d, p))
		}
	}

	results := ResolveRetreats(orders, g.State, m)
	for _, r := range results {
		pd.Results[r.Order.Location] = r.Results
	}

	ApplyRetreats(g.State, results, m)
	g.advance(m, false)
}

func (g *Game) processAdjustment(m *Map, pd *PhaseData) {
	var orders []BuildOrder
	for _, p := range AllPowers() {
		if g.Powers[p].CivilDisorder {
			continue // auto-disband handles the shortfall
		}
		for _, d := range g.OrdersOf(p) {
			orders = append(orders, DSONToBuildOrder(d, p))
		}
	}

	results := ResolveBuildOrders(orders, g.State, m, g.Rules)
	for _, r := range results {
		if r.Order.Location != "" {
			pd.Results[r.Order.Location] = r.Results
		}
	}

	ApplyBuildOrders(g.State, results)
	g.advance(m, false)
}

// advance steps the board state forward, skipping an adjustment phase with
// no deltas.
func (g *Game) advance(m *Map, hasDislodgements bool) {
	AdvanceState(g.State, m, hasDislodgements)
	if g.State.Phase == PhaseAdjustment && !NeedsAdjustmentPhase(g.State) {
		AdvanceState(g.State, m, false)
	}
}

// markEliminated flags powers with no units and no centers. Eliminated
// powers stop counting toward draw votes.
func (g *Game) markEliminated() {
	for _, p := range AllPowers() {
		ps := g.Powers[p]
		if !ps.Eliminated && !g.State.PowerIsAlive(p) {
			ps.Eliminated = true
			ps.DrawVote = false
		}
	}
}
