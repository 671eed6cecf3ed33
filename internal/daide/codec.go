package daide

import (
	"fmt"

	"github.com/freeeve/backstab/pkg/diplomacy"
)

// locationTokens encodes a province with an optional coast: "pro" or
// "(pro coast)".
func locationTokens(province string, coast diplomacy.Coast) ([]Token, error) {
	pt, ok := ProvinceToken(province)
	if !ok {
		return nil, fmt.Errorf("daide: unknown province %q", province)
	}
	if coast == diplomacy.NoCoast {
		return []Token{pt}, nil
	}
	ct, ok := coastTokens[coast]
	if !ok {
		return nil, fmt.Errorf("daide: unknown coast %q", coast)
	}
	return group(pt, ct), nil
}

// unitTokens encodes "(power unitType location)".
func unitTokens(power diplomacy.Power, ut diplomacy.UnitType, province string, coast diplomacy.Coast) ([]Token, error) {
	p, ok := PowerToken(power)
	if !ok {
		return nil, fmt.Errorf("daide: unknown power %q", power)
	}
	u := AMY
	if ut == diplomacy.Fleet {
		u = FLT
	}
	loc, err := locationTokens(province, coast)
	if err != nil {
		return nil, err
	}
	toks := []Token{p, u}
	toks = append(toks, loc...)
	return group(toks...), nil
}

// EncodeOrder encodes a phase-agnostic order as a DAIDE order clause.
func EncodeOrder(power diplomacy.Power, d diplomacy.DSONOrder) ([]Token, error) {
	if d.Type == diplomacy.DSONWaive {
		p, ok := PowerToken(power)
		if !ok {
			return nil, fmt.Errorf("daide: unknown power %q", power)
		}
		return group(p, WVE), nil
	}

	unit, err := unitTokens(power, d.UnitType, d.Location, d.Coast)
	if err != nil {
		return nil, err
	}

	var tail []Token
	switch d.Type {
	case diplomacy.DSONHold:
		tail = []Token{HLD}

	case diplomacy.DSONMove:
		dest, err := locationTokens(d.Target, d.TargetCoast)
		if err != nil {
			return nil, err
		}
		verb := MTO
		if d.ViaConvoy {
			verb = CTO
		}
		tail = append([]Token{verb}, dest...)

	case diplomacy.DSONSupportHold, diplomacy.DSONSupportMove:
		aux, err := unitTokens(power, d.AuxUnitType, d.AuxLocation, d.AuxCoast)
		if err != nil {
			return nil, err
		}
		tail = append([]Token{SUP}, aux...)
		if d.Type == diplomacy.DSONSupportMove {
			dest, err := locationTokens(d.AuxTarget, diplomacy.NoCoast)
			if err != nil {
				return nil, err
			}
			tail = append(tail, MTO)
			tail = append(tail, dest...)
		}

	case diplomacy.DSONConvoy:
		aux, err := unitTokens(power, diplomacy.Army, d.AuxLocation, d.AuxCoast)
		if err != nil {
			return nil, err
		}
		dest, err := locationTokens(d.AuxTarget, diplomacy.NoCoast)
		if err != nil {
			return nil, err
		}
		tail = append([]Token{CVY}, aux...)
		tail = append(tail, CTO)
		tail = append(tail, dest...)

	case diplomacy.DSONRetreat:
		dest, err := locationTokens(d.Target, d.TargetCoast)
		if err != nil {
			return nil, err
		}
		tail = append([]Token{RTO}, dest...)

	case diplomacy.DSONDisband:
		tail = []Token{DSB}

	case diplomacy.DSONBuild:
		tail = []Token{BLD}

	default:
		return nil, fmt.Errorf("daide: unsupported order type %d", d.Type)
	}

	clause := append([]Token{}, unit...)
	clause = append(clause, tail...)
	return group(clause...), nil
}

// parseLocation decodes a province group or bare province token.
func parseLocation(groups [][]Token, i int) (string, diplomacy.Coast, int, error) {
	if i >= len(groups) {
		return "", diplomacy.NoCoast, i, fmt.Errorf("daide: missing location")
	}
	g := groups[i]
	switch len(g) {
	case 1:
		id, ok := TokenProvince(g[0])
		if !ok {
			return "", diplomacy.NoCoast, i, fmt.Errorf("daide: bad province token %v", g[0])
		}
		return id, diplomacy.NoCoast, i + 1, nil
	case 2:
		id, ok := TokenProvince(g[0])
		if !ok {
			return "", diplomacy.NoCoast, i, fmt.Errorf("daide: bad province token %v", g[0])
		}
		coast, ok := tokenCoasts[g[1]]
		if !ok {
			return "", diplomacy.NoCoast, i, fmt.Errorf("daide: bad coast token %v", g[1])
		}
		return id, coast, i + 1, nil
	default:
		return "", diplomacy.NoCoast, i, fmt.Errorf("daide: bad location group")
	}
}

// parseUnit decodes a "(power unitType location)" group.
func parseUnit(g []Token) (diplomacy.Power, diplomacy.UnitType, string, diplomacy.Coast, error) {
	groups, err := splitGroups(g)
	if err != nil {
		return "", 0, "", diplomacy.NoCoast, err
	}
	if len(groups) < 3 {
		return "", 0, "", diplomacy.NoCoast, fmt.Errorf("daide: short unit clause")
	}
	power, ok := TokenPower(groups[0][0])
	if !ok {
		return "", 0, "", diplomacy.NoCoast, fmt.Errorf("daide: bad power token %v", groups[0][0])
	}
	var ut diplomacy.UnitType
	switch groups[1][0] {
	case AMY:
		ut = diplomacy.Army
	case FLT:
		ut = diplomacy.Fleet
	default:
		return "", 0, "", diplomacy.NoCoast, fmt.Errorf("daide: bad unit type token %v", groups[1][0])
	}
	prov, coast, _, err := parseLocation(groups, 2)
	if err != nil {
		return "", 0, "", diplomacy.NoCoast, err
	}
	return power, ut, prov, coast, nil
}

// unwrap strips bracket pairs that enclose the whole token sequence.
func unwrap(tokens []Token) []Token {
	for len(tokens) >= 2 && tokens[0] == BRA && tokens[len(tokens)-1] == KET {
		depth := 0
		whole := true
		for i, t := range tokens {
			switch t {
			case BRA:
				depth++
			case KET:
				depth--
				if depth == 0 && i != len(tokens)-1 {
					whole = false
				}
			}
		}
		if !whole || depth != 0 {
			break
		}
		tokens = tokens[1 : len(tokens)-1]
	}
	return tokens
}

// DecodeOrder decodes one DAIDE order clause back into a power and order.
// The clause may arrive with or without its enclosing brackets.
func DecodeOrder(clause []Token) (diplomacy.Power, diplomacy.DSONOrder, error) {
	clause = unwrap(clause)
	groups, err := splitGroups(clause)
	if err != nil {
		return "", diplomacy.DSONOrder{}, err
	}
	if len(groups) == 0 {
		return "", diplomacy.DSONOrder{}, fmt.Errorf("daide: empty order clause")
	}

	// Waive: (power WVE) arrives as two bare tokens.
	if len(groups) == 2 && len(groups[1]) == 1 && groups[1][0] == WVE {
		power, ok := TokenPower(groups[0][0])
		if !ok {
			return "", diplomacy.DSONOrder{}, fmt.Errorf("daide: bad power token")
		}
		return power, diplomacy.DSONOrder{Type: diplomacy.DSONWaive}, nil
	}

	power, ut, prov, coast, err := parseUnit(groups[0])
	if err != nil {
		return "", diplomacy.DSONOrder{}, err
	}
	d := diplomacy.DSONOrder{UnitType: ut, Location: prov, Coast: coast}

	if len(groups) < 2 || len(groups[1]) != 1 {
		return "", diplomacy.DSONOrder{}, fmt.Errorf("daide: missing order verb")
	}
	verb := groups[1][0]
	rest := groups[2:]

	switch verb {
	case HLD:
		d.Type = diplomacy.DSONHold

	case MTO, CTO:
		d.Type = diplomacy.DSONMove
		d.ViaConvoy = verb == CTO
		d.Target, d.TargetCoast, _, err = parseLocation(rest, 0)
		if err != nil {
			return "", diplomacy.DSONOrder{}, err
		}

	case SUP:
		if len(rest) < 1 {
			return "", diplomacy.DSONOrder{}, fmt.Errorf("daide: support missing unit")
		}
		_, auxUT, auxProv, auxCoast, err := parseUnit(rest[0])
		if err != nil {
			return "", diplomacy.DSONOrder{}, err
		}
		d.AuxUnitType = auxUT
		d.AuxLocation = auxProv
		d.AuxCoast = auxCoast
		if len(rest) >= 3 && len(rest[1]) == 1 && rest[1][0] == MTO {
			d.Type = diplomacy.DSONSupportMove
			d.AuxTarget, d.AuxTargetCoast, _, err = parseLocation(rest, 2)
			if err != nil {
				return "", diplomacy.DSONOrder{}, err
			}
		} else {
			d.Type = diplomacy.DSONSupportHold
		}

	case CVY:
		if len(rest) < 3 {
			return "", diplomacy.DSONOrder{}, fmt.Errorf("daide: short convoy clause")
		}
		_, _, auxProv, auxCoast, err := parseUnit(rest[0])
		if err != nil {
			return "", diplomacy.DSONOrder{}, err
		}
		d.Type = diplomacy.DSONConvoy
		d.AuxUnitType = diplomacy.Army
		d.AuxLocation = auxProv
		d.AuxCoast = auxCoast
		if len(rest[1]) != 1 || rest[1][0] != CTO {
			return "", diplomacy.DSONOrder{}, fmt.Errorf("daide: convoy missing CTO")
		}
		d.AuxTarget, d.AuxTargetCoast, _, err = parseLocation(rest, 2)
		if err != nil {
			return "", diplomacy.DSONOrder{}, err
		}

	case RTO:
		d.Type = diplomacy.DSONRetreat
		d.Target, d.TargetCoast, _, err = parseLocation(rest, 0)
		if err != nil {
			return "", diplomacy.DSONOrder{}, err
		}

	case DSB:
		d.Type = diplomacy.DSONDisband

	case BLD:
		d.Type = diplomacy.DSONBuild

	case REM:
		d.Type = diplomacy.DSONDisband

	default:
		return "", diplomacy.DSONOrder{}, fmt.Errorf("daide: unknown order verb %v", verb)
	}

	return power, d, nil
}

// PhaseTokens encodes a phase string as "(season year)".
func PhaseTokens(phase string) ([]Token, error) {
	year, season, pt, err := diplomacy.ParsePhase(phase)
	if err != nil {
		return nil, err
	}
	var s Token
	switch {
	case pt == diplomacy.PhaseAdjustment:
		s = WIN
	case season == diplomacy.Spring && pt == diplomacy.PhaseMovement:
		s = SPR
	case season == diplomacy.Spring:
		s = SUM
	case pt == diplomacy.PhaseMovement:
		s = FAL
	default:
		s = AUT
	}
	return group(s, IntToken(year)), nil
}

// ParsePhaseTokens decodes "(season year)" back to a phase string.
func ParsePhaseTokens(g []Token) (string, error) {
	if len(g) != 2 || !g[1].IsInteger() {
		return "", fmt.Errorf("daide: bad phase clause")
	}
	year := g[1].Int()
	gs := diplomacy.GameState{Year: year}
	switch g[0] {
	case SPR:
		gs.Season, gs.Phase = diplomacy.Spring, diplomacy.PhaseMovement
	case SUM:
		gs.Season, gs.Phase = diplomacy.Spring, diplomacy.PhaseRetreat
	case FAL:
		gs.Season, gs.Phase = diplomacy.Fall, diplomacy.PhaseMovement
	case AUT:
		gs.Season, gs.Phase = diplomacy.Fall, diplomacy.PhaseRetreat
	case WIN:
		gs.Season, gs.Phase = diplomacy.Fall, diplomacy.PhaseAdjustment
	default:
		return "", fmt.Errorf("daide: bad season token %v", g[0])
	}
	return diplomacy.ShortPhase(&gs), nil
}

// NowMessage builds NOW (phase) (unit)... from a board state.
func NowMessage(phase string, gs *diplomacy.GameState) (Message, error) {
	tokens := []Token{NOW}
	pt, err := PhaseTokens(phase)
	if err != nil {
		return Message{}, err
	}
	tokens = append(tokens, pt...)
	for _, u := range gs.Units {
		ut, err := unitTokens(u.Power, u.Type, u.Province, u.Coast)
		if err != nil {
			return Message{}, err
		}
		tokens = append(tokens, ut...)
	}
	return Diplomacy(tokens...), nil
}

// ScoMessage builds SCO (power center...)... from supply-center ownership.
func ScoMessage(gs *diplomacy.GameState, m *diplomacy.Map) (Message, error) {
	tokens := []Token{SCO}
	for _, power := range diplomacy.AllPowers() {
		var centers []Token
		for _, sc := range m.SupplyCenters() {
			if gs.SupplyCenters[sc] == power {
				t, ok := ProvinceToken(sc)
				if !ok {
					return Message{}, fmt.Errorf("daide: unknown center %q", sc)
				}
				centers = append(centers, t)
			}
		}
		if len(centers) == 0 {
			continue
		}
		p, _ := PowerToken(power)
		clause := append([]Token{p}, centers...)
		tokens = append(tokens, group(clause...)...)
	}
	return Diplomacy(tokens...), nil
}

// resultToken maps an engine result set to the DAIDE result token.
func resultToken(rs diplomacy.ResultSet) Token {
	switch {
	case rs.Has(diplomacy.ResultDislodged):
		return RET
	case rs.Has(diplomacy.ResultBounce):
		return BNC
	case rs.Has(diplomacy.ResultCut):
		return CUT
	case rs.Has(diplomacy.ResultDisrupted):
		return DSR
	case rs.Has(diplomacy.ResultNoConvoy), rs.Has(diplomacy.ResultVoid):
		return NSO
	default:
		return SUC
	}
}

// OrdMessages builds one ORD message per adjudicated order of a phase.
func OrdMessages(pd *diplomacy.PhaseData) ([]Message, error) {
	phase, err := PhaseTokens(pd.Phase)
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, power := range diplomacy.AllPowers() {
		for _, d := range pd.Orders[power] {
			clause, err := EncodeOrder(power, d)
			if err != nil {
				return nil, err
			}
			rs := pd.Results[d.Location]
			tokens := []Token{ORD}
			tokens = append(tokens, phase...)
			tokens = append(tokens, clause...)
			tokens = append(tokens, group(resultToken(rs))...)
			out = append(out, Diplomacy(tokens...))
		}
	}
	return out, nil
}
