package diplomacy

import (
	"fmt"
	"strconv"
)

// Phase name constants for the two non-board phases.
const (
	PhaseForming   = "FORMING"
	PhaseCompleted = "COMPLETED"
)

// ShortPhase renders a board state's phase as the canonical short string,
// e.g. "S1901M", "F1903R", "W1905A". Adjustment phases always use the
// winter season letter.
func ShortPhase(gs *GameState) string {
	var season byte
	switch {
	case gs.Phase == PhaseAdjustment:
		season = 'W'
	case gs.Season == Spring:
		season = 'S'
	default:
		season = 'F'
	}

	var kind byte
	switch gs.Phase {
	case PhaseMovement:
		kind = 'M'
	case PhaseRetreat:
		kind = 'R'
	default:
		kind = 'A'
	}

	return fmt.Sprintf("%c%04d%c", season, gs.Year, kind)
}

// ParsePhase parses a short phase string back into year, season, and phase
// type. FORMING and COMPLETED are not board phases and fail to parse.
func ParsePhase(s string) (year int, season Season, phase PhaseType, err error) {
	if len(s) != 6 {
		return 0, "", "", fmt.Errorf("phase: invalid phase string %q", s)
	}

	switch s[0] {
	case 'S':
		season = Spring
	case 'F', 'W':
		season = Fall
	default:
		return 0, "", "", fmt.Errorf("phase: invalid season in %q", s)
	}

	year, err = strconv.Atoi(s[1:5])
	if err != nil {
		return 0, "", "", fmt.Errorf("phase: invalid year in %q", s)
	}

	switch s[5] {
	case 'M':
		phase = PhaseMovement
	case 'R':
		phase = PhaseRetreat
	case 'A':
		phase = PhaseAdjustment
	default:
		return 0, "", "", fmt.Errorf("phase: invalid phase type in %q", s)
	}

	if phase == PhaseAdjustment && s[0] != 'W' {
		return 0, "", "", fmt.Errorf("phase: adjustment must use winter in %q", s)
	}

	return year, season, phase, nil
}

// seasonRank orders S < F < W; phaseRank orders M < R < A.
func seasonRank(b byte) int {
	switch b {
	case 'S':
		return 0
	case 'F':
		return 1
	default:
		return 2
	}
}

func phaseRank(b byte) int {
	switch b {
	case 'M':
		return 0
	case 'R':
		return 1
	default:
		return 2
	}
}

// ComparePhases orders two phase strings by game time: year ascending, then
// season S < F < W, then type M < R < A. FORMING precedes every board phase
// and COMPLETED follows every board phase. Lexicographic comparison of the
// raw strings does NOT give this order. Returns -1, 0, or 1.
func ComparePhases(a, b string) int {
	if a == b {
		return 0
	}
	switch {
	case a == PhaseForming:
		return -1
	case b == PhaseForming:
		return 1
	case a == PhaseCompleted:
		return 1
	case b == PhaseCompleted:
		return -1
	}

	if len(a) != 6 || len(b) != 6 {
		// Malformed strings sort lexicographically as a last resort.
		if a < b {
			return -1
		}
		return 1
	}

	if a[1:5] != b[1:5] {
		if a[1:5] < b[1:5] {
			return -1
		}
		return 1
	}
	if sa, sb := seasonRank(a[0]), seasonRank(b[0]); sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	if pa, pb := phaseRank(a[5]), phaseRank(b[5]); pa != pb {
		if pa < pb {
			return -1
		}
		return 1
	}
	return 0
}
