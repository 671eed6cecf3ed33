package diplomacy

import "testing"

func TestShortPhase(t *testing.T) {
	cases := []struct {
		year   int
		season Season
		phase  PhaseType
		want   string
	}{
		{1901, Spring, PhaseMovement, "S1901M"},
		{1901, Spring, PhaseRetreat, "S1901R"},
		{1901, Fall, PhaseMovement, "F1901M"},
		{1901, Fall, PhaseRetreat, "F1901R"},
		{1901, Fall, PhaseAdjustment, "W1901A"},
		{1912, Spring, PhaseMovement, "S1912M"},
	}
	for _, c := range cases {
		gs := &GameState{Year: c.year, Season: c.season, Phase: c.phase}
		if got := ShortPhase(gs); got != c.want {
			t.Errorf("ShortPhase(%d %s %s) = %q, want %q", c.year, c.season, c.phase, got, c.want)
		}
	}
}

func TestParsePhaseRoundTrip(t *testing.T) {
	for _, s := range []string{"S1901M", "S1901R", "F1901M", "F1901R", "W1901A", "F1955R"} {
		year, season, phase, err := ParsePhase(s)
		if err != nil {
			t.Fatalf("ParsePhase(%q): %v", s, err)
		}
		gs := &GameState{Year: year, Season: season, Phase: phase}
		if got := ShortPhase(gs); got != s {
			t.Errorf("round trip of %q gave %q", s, got)
		}
	}
}

func TestParsePhaseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "FORMING", "COMPLETED", "X1901M", "S19O1M", "S1901X", "S1901A", "F1901A"} {
		if _, _, _, err := ParsePhase(s); err == nil {
			t.Errorf("ParsePhase(%q) should fail", s)
		}
	}
}

// ComparePhases must order by game time, not lexicographically: within a
// year F(all) sorts after S(pring) even though 'F' < 'S' as bytes.
func TestComparePhasesOrdering(t *testing.T) {
	ordered := []string{
		PhaseForming,
		"S1901M", "S1901R", "F1901M", "F1901R", "W1901A",
		"S1902M", "F1902M", "W1902A",
		"S1911M",
		PhaseCompleted,
	}
	for i := range ordered {
		for j := range ordered {
			got := ComparePhases(ordered[i], ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("ComparePhases(%q, %q) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestComparePhasesNotLexicographic(t *testing.T) {
	if "F1901M" > "S1901M" {
		t.Fatal("test premise wrong")
	}
	if ComparePhases("F1901M", "S1901M") != 1 {
		t.Error("fall must sort after spring of the same year")
	}
}
