package engine

import (
	"math"
	"testing"
)

func TestEqualWeightTargetsThreeActive(t *testing.T) {
	signals := map[string]int{"A": 1, "B": 1, "C": 1}

	targets := EqualWeightTargets(signals, 1.0)
	for sym, w := range targets {
		if math.Abs(w-1.0/3.0) > 1e-12 {
			t.Errorf("weight[%s] = %v, want 1/3", sym, w)
		}
	}
}

func TestEqualWeightTargetsCapped(t *testing.T) {
	signals := map[string]int{"A": 1, "B": 1, "C": 1}

	targets := EqualWeightTargets(signals, 0.1)
	for sym, w := range targets {
		if w != 0.1 {
			t.Errorf("weight[%s] = %v, want cap 0.1", sym, w)
		}
	}
}

func TestEqualWeightTargetsNoneActive(t *testing.T) {
	signals := map[string]int{"A": 0, "B": 0}

	targets := EqualWeightTargets(signals, 1.0)
	if len(targets) != 2 {
		t.Fatalf("targets has %d entries, want 2", len(targets))
	}
	for sym, w := range targets {
		if w != 0 {
			t.Errorf("weight[%s] = %v, want 0", sym, w)
		}
	}
}

func TestEqualWeightTargetsMixed(t *testing.T) {
	signals := map[string]int{"A": 1, "B": 0, "C": 1, "D": 0}

	targets := EqualWeightTargets(signals, 1.0)
	if targets["A"] != 0.5 || targets["C"] != 0.5 {
		t.Errorf("active weights = %v/%v, want 0.5 each", targets["A"], targets["C"])
	}
	if targets["B"] != 0 || targets["D"] != 0 {
		t.Errorf("inactive weights = %v/%v, want 0", targets["B"], targets["D"])
	}
}
