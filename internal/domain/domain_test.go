package domain

import "testing"

func TestClassifyBands(t *testing.T) {
	cases := []struct {
		pct  float64
		want Classification
	}{
		{120, ClassExcellent},
		{100, ClassExcellent},
		{99.99, ClassGood},
		{80, ClassGood},
		{60, ClassRegular},
		{59.99, ClassLow},
		{0, ClassLow},
	}
	for _, c := range cases {
		if got := Classify(c.pct); got != c.want {
			t.Fatalf("Classify(%g) = %s, want %s", c.pct, got, c.want)
		}
	}
}

func TestWorkUnitShortfall(t *testing.T) {
	u := WorkUnit{MinTarget: 100, Executed: 40}
	if u.Shortfall() != 60 || u.PercentOfTarget() != 40 {
		t.Fatalf("got shortfall %g pct %g", u.Shortfall(), u.PercentOfTarget())
	}
	if (WorkUnit{}).PercentOfTarget() != 0 {
		t.Fatal("zero target must yield 0%")
	}
	if UnitMet.Tracked() || UnitCancelled.Tracked() || !UnitInProgress.Tracked() {
		t.Fatal("tracked states mismatch")
	}
}
