package composite

import (
	"testing"
	"time"

	"pricefuse/models"
)

func compositeAt(price *float64, degraded bool) models.CompositePrice {
	return models.CompositePrice{Asset: "BTC", Price: price, Degraded: degraded}
}

func TestBasisPerpMinusSpot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	features := Basis("BTC", compositeAt(fp(100.0), false), compositeAt(fp(100.5), false), now)

	if features.Basis == nil || !almostEqual(*features.Basis, 0.5) {
		t.Fatalf("basis = %v, want 0.5", features.Basis)
	}
	if features.BasisBps == nil || !almostEqual(*features.BasisBps, 50) {
		t.Fatalf("basis bps = %v, want 50", features.BasisBps)
	}
	if features.Degraded {
		t.Error("neither leg degraded but basis flagged degraded")
	}
	if features.Direction != models.BasisContango {
		t.Errorf("direction = %s, want contango", features.Direction)
	}
	if features.Magnitude != models.BasisLarge {
		t.Errorf("magnitude = %s, want large", features.Magnitude)
	}
}

func TestBasisNilWhenLegMissing(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		spot models.CompositePrice
		perp models.CompositePrice
	}{
		{"no spot", compositeAt(nil, true), compositeAt(fp(100.5), false)},
		{"no perp", compositeAt(fp(100.0), false), compositeAt(nil, true)},
		{"neither", compositeAt(nil, true), compositeAt(nil, true)},
	}

	for _, c := range cases {
		features := Basis("BTC", c.spot, c.perp, now)
		if features.Basis != nil || features.BasisBps != nil {
			t.Errorf("%s: basis = %v bps = %v, want nil", c.name, features.Basis, features.BasisBps)
		}
		if !features.Degraded {
			t.Errorf("%s: expected degraded basis", c.name)
		}
	}
}

func TestBasisDegradedInheritsEitherLeg(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	features := Basis("BTC", compositeAt(fp(100.0), true), compositeAt(fp(100.1), false), now)
	if !features.Degraded {
		t.Error("degraded spot leg not reflected in basis")
	}

	features = Basis("BTC", compositeAt(fp(100.0), false), compositeAt(fp(100.1), true), now)
	if !features.Degraded {
		t.Error("degraded perp leg not reflected in basis")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		bps       float64
		direction models.BasisDirection
		magnitude models.BasisMagnitude
	}{
		{0, models.BasisNeutral, models.BasisSmall},
		{4.9, models.BasisNeutral, models.BasisSmall},
		{5.1, models.BasisContango, models.BasisSmall},
		{-5.1, models.BasisBackwardation, models.BasisSmall},
		{12, models.BasisContango, models.BasisModerate},
		{-30, models.BasisBackwardation, models.BasisModerate},
		{75, models.BasisContango, models.BasisLarge},
		{-120, models.BasisBackwardation, models.BasisLarge},
	}

	for _, c := range cases {
		direction, magnitude := Classify(c.bps)
		if direction != c.direction {
			t.Errorf("Classify(%v) direction = %s, want %s", c.bps, direction, c.direction)
		}
		if magnitude != c.magnitude {
			t.Errorf("Classify(%v) magnitude = %s, want %s", c.bps, magnitude, c.magnitude)
		}
	}
}

func TestBasisSeriesJoinsOnBarTime(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	spotBars := []models.CompositeBar{
		{StartTime: base, Close: 100.0},
		{StartTime: base.Add(time.Minute), Close: 100.2},
		{StartTime: base.Add(2 * time.Minute), Close: 100.4},
	}
	perpBars := []models.CompositeBar{
		{StartTime: base, Close: 100.3},
		{StartTime: base.Add(2 * time.Minute), Close: 100.2},
	}

	series := BasisSeries(spotBars, perpBars)

	if len(series) != 2 {
		t.Fatalf("series has %d points, want 2 (no interpolation)", len(series))
	}
	if !series[0].Time.Equal(base) || !almostEqual(series[0].Basis, 0.3) {
		t.Errorf("first point = %+v, want basis 0.3 at %v", series[0], base)
	}
	if !series[1].Time.Equal(base.Add(2*time.Minute)) || !almostEqual(series[1].Basis, -0.2) {
		t.Errorf("second point = %+v, want basis -0.2", series[1])
	}
	if !almostEqual(series[1].BasisBps, 10000*-0.2/100.4) {
		t.Errorf("second point bps = %v", series[1].BasisBps)
	}
}
