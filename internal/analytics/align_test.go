package analytics

import (
	"math"
	"testing"
	"time"

	"pairs-systemv1/internal/model"
)

var t0 = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func pts(vals ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(vals))
	for i, v := range vals {
		out[i] = model.PricePoint{TS: t0.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return out
}

func TestAlign_InnerJoin(t *testing.T) {
	x := pts(1, 2, 3, 4)
	y := []model.PricePoint{
		{TS: t0.Add(1 * time.Minute), Value: 20},
		{TS: t0.Add(3 * time.Minute), Value: 40},
		{TS: t0.Add(9 * time.Minute), Value: 90},
	}

	a := Align(x, y)
	if a.Len() != 2 {
		t.Fatalf("expected 2 aligned rows, got %d", a.Len())
	}
	if a.X[0] != 2 || a.Y[0] != 20 || a.X[1] != 4 || a.Y[1] != 40 {
		t.Errorf("unexpected rows: X=%v Y=%v", a.X, a.Y)
	}
	if !a.TS[1].Equal(t0.Add(3 * time.Minute)) {
		t.Errorf("unexpected ts: %v", a.TS[1])
	}
}

func TestAlign_DropsNonFinite(t *testing.T) {
	a := Align(pts(1, math.NaN(), 3), pts(10, 20, math.Inf(1)))
	if a.Len() != 1 || a.X[0] != 1 {
		t.Errorf("expected only the first row, got X=%v Y=%v", a.X, a.Y)
	}
}

func TestAlign_Empty(t *testing.T) {
	a := Align(nil, pts(1, 2))
	if a.Len() != 0 {
		t.Errorf("expected empty alignment, got %d rows", a.Len())
	}
}

func TestAlign_DuplicatesPairedInOrder(t *testing.T) {
	x := []model.PricePoint{{TS: t0, Value: 1}, {TS: t0, Value: 2}}
	y := []model.PricePoint{{TS: t0, Value: 10}, {TS: t0, Value: 20}}

	a := Align(x, y)
	if a.Len() != 2 || a.Y[0] != 10 || a.Y[1] != 20 {
		t.Errorf("expected duplicates kept and paired, got X=%v Y=%v", a.X, a.Y)
	}
}
