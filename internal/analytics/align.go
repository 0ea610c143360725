package analytics

import (
	"time"

	"pairs-systemv1/internal/model"
)

// Aligned holds two price series inner-joined on timestamp.
// TS, X and Y always have equal length.
type Aligned struct {
	TS []time.Time
	X  []float64
	Y  []float64
}

// Len returns the number of aligned rows.
func (a Aligned) Len() int { return len(a.TS) }

// Align inner-joins x and y on timestamp, dropping rows present on only one
// side or holding a non-finite price. Output follows x's order. Duplicate
// timestamps are paired in order of occurrence; they are not collapsed.
func Align(x, y []model.PricePoint) Aligned {
	byTS := make(map[int64][]float64, len(y))
	for _, p := range y {
		k := p.TS.UnixNano()
		byTS[k] = append(byTS[k], p.Value)
	}

	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	out := Aligned{
		TS: make([]time.Time, 0, n),
		X:  make([]float64, 0, n),
		Y:  make([]float64, 0, n),
	}
	for _, p := range x {
		k := p.TS.UnixNano()
		ys := byTS[k]
		if len(ys) == 0 {
			continue
		}
		yv := ys[0]
		byTS[k] = ys[1:]
		if !finite(p.Value) || !finite(yv) {
			continue
		}
		out.TS = append(out.TS, p.TS)
		out.X = append(out.X, p.Value)
		out.Y = append(out.Y, yv)
	}
	return out
}
