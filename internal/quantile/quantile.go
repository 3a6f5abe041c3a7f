// Package quantile computes order statistics over samples.
package quantile

import (
	"math"
	"sort"
)

// Quantile is a collection of data points.
type Quantile struct {
	Xs []float64

	// Sorted indicates that Xs is sorted in ascending order.
	Sorted bool
}

func (q *Quantile) Add(v ...float64) {
	q.Xs = append(q.Xs, v...)
	q.Sorted = false
}

// Sort sorts the samples in place and returns q.
func (q *Quantile) Sort() *Quantile {
	if !q.Sorted && !sort.Float64sAreSorted(q.Xs) {
		sort.Float64s(q.Xs)
	}
	q.Sorted = true
	return q
}

// Bounds returns the minimum and maximum values.
func (q Quantile) Bounds() (min float64, max float64) {
	if len(q.Xs) == 0 {
		return 0, 0
	}
	if q.Sorted {
		return q.Xs[0], q.Xs[len(q.Xs)-1]
	}
	min, max = q.Xs[0], q.Xs[0]
	for _, x := range q.Xs {
		min = math.Min(min, x)
		max = math.Max(max, x)
	}
	return min, max
}

// Percentile returns the pctile-th value, interpolated with the R8 method
// of Hyndman and Fan. pctile is capped to [0, 1] and an empty Quantile
// returns 0. Percentile(0.5) is the median.
func (q Quantile) Percentile(pctile float64) float64 {
	switch {
	case len(q.Xs) == 0:
		return 0
	case pctile <= 0:
		min, _ := q.Bounds()
		return min
	case pctile >= 1:
		_, max := q.Bounds()
		return max
	}
	if !q.Sorted {
		xs := make([]float64, len(q.Xs))
		copy(xs, q.Xs)
		q = *(&Quantile{Xs: xs}).Sort()
	}

	n := float64(len(q.Xs))
	kf, frac := math.Modf(1/3.0 + pctile*(n+1/3.0))
	k := int(kf)
	if k <= 0 {
		return q.Xs[0]
	}
	if k >= len(q.Xs) {
		return q.Xs[len(q.Xs)-1]
	}
	return q.Xs[k-1] + frac*(q.Xs[k]-q.Xs[k-1])
}
