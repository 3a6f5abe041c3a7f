// Package filter changes which samples, and how much of them, are attributed
// to call trees: time range filtering and samples convolution.
package filter

// Dependent is computed from the sample stream and the sample mapping of the
// call-frame tree.
type Dependent interface {
	Recompute()
	Notify()
}

// refresh recomputes every dependent before notifying any of them.
func refresh(deps []Dependent) {
	for _, d := range deps {
		d.Recompute()
	}
	for _, d := range deps {
		d.Notify()
	}
}
