// Package chain builds option chain views for the backtest engine: expiry
// resolution, a per-expiry price cache, missing-price repair and the rolling
// at-the-money reference.
package chain

// Interpolate fills ys[i] where known[i] is false. A forward pass records the
// previous known index of every point and a backward pass the next known
// index. Interior gaps are interpolated linearly in xs; leading and trailing
// gaps copy the nearest known value. It reports false when nothing is known.
func Interpolate(xs, ys []float64, known []bool) bool {
	n := len(ys)
	prev := make([]int, n)
	next := make([]int, n)

	last := -1
	for i := 0; i < n; i++ {
		if known[i] {
			last = i
		}
		prev[i] = last
	}
	if last == -1 {
		return false
	}

	last = -1
	for i := n - 1; i >= 0; i-- {
		if known[i] {
			last = i
		}
		next[i] = last
	}

	for i := 0; i < n; i++ {
		if known[i] {
			continue
		}
		p, q := prev[i], next[i]
		switch {
		case p == -1:
			ys[i] = ys[q]
		case q == -1:
			ys[i] = ys[p]
		case xs[q] == xs[p]:
			ys[i] = ys[p]
		default:
			w := (xs[i] - xs[p]) / (xs[q] - xs[p])
			ys[i] = ys[p] + w*(ys[q]-ys[p])
		}
	}
	return true
}
