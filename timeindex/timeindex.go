// Package timeindex locates a target time within an ordered list of sample
// timestamps.
//
// Every lookup requires a non-empty list in non-decreasing order. Ties are
// legal. Results for unordered input are undefined; the data source is
// responsible for ordering its samples.
package timeindex

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Timestamp is any numeric timestamp representation, such as Unix
// nanoseconds.
type Timestamp interface {
	constraints.Integer | constraints.Float
}

// Find returns the index of the timestamp in list closest to target. If
// fractional is true and target falls strictly between two entries, the
// result is instead the interpolation position lo + (target-list[lo]) /
// (list[hi]-list[lo]).
//
// Targets at or before the first entry return 0 and targets at or after the
// last entry return the last index; there is no extrapolation. When target
// is exactly equidistant from its two neighbours the later index wins.
// An empty list returns -1.
func Find(list []time.Time, target time.Time, fractional bool) float64 {
	return find(len(list), func(i int) int {
		return list[i].Compare(target)
	}, func(i int) time.Duration {
		d := target.Sub(list[i])
		if d < 0 {
			return -d
		}
		return d
	}, fractional)
}

// Nearest is Find without interpolation.
func Nearest(list []time.Time, target time.Time) int {
	return int(Find(list, target, false))
}

// Fractional is Find with interpolation.
func Fractional(list []time.Time, target time.Time) float64 {
	return Find(list, target, true)
}

// FindOrdered is Find over numeric timestamps. Distances are taken in T, so
// int64 Unix nanoseconds keep full precision.
func FindOrdered[T Timestamp](list []T, target T, fractional bool) float64 {
	return find(len(list), func(i int) int {
		switch {
		case list[i] < target:
			return -1
		case list[i] > target:
			return 1
		}
		return 0
	}, func(i int) T {
		if target >= list[i] {
			return target - list[i]
		}
		return list[i] - target
	}, fractional)
}

// find bisects a list of n entries. cmp(i) compares the i'th entry with the
// target and dist(i) is their absolute distance.
func find[D Timestamp](n int, cmp func(i int) int, dist func(i int) D, fractional bool) float64 {
	if n < 1 {
		return -1
	}
	last := n - 1
	if cmp(0) >= 0 {
		return 0
	}
	if cmp(last) <= 0 {
		return float64(last)
	}
	// Invariant: list[lo] <= target < list[hi].
	lo, hi := 0, last
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if cmp(mid) > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	before := dist(lo)
	after := dist(hi)
	if fractional {
		span := before + after
		if span <= 0 {
			return float64(lo)
		}
		return float64(lo) + float64(before)/float64(span)
	}
	if before < after {
		return float64(lo)
	}
	return float64(hi)
}
