// Package utils implements generic helper functions shared across the
// compiler packages.
package utils

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// GetSortedKeys returns the keys of the input map in sorted order.
func GetSortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// GetDistincts returns the distinct elements of s, in first-seen order.
func GetDistincts[V comparable](s []V) []V {
	seen := map[V]struct{}{}
	var out []V
	for _, v := range s {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// RotateSlice returns a new slice equal to s rotated to the left by k
// positions (negative k rotates to the right).
func RotateSlice[V any](s []V, k int) []V {
	out := make([]V, len(s))
	if len(s) == 0 {
		return out
	}
	k = ((k % len(s)) + len(s)) % len(s)
	copy(out, s[k:])
	copy(out[len(s)-k:], s[:k])
	return out
}

// RotateSliceInPlace rotates s to the left by k positions, in place.
func RotateSliceInPlace[V any](s []V, k int) {
	copy(s, RotateSlice(s, k))
}

// Reverse returns a new slice with the elements of s in reverse order.
func Reverse[V any](s []V) []V {
	out := make([]V, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// MaxSlice returns the largest element of a non-empty slice.
func MaxSlice[V constraints.Ordered](s []V) V {
	max := s[0]
	for _, v := range s[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// MinSlice returns the smallest element of a non-empty slice.
func MinSlice[V constraints.Ordered](s []V) V {
	min := s[0]
	for _, v := range s[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// SumSlice returns the sum of the elements of s.
func SumSlice[V constraints.Integer](s []V) V {
	var sum V
	for _, v := range s {
		sum += v
	}
	return sum
}

// Contains reports whether v occurs in s.
func Contains[V comparable](s []V, v V) bool {
	return slices.Contains(s, v)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo[V constraints.Integer](n V) bool {
	return n > 0 && n&(n-1) == 0
}

// CeilLog2 returns the smallest k such that 1<<k >= n, for n >= 1.
func CeilLog2(n int) int {
	k := 0
	for 1<<k < n {
		k++
	}
	return k
}
