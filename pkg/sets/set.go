// Package sets provides the small generic set used by the analyses.
// Iteration order of a Set is unspecified; use Sorted when output must be stable.
package sets

import "slices"

// Set is a set of comparable values
type Set[T comparable] map[T]struct{}

// New creates an empty set
func New[T comparable]() Set[T] {
	return make(Set[T])
}

// Of creates a set holding the given items
func Of[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// Add adds x to the set and reports whether it was absent
func (s Set[T]) Add(x T) bool {
	if _, ok := s[x]; ok {
		return false
	}
	s[x] = struct{}{}
	return true
}

// Remove removes x from the set
func (s Set[T]) Remove(x T) {
	delete(s, x)
}

// Contains returns true if x is in the set
func (s Set[T]) Contains(x T) bool {
	_, ok := s[x]
	return ok
}

// Len returns the number of elements
func (s Set[T]) Len() int {
	return len(s)
}

// AddAll adds every element of other and reports whether s grew
func (s Set[T]) AddAll(other Set[T]) bool {
	grew := false
	for x := range other {
		if s.Add(x) {
			grew = true
		}
	}
	return grew
}

// Union returns a new set with the elements of both sets
func (s Set[T]) Union(other Set[T]) Set[T] {
	result := s.Copy()
	result.AddAll(other)
	return result
}

// Minus returns a new set with the elements of s not in other
func (s Set[T]) Minus(other Set[T]) Set[T] {
	result := make(Set[T], len(s))
	for x := range s {
		if !other.Contains(x) {
			result[x] = struct{}{}
		}
	}
	return result
}

// Intersects returns true if the sets share an element
func (s Set[T]) Intersects(other Set[T]) bool {
	small, big := s, other
	if len(small) > len(big) {
		small, big = big, small
	}
	for x := range small {
		if big.Contains(x) {
			return true
		}
	}
	return false
}

// Equal returns true if both sets hold the same elements
func (s Set[T]) Equal(other Set[T]) bool {
	if len(s) != len(other) {
		return false
	}
	for x := range s {
		if !other.Contains(x) {
			return false
		}
	}
	return true
}

// Copy returns a shallow copy
func (s Set[T]) Copy() Set[T] {
	result := make(Set[T], len(s))
	for x := range s {
		result[x] = struct{}{}
	}
	return result
}

// Sorted returns the elements ordered by cmp
func (s Set[T]) Sorted(cmp func(a, b T) int) []T {
	result := make([]T, 0, len(s))
	for x := range s {
		result = append(result, x)
	}
	slices.SortFunc(result, cmp)
	return result
}
