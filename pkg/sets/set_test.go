package sets

import (
	"cmp"
	"slices"
	"testing"
)

func TestSetOperations(t *testing.T) {
	t.Run("Add and Contains", func(t *testing.T) {
		s := New[int]()
		if !s.Add(1) {
			t.Error("first Add(1) should report growth")
		}
		s.Add(2)
		if s.Add(1) {
			t.Error("second Add(1) should not report growth")
		}

		if !s.Contains(1) || !s.Contains(2) {
			t.Error("set should contain 1 and 2")
		}
		if s.Contains(3) {
			t.Error("set should not contain 3")
		}
	})

	t.Run("Union", func(t *testing.T) {
		s1 := Of(1, 2)
		s2 := Of(2, 3)

		u := s1.Union(s2)
		if !u.Equal(Of(1, 2, 3)) {
			t.Errorf("union = %v, want {1 2 3}", u.Sorted(cmp.Compare[int]))
		}
		if s1.Len() != 2 {
			t.Error("union should not modify the receiver")
		}
	})

	t.Run("Minus", func(t *testing.T) {
		diff := Of(1, 2, 3).Minus(Of(2))
		if !diff.Equal(Of(1, 3)) {
			t.Errorf("difference = %v, want {1 3}", diff.Sorted(cmp.Compare[int]))
		}
	})

	t.Run("AddAll", func(t *testing.T) {
		s := Of(1)
		if !s.AddAll(Of(1, 2)) {
			t.Error("AddAll with a new element should report growth")
		}
		if s.AddAll(Of(2)) {
			t.Error("AddAll with no new element should not report growth")
		}
	})

	t.Run("Intersects", func(t *testing.T) {
		if !Of(1, 2).Intersects(Of(2, 5, 7)) {
			t.Error("{1 2} and {2 5 7} should intersect")
		}
		if Of(1).Intersects(Of(3)) {
			t.Error("{1} and {3} should not intersect")
		}
		if New[int]().Intersects(Of(1)) {
			t.Error("empty set intersects nothing")
		}
	})

	t.Run("Equal", func(t *testing.T) {
		if !Of(1, 2).Equal(Of(2, 1)) {
			t.Error("{1 2} and {2 1} should be equal")
		}
		if Of(1, 2).Equal(Of(1)) {
			t.Error("{1 2} and {1} should not be equal")
		}
	})

	t.Run("Copy", func(t *testing.T) {
		s := Of(1)
		c := s.Copy()
		c.Add(2)
		if s.Contains(2) {
			t.Error("modifying the copy should not affect the original")
		}
	})

	t.Run("Sorted", func(t *testing.T) {
		got := Of(3, 1, 2).Sorted(cmp.Compare[int])
		if !slices.Equal(got, []int{1, 2, 3}) {
			t.Errorf("Sorted() = %v, want [1 2 3]", got)
		}
	})
}
