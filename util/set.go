// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

import (
	"slices"
)

// A set is a map from members to the empty struct, so
//   for member := range set { ... }
// works.  Iteration order is random; use Sorted() when order matters.

type SetT[E comparable] map[E]struct{}

func NewSet[E comparable](members ...E) SetT[E] {
	set := make(SetT[E], len(members))
	set.Add(members...)
	return set
}

// Returns how many of 'members' were not already present.
func (set SetT[E]) Add(members ...E) int {
	added := 0
	for _, member := range members {
		if !set.Contains(member) {
			set[member] = struct{}{}
			added += 1
		}
	}
	return added
}

// Returns false if 'member' was not present.
func (set SetT[E]) Remove(member E) bool {
	if !set.Contains(member) {
		return false
	}
	delete(set, member)
	return true
}

func (set SetT[E]) Contains(member E) bool {
	_, found := set[member]
	return found
}

// Adds the members of 'other' to 'set'.
func (set SetT[E]) Union(other SetT[E]) {
	for member := range other {
		set[member] = struct{}{}
	}
}

// Removes the members of 'other' from 'set'.
func (set SetT[E]) Difference(other SetT[E]) {
	for member := range other {
		delete(set, member)
	}
}

func (set SetT[E]) Sorted(cmp func(x E, y E) int) []E {
	result := make([]E, 0, len(set))
	for member := range set {
		result = append(result, member)
	}
	slices.SortFunc(result, cmp)
	return result
}
