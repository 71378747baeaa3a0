// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

import (
	"math/bits"
	"strconv"
	"strings"
)

// A growable set of small non-negative integers.  Setting a bit past
// the end grows the backing slice; reading past the end is false.

type BitSetT struct {
	words []uint64
}

func NewBitSet(members ...int) *BitSetT {
	set := &BitSetT{}
	for _, member := range members {
		set.Set(member)
	}
	return set
}

func (set *BitSetT) Get(i int) bool {
	index, shift := i/64, uint(i%64)
	return index < len(set.words) && set.words[index]&(1<<shift) != 0
}

func (set *BitSetT) Set(i int) {
	index, shift := i/64, uint(i%64)
	if len(set.words) <= index {
		set.words = append(set.words, make([]uint64, index+1-len(set.words))...)
	}
	set.words[index] |= 1 << shift
}

func (set *BitSetT) Clear(i int) {
	index, shift := i/64, uint(i%64)
	if index < len(set.words) {
		set.words[index] &^= 1 << shift
	}
}

// Sets bit 'i' to 'value'.
func (set *BitSetT) Put(i int, value bool) {
	if value {
		set.Set(i)
	} else {
		set.Clear(i)
	}
}

func (set *BitSetT) Reset() {
	set.words = set.words[:0]
}

func (set *BitSetT) Count() int {
	count := 0
	for _, word := range set.words {
		count += bits.OnesCount64(word)
	}
	return count
}

func (set *BitSetT) IsEmpty() bool {
	for _, word := range set.words {
		if word != 0 {
			return false
		}
	}
	return true
}

// Calls 'f' on each member in increasing order.
func (set *BitSetT) Scan(f func(int)) {
	for i, word := range set.words {
		for j := i * 64; word != 0; j++ {
			n := bits.TrailingZeros64(word)
			j += n
			word >>= uint(n) + 1
			f(j)
		}
	}
}

func (set *BitSetT) Members() []int {
	result := []int{}
	set.Scan(func(i int) { result = append(result, i) })
	return result
}

func (set *BitSetT) Copy() *BitSetT {
	return &BitSetT{words: append([]uint64(nil), set.words...)}
}

// set |= other.  Returns true if 'set' changed.
func (set *BitSetT) Union(other *BitSetT) bool {
	changed := false
	if len(set.words) < len(other.words) {
		set.words = append(set.words, make([]uint64, len(other.words)-len(set.words))...)
	}
	for i, word := range other.words {
		if set.words[i]|word != set.words[i] {
			set.words[i] |= word
			changed = true
		}
	}
	return changed
}

// set &^= other
func (set *BitSetT) Difference(other *BitSetT) {
	for i := range min(len(set.words), len(other.words)) {
		set.words[i] &^= other.words[i]
	}
}

func (set *BitSetT) Equal(other *BitSetT) bool {
	longer, shorter := set.words, other.words
	if len(longer) < len(shorter) {
		longer, shorter = shorter, longer
	}
	for i, word := range longer {
		if i < len(shorter) {
			if word != shorter[i] {
				return false
			}
		} else if word != 0 {
			return false
		}
	}
	return true
}

func (set *BitSetT) String() string {
	var builder strings.Builder
	builder.WriteString("{")
	first := true
	set.Scan(func(i int) {
		if !first {
			builder.WriteString(" ")
		}
		first = false
		builder.WriteString(strconv.Itoa(i))
	})
	builder.WriteString("}")
	return builder.String()
}
