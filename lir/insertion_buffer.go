// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package lir

import (
	"slices"
)

// Collects instructions to be inserted into a block's instruction
// list and then inserts them all in one pass.  Indexes refer to the
// list as it was when Init was called.  Instructions inserted at the
// same index keep the order in which they were appended and go in
// front of the original instruction at that index.

type InsertionBufferT struct {
	instructions []*InstructionT
	inserts      []pendingInsertT
}

type pendingInsertT struct {
	index int
	instr *InstructionT
}

func (buffer *InsertionBufferT) Init(instructions []*InstructionT) {
	buffer.instructions = instructions
	buffer.inserts = buffer.inserts[:0]
}

func (buffer *InsertionBufferT) Initialized() bool {
	return buffer.instructions != nil
}

func (buffer *InsertionBufferT) Append(index int, instrs ...*InstructionT) {
	if index < 0 || len(buffer.instructions) < index {
		panic("insertion index out of range")
	}
	for _, instr := range instrs {
		buffer.inserts = append(buffer.inserts, pendingInsertT{index, instr})
	}
}

func (buffer *InsertionBufferT) Empty() bool {
	return len(buffer.inserts) == 0
}

// Returns the new instruction list and resets the buffer.
func (buffer *InsertionBufferT) Finish() []*InstructionT {
	old := buffer.instructions
	buffer.instructions = nil
	if len(buffer.inserts) == 0 {
		return old
	}
	slices.SortStableFunc(buffer.inserts, func(x, y pendingInsertT) int {
		return x.index - y.index
	})
	result := make([]*InstructionT, 0, len(old)+len(buffer.inserts))
	next := 0
	for i, instr := range old {
		for ; next < len(buffer.inserts) && buffer.inserts[next].index == i; next++ {
			result = append(result, buffer.inserts[next].instr)
		}
		result = append(result, instr)
	}
	for ; next < len(buffer.inserts); next++ {
		result = append(result, buffer.inserts[next].instr)
	}
	buffer.inserts = buffer.inserts[:0]
	return result
}
