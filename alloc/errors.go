// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKindT int

const (
	// Spilling did not produce a colorable graph.  Another allocator
	// or different options may succeed.
	NoColoring ErrorKindT = iota
	// Inconsistent input or a broken allocator invariant.
	Internal
)

var (
	ErrNoColoring = errors.New("no coloring found")
	ErrInternal   = errors.New("internal allocator error")
)

type AllocationErrorT struct {
	Unit       string
	Kind       ErrorKindT
	Message    string
	Candidates []string // values still waiting to be spilled
	Err        error    // underlying cause, if any
}

func (err *AllocationErrorT) Error() string {
	var builder strings.Builder
	if err.Unit != "" {
		builder.WriteString(err.Unit)
		builder.WriteString(": ")
	}
	builder.WriteString(err.Message)
	if 0 < len(err.Candidates) {
		fmt.Fprintf(&builder, " (candidates %s)", strings.Join(err.Candidates, " "))
	}
	if err.Err != nil {
		fmt.Fprintf(&builder, ": %v", err.Err)
	}
	return builder.String()
}

func (err *AllocationErrorT) Unwrap() []error {
	sentinel := ErrInternal
	if err.Kind == NoColoring {
		sentinel = ErrNoColoring
	}
	if err.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, err.Err}
}

func (err *AllocationErrorT) Retryable() bool {
	return err.Kind == NoColoring
}

func internalError(format string, args ...any) *AllocationErrorT {
	return &AllocationErrorT{Kind: Internal, Message: fmt.Sprintf(format, args...)}
}
