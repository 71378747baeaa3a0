// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package front

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"golang.org/x/tools/go/ssa"

	"github.com/s48/graphcolor/alloc"
	"github.com/s48/graphcolor/config"
	"github.com/s48/graphcolor/lir"
)

const testSource = `
package app

func fact(n uint32) uint32 {
	var r uint32 = 1
loop:
	if n < 2 {
		return r
	}
	r = r * n
	n = n - 1
	goto loop
}

func and(x int, y int) int {
	if x < y && y < 10 {
		x = x + y + 2
	} else {
		x = x * y
	}
	return x
}

func sum(n int) int {
	r := 0
	for i := range n {
		if i%3 == 0 {
			continue
		}
		r += i
	}
	return r
}

func wrap(x uint8) uint8 {
	return x + 200
}

func double(x int8) int8 {
	return x * 2
}

func scale(x float64, n int) float64 {
	return x*float64(n) + 0.5
}

func swap(n int) int {
	a, b := 1, 2
	for i := 0; i < n; i++ {
		a, b = b, a
	}
	return a*10 + b
}

func less(x int, y int) bool {
	return x < y
}

func first(s []int) int {
	return s[0]
}
`

func buildTestSource(t *testing.T) map[string]*ssa.Function {
	functions, err := BuildSource("app.go", []byte(testSource))
	if err != nil {
		t.Fatal(err)
	}
	result := map[string]*ssa.Function{}
	names := []string{}
	for _, fn := range functions {
		result[fn.Name()] = fn
		names = append(names, fn.Name())
	}
	// In source order, without the package initializer.
	expected := []string{"fact", "and", "sum", "wrap", "double", "scale", "swap", "less", "first"}
	if !slices.Equal(names, expected) {
		t.Fatalf("built %v", names)
	}
	return result
}

func defaultTarget(t *testing.T) *lir.RegisterConfigT {
	target, err := config.Default().RegisterConfig()
	if err != nil {
		t.Fatal(err)
	}
	return target
}

func floatBits(x float64) int64 {
	return int64(math.Float64bits(x))
}

var lowerTests = []struct {
	name  string
	cases [][2][]int64 // arguments, results
}{
	{"fact", [][2][]int64{{{1}, {1}}, {{5}, {120}}, {{10}, {3628800}}}},
	{"and", [][2][]int64{{{1, 4}, {7}}, {{2, 10}, {20}}, {{4, 3}, {12}}, {{20, 10}, {200}}}},
	{"sum", [][2][]int64{{{0}, {0}}, {{7}, {1 + 2 + 4 + 5}}}},
	{"wrap", [][2][]int64{{{100}, {44}}, {{10}, {210}}}},
	{"double", [][2][]int64{{{100}, {-56}}, {{-3}, {-6}}}},
	{"scale", [][2][]int64{{{floatBits(1.5), 3}, {floatBits(5)}}}},
	{"swap", [][2][]int64{{{0}, {12}}, {{3}, {21}}}},
	{"less", [][2][]int64{{{1, 2}, {1}}, {{2, 1}, {0}}}},
}

// Each function gives the expected results after lowering and again
// after allocation, with and without region spilling.

func TestLowerAndAllocate(t *testing.T) {
	functions := buildTestSource(t)
	target := defaultTarget(t)
	for _, test := range lowerTests {
		for _, region := range []bool{false, true} {
			function, err := Lower(functions[test.name], target)
			if err != nil {
				t.Fatalf("%s: %v", test.name, err)
			}
			check := func(when string) {
				for _, testCase := range test.cases {
					results, err := lir.Evaluate(function, target, testCase[0])
					if err != nil {
						t.Fatalf("%s %s: %v\n%s", test.name, when, err, lir.FunctionString(function, true))
					}
					if !slices.Equal(results, testCase[1]) {
						t.Errorf("%s%v %s returned %v, expected %v\n%s", test.name, testCase[0],
							when, results, testCase[1], lir.FunctionString(function, true))
					}
				}
			}
			check("before allocation")
			result, err := alloc.Allocate(context.Background(), function, target,
				alloc.WithRegionSpilling(region))
			if err != nil {
				t.Fatalf("%s: %v", test.name, err)
			}
			if err := result.Verify(function); err != nil {
				t.Fatalf("%s: %v", test.name, err)
			}
			check("after allocation")
		}
	}
}

// The loop's phis carry three values through two registers.

func TestLowerSwapSpilling(t *testing.T) {
	functions := buildTestSource(t)
	target := defaultTarget(t).Restrict(2)
	for _, region := range []bool{false, true} {
		function, err := Lower(functions["swap"], target)
		if err != nil {
			t.Fatal(err)
		}
		result, err := alloc.Allocate(context.Background(), function, target,
			alloc.WithRegionSpilling(region))
		if err != nil {
			t.Fatalf("region %v: %v", region, err)
		}
		if err := result.Verify(function); err != nil {
			t.Fatalf("region %v: %v", region, err)
		}
		if result.Stats.Spilled == 0 {
			t.Errorf("region %v: nothing spilled", region)
		}
		for _, testCase := range [][2][]int64{{{0}, {12}}, {{3}, {21}}, {{4}, {12}}} {
			results, err := lir.Evaluate(function, target, testCase[0])
			if err != nil {
				t.Fatalf("region %v: %v\n%s", region, err, lir.FunctionString(function, true))
			}
			if !slices.Equal(results, testCase[1]) {
				t.Errorf("region %v: swap%v returned %v, expected %v\n%s", region, testCase[0],
					results, testCase[1], lir.FunctionString(function, true))
			}
		}
	}
}

func TestLowerShape(t *testing.T) {
	functions := buildTestSource(t)
	target := defaultTarget(t)
	function, err := Lower(functions["scale"], target)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(function.Parameters, []lir.ValueT{target.Register("f0"), target.Register("r0")}) {
		t.Errorf("parameters %v", function.Parameters)
	}
	if !slices.Equal(function.Results, []lir.ValueT{target.Register("f0")}) {
		t.Errorf("results %v", function.Results)
	}
	function, err = Lower(functions["fact"], target)
	if err != nil {
		t.Fatal(err)
	}
	text := lir.FunctionString(function, false)
	if !strings.Contains(text, "(branch < ") {
		t.Errorf("comparison not fused into the branch\n%s", text)
	}
	for _, block := range function.Blocks {
		if 1 < len(block.Successors) {
			for _, succ := range block.Successors {
				if len(succ.Predecessors) != 1 || 0 < len(succ.PhiIns()) {
					t.Errorf("critical edge from %s to %s\n%s", block, succ, text)
				}
			}
		}
	}
}

func TestUnsupported(t *testing.T) {
	functions := buildTestSource(t)
	_, err := Lower(functions["first"], defaultTarget(t))
	var unsupported *UnsupportedError
	if !errors.Is(err, ErrUnsupported) || !errors.As(err, &unsupported) {
		t.Fatalf("expected an unsupported error, got %v", err)
	}
	if unsupported.Function != "first" || !strings.HasPrefix(err.Error(), "app.go:") {
		t.Errorf("unexpected error %q", err)
	}
}
