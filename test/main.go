// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Compile, allocate and evaluate test files.
//  --go <file>      Lowers and allocates the functions in 'test/<file>.go'.
//  --lir <file>     Reads and allocates the functions in 'test/<file>.lir'.
//  --func <name>    Only uses the named function.
//  --config <file>  Reads the target and allocator options from a TOML or YAML file.
//  --region         Spills only where an interfering neighbour is live.
//  --regs <n>       Only allocates the first n registers of each category.
//  --dump <dir>     Writes the interference graphs and colorings to 'dir'.
//  --json           Prints the report as JSON.
//  --jobs <n>       Allocates at most n functions at once.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"slices"

	"github.com/segmentio/encoding/json"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/s48/graphcolor/alloc"
	"github.com/s48/graphcolor/config"
	"github.com/s48/graphcolor/front"
	"github.com/s48/graphcolor/lir"
)

func main() {
	goFilename := flag.String("go", "", "Go file")
	lirFilename := flag.String("lir", "", "LIR file")
	onlyFunction := flag.String("func", "", "function name")
	configFile := flag.String("config", "", "configuration file")
	region := flag.Bool("region", false, "interference region spilling")
	regs := flag.Int("regs", 0, "registers per category")
	dumpDir := flag.String("dump", "", "graph dump directory")
	jsonReport := flag.Bool("json", false, "JSON report")
	verbose := flag.Bool("verbose", false, "development logging")
	jobs := flag.Int("jobs", 0, "concurrent allocations")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
	}
	if *region {
		cfg.Allocator.InterferenceRegionSpilling = true
	}
	if *dumpDir != "" {
		cfg.Allocator.DumpDir = *dumpDir
	}
	if *jobs != 0 {
		cfg.Jobs = *jobs
	}

	logger, err := newLogger(cfg, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	target, err := cfg.RegisterConfig()
	if err != nil {
		logger.Fatal("bad target", zap.Error(err))
	}
	if 0 < *regs {
		target = target.Restrict(*regs)
	}

	var functions []*lir.FunctionT
	switch {
	case *goFilename != "":
		functions, err = lowerGoFile("test/"+*goFilename+".go", target, logger)
	case *lirFilename != "":
		functions, err = readLirFile("test/"+*lirFilename+".lir", target)
	default:
		logger.Fatal("one of --go or --lir is required")
	}
	if err != nil {
		logger.Fatal("reading functions", zap.Error(err))
	}
	if *onlyFunction != "" {
		functions = slices.DeleteFunc(functions, func(function *lir.FunctionT) bool {
			return function.Name != *onlyFunction
		})
		if len(functions) == 0 {
			logger.Fatal("no such function", zap.String("func", *onlyFunction))
		}
	}

	runner := &runnerT{
		target:  target,
		options: cfg.AllocOptions(logger),
		logger:  logger,
		jobs:    cfg.Jobs}
	reports, err := runner.run(context.Background(), functions)
	if *jsonReport {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if encodeErr := encoder.Encode(reports); encodeErr != nil {
			logger.Error("writing report", zap.Error(encodeErr))
		}
	} else {
		for _, report := range reports {
			report.print()
		}
		fmt.Printf("%d passed, %d failed\n", runner.passed.Load(), runner.failed.Load())
	}
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.ConfigT, verbose bool) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig.Level = zap.NewAtomicLevelAt(cfg.Level())
	}
	return zapConfig.Build()
}

// Functions that use types or operations the lowering does not handle
// are skipped.

func lowerGoFile(source string, target *lir.RegisterConfigT, logger *zap.Logger) ([]*lir.FunctionT, error) {
	in, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	fns, err := front.BuildSource(source, in)
	if err != nil {
		return nil, err
	}
	result := []*lir.FunctionT{}
	for _, fn := range fns {
		function, err := front.Lower(fn, target)
		if errors.Is(err, front.ErrUnsupported) {
			logger.Warn("skipping function", zap.String("func", fn.Name()), zap.Error(err))
			continue
		} else if err != nil {
			return nil, err
		}
		result = append(result, function)
	}
	return result, nil
}

func readLirFile(source string, target *lir.RegisterConfigT) ([]*lir.FunctionT, error) {
	in, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	functions, err := lir.ReadFunctions(string(in), target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return functions, nil
}

//----------------------------------------------------------------
// Allocating and checking functions concurrently.

type runnerT struct {
	target  *lir.RegisterConfigT
	options []alloc.OptionT
	logger  *zap.Logger
	jobs    int
	passed  atomic.Int64
	failed  atomic.Int64
}

type reportT struct {
	Function string        `json:"function"`
	Passed   bool          `json:"passed"`
	Cases    int           `json:"cases"`
	Failures []string      `json:"failures,omitempty"`
	Stats    *alloc.StatsT `json:"stats,omitempty"`
	Error    string        `json:"error,omitempty"`
	err      error
}

// Returns one report per function, in order.  The error combines the
// failures of all of the functions.

func (runner *runnerT) run(ctx context.Context, functions []*lir.FunctionT) ([]*reportT, error) {
	jobs := runner.jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	reports := make([]*reportT, len(functions))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)
	for i, function := range functions {
		group.Go(func() error {
			reports[i] = runner.runFunction(ctx, function)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return reports, err
	}
	var err error
	for _, report := range reports {
		err = multierr.Append(err, report.err)
	}
	return reports, err
}

// Allocates a copy of 'function' and checks that the copy returns
// what the original does for each of the function's test cases.

func (runner *runnerT) runFunction(ctx context.Context, function *lir.FunctionT) *reportT {
	report := &reportT{Function: function.Name}
	defer func() {
		if report.err != nil {
			report.Error = report.err.Error()
			runner.failed.Inc()
		} else {
			report.Passed = true
			runner.passed.Inc()
		}
	}()
	allocated := function.Copy()
	result, err := alloc.Allocate(ctx, allocated, runner.target, runner.options...)
	if err != nil {
		report.err = err
		return report
	}
	report.Stats = &result.Stats
	if err := result.Verify(allocated); err != nil {
		report.err = err
		return report
	}
	test := allTests[function.Name]
	if test == nil {
		runner.logger.Info("no test cases", zap.String("func", function.Name))
		return report
	}
	report.Cases = len(test.cases)
	for i, testCase := range test.cases {
		for _, version := range []struct {
			when     string
			function *lir.FunctionT
		}{{"before allocation", function}, {"after allocation", allocated}} {
			results, err := lir.Evaluate(version.function, runner.target, testCase.inputs)
			if err == nil && !slices.Equal(results, testCase.outputs) {
				err = fmt.Errorf("returned %v but expected %v", results, testCase.outputs)
			}
			if err != nil {
				report.Failures = append(report.Failures,
					fmt.Sprintf("test %d %s: %v", i, version.when, err))
			}
		}
	}
	if 0 < len(report.Failures) {
		report.err = fmt.Errorf("%s: %d of %d test cases failed", function.Name, len(report.Failures), len(test.cases))
	}
	return report
}

func (report *reportT) print() {
	if report.Passed {
		fmt.Printf("%s: ok", report.Function)
	} else {
		fmt.Printf("%s: FAILED", report.Function)
	}
	if report.Stats != nil {
		fmt.Printf(" (%d rounds, %d spilled, %d moves)",
			report.Stats.SpillRounds, report.Stats.Spilled, report.Stats.ResolutionMoves)
	}
	fmt.Printf("\n")
	for _, failure := range report.Failures {
		fmt.Printf("  %s\n", failure)
	}
	if report.Error != "" && len(report.Failures) == 0 {
		fmt.Printf("  %s\n", report.Error)
	}
}

//----------------------------------------------------------------

type testT struct {
	cases []testCaseT
}

type testCaseT struct {
	inputs  []int64
	outputs []int64
}

// There should be a way to put these in the test files themselves.

var allTests = map[string]*testT{
	"add": &testT{cases: []testCaseT{
		testCaseT{[]int64{4, 4}, []int64{30}},
		testCaseT{[]int64{4, 5}, []int64{25}},
		testCaseT{[]int64{5, 4}, []int64{35}},
	}},
	"comp": &testT{cases: []testCaseT{
		testCaseT{[]int64{4, 4}, []int64{122121}},
		testCaseT{[]int64{4, 5}, []int64{211122}},
		testCaseT{[]int64{5, 4}, []int64{212211}},
	}},
	"fact": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_int": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_two_loop": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_two_loop2": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{6}, []int64{720}},
	}},
	"fact_three_loop": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{6}, []int64{720}},
	}},
	"fact_for": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_break": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_break2": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_no_three": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{40}},
	}},
	"fact_range": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_range_key": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"fact_range_define_key": &testT{cases: []testCaseT{
		testCaseT{[]int64{1}, []int64{1}},
		testCaseT{[]int64{5}, []int64{120}},
	}},
	"and": &testT{cases: []testCaseT{
		testCaseT{[]int64{1, 4}, []int64{7}},     // x < y && y < 10
		testCaseT{[]int64{2, 10}, []int64{20}},   // x < y && y !< 10
		testCaseT{[]int64{4, 3}, []int64{12}},    // x !< y && y < 10
		testCaseT{[]int64{20, 10}, []int64{200}}, // x !< y && y !< 10
	}},
	"or": &testT{cases: []testCaseT{
		testCaseT{[]int64{1, 4}, []int64{7}},     // x < y || y < 10
		testCaseT{[]int64{2, 10}, []int64{14}},   // x < y || y !< 10
		testCaseT{[]int64{4, 3}, []int64{9}},     // x !< y || y < 10
		testCaseT{[]int64{20, 10}, []int64{200}}, // x !< y || y !< 10
	}},
	"not": &testT{cases: []testCaseT{
		testCaseT{[]int64{1, 4}, []int64{7}}, // same as "or"
		testCaseT{[]int64{2, 10}, []int64{14}},
		testCaseT{[]int64{4, 3}, []int64{9}},
		testCaseT{[]int64{20, 10}, []int64{200}},
	}},
	"pressure": &testT{cases: []testCaseT{
		testCaseT{[]int64{3, 4}, []int64{2}},
		testCaseT{[]int64{5, 2}, []int64{4}},
	}},
	"swap": &testT{cases: []testCaseT{
		testCaseT{[]int64{0}, []int64{12}},
		testCaseT{[]int64{3}, []int64{21}},
	}},
	"phi_cycle": &testT{cases: []testCaseT{
		testCaseT{[]int64{1, 2, 0}, []int64{1}},
		testCaseT{[]int64{1, 2, 3}, []int64{2}},
	}},
}
