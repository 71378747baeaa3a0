// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Receives the interference graphs and colorings as the allocator
// produces them.  Implementations may be shared by concurrent
// allocations.

type DumperT interface {
	DumpGraph(unit string, round int, category string, graph *InterferenceGraphT, names func(int) string)
	DumpColors(unit string, round int, category string, colors []int, names func(int) string)
}

type nopDumperT struct{}

func (nopDumperT) DumpGraph(string, int, string, *InterferenceGraphT, func(int) string) {}
func (nopDumperT) DumpColors(string, int, string, []int, func(int) string)             {}

var NopDumper DumperT = nopDumperT{}

// Writes each graph to <dir>/<unit>-<seq>-<category>.dot and each
// coloring to a matching .txt file.  Write failures are logged and
// otherwise ignored.

type FileDumperT struct {
	dir      string
	logger   *zap.Logger
	sequence atomic.Int64
}

func NewFileDumper(dir string, logger *zap.Logger) *FileDumperT {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileDumperT{dir: dir, logger: logger}
}

func (dumper *FileDumperT) fileName(unit string, category string, extension string) string {
	seq := dumper.sequence.Inc()
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' || r == '*' {
			return '_'
		}
		return r
	}, unit)
	return filepath.Join(dumper.dir, fmt.Sprintf("%s-%03d-%s.%s", safe, seq, category, extension))
}

func (dumper *FileDumperT) write(path string, contents string) {
	err := os.MkdirAll(dumper.dir, 0o755)
	if err == nil {
		err = os.WriteFile(path, []byte(contents), 0o644)
	}
	if err != nil {
		dumper.logger.Debug("dump failed", zap.String("path", path), zap.Error(err))
	}
}

func (dumper *FileDumperT) DumpGraph(unit string, round int, category string, graph *InterferenceGraphT, names func(int) string) {
	label := fmt.Sprintf("%s round %d %s", unit, round, category)
	dumper.write(dumper.fileName(unit, category, "dot"), graph.Dot(label, names))
}

func (dumper *FileDumperT) DumpColors(unit string, round int, category string, colors []int, names func(int) string) {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s round %d %s\n", unit, round, category)
	for id, color := range colors {
		if color != -1 {
			fmt.Fprintf(&builder, "%s %d\n", names(id), color)
		}
	}
	dumper.write(dumper.fileName(unit, category, "txt"), builder.String())
}

// The number of files written or attempted.
func (dumper *FileDumperT) Count() int64 {
	return dumper.sequence.Load()
}
