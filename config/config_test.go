// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/s48/graphcolor/lir"
)

func TestDefault(t *testing.T) {
	config := Default()
	target, err := config.RegisterConfig()
	if err != nil {
		t.Fatalf("default target: %v", err)
	}
	if target.Name != "demo64" || len(target.Registers) != 18 || len(target.Categories) != 2 {
		t.Fatalf("unexpected target %s with %d registers and %d categories",
			target.Name, len(target.Registers), len(target.Categories))
	}
	cpu := target.CategoryFor(lir.IntKind)
	if got := len(target.AllocatableIn(cpu)); got != 8 {
		t.Errorf("cpu has %d allocatable registers, expected 8", got)
	}
	if target.IsAllocatable(target.Register("rbp")) {
		t.Errorf("rbp is allocatable")
	}
	if !target.IsCallerSaved(target.Register("r3")) || target.IsCallerSaved(target.Register("r4")) {
		t.Errorf("wrong caller-saved registers")
	}
	if args := target.Arguments(lir.FloatKind); len(args) != 4 || args[0].Name != "f0" {
		t.Errorf("wrong float arguments %v", args)
	}
	if results := target.Results(lir.IntKind); len(results) != 1 || results[0].Name != "r0" {
		t.Errorf("wrong int results %v", results)
	}
	if config.Allocator.MaxSpillRounds != 500 || config.Allocator.InterferenceRegionSpilling {
		t.Errorf("wrong allocator defaults %+v", config.Allocator)
	}
	if len(config.AllocOptions(nil)) != 2 {
		t.Errorf("expected two allocator options")
	}
}

const yamlConfig = `
log_level: debug
jobs: 2
allocator:
  interference_region_spilling: true
target:
  name: tiny
  category:
    - name: gpr
      kind: int
      registers: [a, b, c, sp]
      allocatable: [a, b, c]
      caller_saved: [a]
      arguments: [a, b]
      results: [a]
`

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !config.Allocator.InterferenceRegionSpilling || config.Allocator.MaxSpillRounds != 500 || config.Jobs != 2 {
		t.Errorf("wrong options %+v", config)
	}
	if config.Level().String() != "debug" {
		t.Errorf("wrong level %s", config.Level())
	}
	target, err := config.RegisterConfig()
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if got := len(target.AllocatableIn(target.Categories[0])); got != 3 {
		t.Errorf("%d allocatable registers, expected 3", got)
	}
	if target.CategoryFor(lir.FloatKind) != nil {
		t.Errorf("tiny target has a float category")
	}
}

func TestValidation(t *testing.T) {
	bad := `
[target]
name = "bad"
[[target.category]]
name = "gpr"
kind = "decimal"
registers = ["a", "b"]
arguments = ["c"]
[[target.category]]
name = "more"
kind = "int"
registers = ["a"]
`
	_, err := Parse([]byte(bad), "toml")
	if err == nil {
		t.Fatal("no error for a bad target")
	}
	for _, expected := range []string{
		`unknown kind "decimal"`,
		"arguments register c is not in the category",
		"register a is in both gpr and more",
	} {
		if !strings.Contains(err.Error(), expected) {
			t.Errorf("error %q does not mention %q", err, expected)
		}
	}
	if _, err := Load("target.json"); err == nil {
		t.Errorf("no error for a missing file")
	}
}
