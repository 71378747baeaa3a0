// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Target register files and allocator options, read from TOML or
// YAML files.

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/s48/graphcolor/alloc"
	"github.com/s48/graphcolor/lir"
	"github.com/s48/graphcolor/util"
)

type ConfigT struct {
	LogLevel  string     `toml:"log_level" yaml:"log_level"`
	Jobs      int        `toml:"jobs" yaml:"jobs"` // 0 means one per CPU
	Allocator AllocatorT `toml:"allocator" yaml:"allocator"`
	Target    TargetT    `toml:"target" yaml:"target"`
}

type AllocatorT struct {
	InterferenceRegionSpilling bool   `toml:"interference_region_spilling" yaml:"interference_region_spilling"`
	MaxSpillRounds             int    `toml:"max_spill_rounds" yaml:"max_spill_rounds"`
	DumpDir                    string `toml:"dump_dir" yaml:"dump_dir"`
}

type TargetT struct {
	Name       string      `toml:"name" yaml:"name"`
	Categories []CategoryT `toml:"category" yaml:"category"`
}

// A missing 'allocatable' list means every register is allocatable.

type CategoryT struct {
	Name        string   `toml:"name" yaml:"name"`
	Kind        string   `toml:"kind" yaml:"kind"` // "int" or "float"
	Registers   []string `toml:"registers" yaml:"registers"`
	Allocatable []string `toml:"allocatable" yaml:"allocatable"`
	CallerSaved []string `toml:"caller_saved" yaml:"caller_saved"`
	Arguments   []string `toml:"arguments" yaml:"arguments"`
	Results     []string `toml:"results" yaml:"results"`
}

//go:embed default.toml
var defaultConfig []byte

// The built-in demo64 configuration.
func Default() *ConfigT {
	config, err := Parse(defaultConfig, "toml")
	if err != nil {
		panic(fmt.Sprintf("bad default configuration: %v", err))
	}
	return config
}

// Reads a .toml, .yaml or .yml file.
func Load(path string) (*ConfigT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var format string
	switch filepath.Ext(path) {
	case ".toml":
		format = "toml"
	case ".yaml", ".yml":
		format = "yaml"
	default:
		return nil, fmt.Errorf("%s: unknown config file type", path)
	}
	config, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func Parse(data []byte, format string) (*ConfigT, error) {
	config := &ConfigT{}
	var err error
	switch format {
	case "toml":
		err = toml.Unmarshal(data, config)
	case "yaml":
		err = yaml.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Allocator.MaxSpillRounds == 0 {
		config.Allocator.MaxSpillRounds = alloc.DefaultMaxSpillRounds
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var kinds = map[string]lir.KindT{"int": lir.IntKind, "float": lir.FloatKind}

// Returns all of the problems with the configuration.
func (config *ConfigT) Validate() error {
	var err error
	if _, levelErr := zapcore.ParseLevel(config.LogLevel); levelErr != nil {
		err = multierr.Append(err, levelErr)
	}
	if config.Jobs < 0 {
		err = multierr.Append(err, fmt.Errorf("jobs is negative (%d)", config.Jobs))
	}
	if config.Allocator.MaxSpillRounds < 0 {
		err = multierr.Append(err, fmt.Errorf("max_spill_rounds is negative (%d)", config.Allocator.MaxSpillRounds))
	}
	if len(config.Target.Categories) == 0 {
		err = multierr.Append(err, fmt.Errorf("target %q has no register categories", config.Target.Name))
	}
	seen := map[string]string{}
	seenKinds := map[lir.KindT]bool{}
	for _, category := range config.Target.Categories {
		kind, ok := kinds[category.Kind]
		if !ok {
			err = multierr.Append(err, fmt.Errorf("category %s: unknown kind %q", category.Name, category.Kind))
		}
		if seenKinds[kind] && (0 < len(category.Arguments) || 0 < len(category.Results)) {
			err = multierr.Append(err,
				fmt.Errorf("category %s: only the first %s category can have arguments or results", category.Name, category.Kind))
		}
		seenKinds[kind] = true
		if len(category.Registers) == 0 {
			err = multierr.Append(err, fmt.Errorf("category %s has no registers", category.Name))
		}
		for _, name := range category.Registers {
			if other, found := seen[name]; found {
				err = multierr.Append(err, fmt.Errorf("register %s is in both %s and %s", name, other, category.Name))
			}
			seen[name] = category.Name
		}
		for _, list := range []struct {
			what  string
			names []string
		}{
			{"allocatable", category.Allocatable},
			{"caller_saved", category.CallerSaved},
			{"arguments", category.Arguments},
			{"results", category.Results},
		} {
			for _, name := range list.names {
				if !slices.Contains(category.Registers, name) {
					err = multierr.Append(err,
						fmt.Errorf("category %s: %s register %s is not in the category", category.Name, list.what, name))
				}
			}
		}
	}
	return err
}

// Builds the register configuration.  The result is read-only and
// may be shared.

func (config *ConfigT) RegisterConfig() (*lir.RegisterConfigT, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	target := lir.NewRegisterConfig(config.Target.Name)
	for _, category := range config.Target.Categories {
		kind := kinds[category.Kind]
		cat := target.AddCategory(category.Name, kind)
		for _, name := range category.Registers {
			attributes := lir.RegisterAttributesT{
				Allocatable: category.Allocatable == nil || slices.Contains(category.Allocatable, name),
				CallerSaved: slices.Contains(category.CallerSaved, name)}
			if _, err := target.AddRegister(name, cat, attributes); err != nil {
				return nil, err
			}
		}
		if 0 < len(category.Arguments) {
			target.SetArguments(kind, util.Map(target.Register, category.Arguments)...)
		}
		if 0 < len(category.Results) {
			target.SetResults(kind, util.Map(target.Register, category.Results)...)
		}
	}
	return target, nil
}

// The allocator options the configuration asks for.
func (config *ConfigT) AllocOptions(logger *zap.Logger) []alloc.OptionT {
	options := []alloc.OptionT{
		alloc.WithRegionSpilling(config.Allocator.InterferenceRegionSpilling),
		alloc.WithMaxSpillRounds(config.Allocator.MaxSpillRounds)}
	if logger != nil {
		options = append(options, alloc.WithLogger(logger))
		if config.Allocator.DumpDir != "" {
			options = append(options, alloc.WithDumper(alloc.NewFileDumper(config.Allocator.DumpDir, logger)))
		}
	}
	return options
}

func (config *ConfigT) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
