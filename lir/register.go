// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package lir

import (
	"fmt"
	"slices"
)

// A register file.  Each category gets its own interference graph.

type CategoryT struct {
	Name     string
	Platform KindT
	Number   int
}

func (category *CategoryT) String() string { return category.Name }

type RegisterT struct {
	Number   int
	Name     string
	Category *CategoryT
}

func (reg *RegisterT) ValueKind() ValueKindT { return RegisterValue }
func (reg *RegisterT) PlatformKind() KindT   { return reg.Category.Platform }
func (reg *RegisterT) String() string        { return reg.Name }

type RegisterAttributesT struct {
	Allocatable bool
	CallerSaved bool
}

// The target's registers.  Once built this is read-only and can be
// shared by any number of concurrent allocations.

type RegisterConfigT struct {
	Name       string
	Registers  []*RegisterT // indexed by register number
	Categories []*CategoryT
	Attributes []RegisterAttributesT // indexed by register number

	arguments  map[KindT][]*RegisterT
	results    map[KindT][]*RegisterT
	categories map[KindT]*CategoryT
	byName     map[string]*RegisterT
}

func NewRegisterConfig(name string) *RegisterConfigT {
	return &RegisterConfigT{
		Name:       name,
		arguments:  map[KindT][]*RegisterT{},
		results:    map[KindT][]*RegisterT{},
		categories: map[KindT]*CategoryT{},
		byName:     map[string]*RegisterT{}}
}

// The first category added for a kind is the one used for variables
// of that kind.

func (config *RegisterConfigT) AddCategory(name string, kind KindT) *CategoryT {
	category := &CategoryT{Name: name, Platform: kind, Number: len(config.Categories)}
	config.Categories = append(config.Categories, category)
	if config.categories[kind] == nil {
		config.categories[kind] = category
	}
	return category
}

func (config *RegisterConfigT) AddRegister(name string, category *CategoryT, attributes RegisterAttributesT) (*RegisterT, error) {
	if config.byName[name] != nil {
		return nil, fmt.Errorf("duplicate register %s", name)
	}
	reg := &RegisterT{Number: len(config.Registers), Name: name, Category: category}
	config.Registers = append(config.Registers, reg)
	config.Attributes = append(config.Attributes, attributes)
	config.byName[name] = reg
	return reg, nil
}

func (config *RegisterConfigT) SetArguments(kind KindT, regs ...*RegisterT) {
	config.arguments[kind] = regs
}

func (config *RegisterConfigT) SetResults(kind KindT, regs ...*RegisterT) {
	config.results[kind] = regs
}

func (config *RegisterConfigT) Arguments(kind KindT) []*RegisterT { return config.arguments[kind] }
func (config *RegisterConfigT) Results(kind KindT) []*RegisterT   { return config.results[kind] }

func (config *RegisterConfigT) Register(name string) *RegisterT {
	return config.byName[name]
}

func (config *RegisterConfigT) IsAllocatable(reg *RegisterT) bool {
	return config.Attributes[reg.Number].Allocatable
}

func (config *RegisterConfigT) IsCallerSaved(reg *RegisterT) bool {
	return config.Attributes[reg.Number].CallerSaved
}

func (config *RegisterConfigT) CategoryFor(kind KindT) *CategoryT {
	return config.categories[kind]
}

// The allocatable registers of 'category' in register order.  Color
// i of the category is the i'th element.

func (config *RegisterConfigT) AllocatableIn(category *CategoryT) []*RegisterT {
	result := []*RegisterT{}
	for _, reg := range config.Registers {
		if reg.Category == category && config.IsAllocatable(reg) {
			result = append(result, reg)
		}
	}
	return result
}

func (config *RegisterConfigT) CallerSaved() []*RegisterT {
	result := []*RegisterT{}
	for _, reg := range config.Registers {
		if config.IsCallerSaved(reg) {
			result = append(result, reg)
		}
	}
	return result
}

// Registers are numbered from zero; virtual values follow them.

func (config *RegisterConfigT) FirstVariableNumber() int {
	return len(config.Registers)
}

// The graph node id for a register or variable, -1 for anything else.

func (config *RegisterConfigT) OperandNumber(value ValueT) int {
	switch value.ValueKind() {
	case RegisterValue:
		return value.(*RegisterT).Number
	case VariableValue:
		return config.FirstVariableNumber() + value.(*VariableT).Number
	}
	return -1
}

// Returns a copy whose categories are limited to their first 'count'
// allocatable registers.  Used to force spilling in tests.

func (config *RegisterConfigT) Restrict(count int) *RegisterConfigT {
	result := &RegisterConfigT{
		Name:       config.Name,
		Registers:  config.Registers,
		Categories: config.Categories,
		Attributes: slices.Clone(config.Attributes),
		arguments:  config.arguments,
		results:    config.results,
		categories: config.categories,
		byName:     config.byName}
	for _, category := range config.Categories {
		for i, reg := range config.AllocatableIn(category) {
			if count <= i {
				result.Attributes[reg.Number].Allocatable = false
			}
		}
	}
	return result
}
