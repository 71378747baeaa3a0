// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Reading Go source into SSA form.  The functions are then lowered
// into LIR by Lower().

package front

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"slices"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

const buildMode = ssa.SanityCheckFunctions

// Loads the packages matching 'patterns', relative to 'dir', and
// returns their top-level functions in source order.

func Load(dir string, patterns ...string) ([]*ssa.Function, error) {
	mode := packages.NeedName |
		packages.NeedFiles |
		packages.NeedSyntax |
		packages.NeedTypes |
		packages.NeedTypesInfo |
		packages.NeedImports |
		packages.NeedDeps
	config := &packages.Config{Mode: mode, Dir: dir}
	loaded, err := packages.Load(config, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading %v: %w", patterns, err)
	}
	problems := []error{}
	packages.Visit(loaded, nil, func(pkg *packages.Package) {
		for _, problem := range pkg.Errors {
			problems = append(problems, problem)
		}
	})
	if 0 < len(problems) {
		return nil, fmt.Errorf("loading %v: %w", patterns, problems[0])
	}
	program, ssaPackages := ssautil.AllPackages(loaded, buildMode)
	program.Build()
	result := []*ssa.Function{}
	for _, pkg := range ssaPackages {
		if pkg != nil {
			result = append(result, packageFunctions(pkg)...)
		}
	}
	return result, nil
}

// Type checks and builds a single file whose only imports are from
// the standard library.

func BuildSource(fileName string, source []byte) ([]*ssa.Function, error) {
	fileSet := token.NewFileSet()
	file, err := parser.ParseFile(fileSet, fileName, source, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	pkg := types.NewPackage(file.Name.Name, file.Name.Name)
	config := &types.Config{Importer: importer.Default()}
	ssaPackage, _, err := ssautil.BuildPackage(config, fileSet, pkg, []*ast.File{file}, buildMode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return packageFunctions(ssaPackage), nil
}

// Synthetic functions, such as the package initializer, are left out.

func packageFunctions(pkg *ssa.Package) []*ssa.Function {
	result := []*ssa.Function{}
	for _, member := range pkg.Members {
		if fn, ok := member.(*ssa.Function); ok && fn.Synthetic == "" && fn.Blocks != nil {
			result = append(result, fn)
		}
	}
	slices.SortFunc(result, func(x, y *ssa.Function) int {
		return int(x.Pos()) - int(y.Pos())
	})
	return result
}
