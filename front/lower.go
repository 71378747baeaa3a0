// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package front

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/ssa"

	"github.com/s48/graphcolor/lir"
)

// Lowering SSA functions into LIR.  Only scalar code is handled:
// integers, booleans and float64s, arithmetic, conversions, branches
// and phis.  Integers narrower than 64 bits are kept truncated (or
// sign extended) after each operation.  Arguments arrive in the
// target's argument registers and results leave in its result
// registers.

var ErrUnsupported = errors.New("unsupported")

type UnsupportedError struct {
	Function string
	Position string
	What     string
}

func (err *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s: unsupported %s", err.Position, err.Function, err.What)
}

func (err *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

var sizes = types.SizesFor("gc", "amd64")

type lowererT struct {
	fn       *ssa.Function
	target   *lir.RegisterConfigT
	function *lir.FunctionT
	values   map[ssa.Value]lir.ValueT
	blocks   map[*ssa.BasicBlock]*lir.BlockT
	splits   map[*ssa.BasicBlock][]*lir.BlockT // edge blocks following each block
	fused    map[*ssa.BinOp]bool               // comparisons done by their If
	block    *lir.BlockT                       // the block being filled
	results  []lir.ValueT
}

func Lower(fn *ssa.Function, target *lir.RegisterConfigT) (*lir.FunctionT, error) {
	lowerer := &lowererT{
		fn:       fn,
		target:   target,
		function: lir.NewFunction(fn.Name()),
		values:   map[ssa.Value]lir.ValueT{},
		blocks:   map[*ssa.BasicBlock]*lir.BlockT{},
		splits:   map[*ssa.BasicBlock][]*lir.BlockT{},
		fused:    map[*ssa.BinOp]bool{}}
	if err := lowerer.lower(); err != nil {
		return nil, err
	}
	return lowerer.function, nil
}

func (lowerer *lowererT) unsupported(pos token.Pos, format string, args ...any) error {
	position := "-"
	if pos.IsValid() {
		position = lowerer.fn.Prog.Fset.Position(pos).String()
	}
	return &UnsupportedError{
		Function: lowerer.fn.Name(),
		Position: position,
		What:     fmt.Sprintf(format, args...)}
}

func (lowerer *lowererT) lower() error {
	fn := lowerer.fn
	if len(fn.Blocks) == 0 {
		return lowerer.unsupported(fn.Pos(), "function without a body")
	}
	if 0 < len(fn.FreeVars) {
		return lowerer.unsupported(fn.Pos(), "closure")
	}
	if 0 < len(fn.Blocks[0].Preds) {
		return lowerer.unsupported(fn.Pos(), "jump to the entry block")
	}
	for _, block := range fn.Blocks {
		lowerer.blocks[block] = lowerer.function.AddBlock("b" + strconv.Itoa(block.Index))
	}
	if err := lowerer.lowerSignature(); err != nil {
		return err
	}
	for _, block := range fn.Blocks {
		if err := lowerer.lowerBlock(block); err != nil {
			return err
		}
	}
	order := []*lir.BlockT{}
	for _, block := range fn.Blocks {
		order = append(order, lowerer.blocks[block])
		order = append(order, lowerer.splits[block]...)
	}
	lowerer.function.Blocks = order
	lowerer.function.Results = lowerer.results
	lowerer.function.LinkBlocks()
	lowerer.function.ComputeFrequencies()
	if err := lir.CheckFunction(lowerer.function); err != nil {
		return fmt.Errorf("lowering %s: %w", fn.Name(), err)
	}
	return nil
}

//----------------------------------------------------------------
// Types and values

func (lowerer *lowererT) kindOf(pos token.Pos, typ types.Type) (lir.KindT, error) {
	if basic, ok := typ.Underlying().(*types.Basic); ok {
		info := basic.Info()
		switch {
		case info&(types.IsInteger|types.IsBoolean) != 0:
			return lir.IntKind, nil
		case basic.Kind() == types.Float64 || basic.Kind() == types.UntypedFloat:
			return lir.FloatKind, nil
		}
	}
	return 0, lowerer.unsupported(pos, "type %s", typ)
}

func isUnsigned(typ types.Type) bool {
	basic, ok := typ.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsUnsigned != 0
}

func isInteger(typ types.Type) bool {
	basic, ok := typ.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsInteger != 0
}

// Bits in an integer type narrower than 64 bits, otherwise 0.

func narrowBits(typ types.Type) int {
	if !isInteger(typ) {
		return 0
	}
	bits := 8 * int(sizes.Sizeof(typ))
	if 64 <= bits {
		return 0
	}
	return bits
}

func (lowerer *lowererT) constant(value *ssa.Const) (lir.ValueT, error) {
	kind, err := lowerer.kindOf(value.Pos(), value.Type())
	if err != nil {
		return nil, err
	}
	if value.Value == nil {
		if kind == lir.FloatKind {
			return lir.FloatConstant(0), nil
		}
		return lir.IntConstant(0), nil
	}
	switch value.Value.Kind() {
	case constant.Bool:
		if constant.BoolVal(value.Value) {
			return lir.IntConstant(1), nil
		}
		return lir.IntConstant(0), nil
	case constant.Int:
		if kind == lir.FloatKind {
			x, _ := constant.Float64Val(value.Value)
			return lir.FloatConstant(x), nil
		}
		if n, exact := constant.Int64Val(value.Value); exact {
			return lir.IntConstant(n), nil
		}
		n, _ := constant.Uint64Val(value.Value)
		return lir.IntConstant(int64(n)), nil
	case constant.Float:
		x, _ := constant.Float64Val(value.Value)
		return lir.FloatConstant(x), nil
	}
	return nil, lowerer.unsupported(value.Pos(), "constant %s", value)
}

// The LIR value for 'value', creating a variable the first time a
// non-constant is seen.  Phis can refer to values defined later.

func (lowerer *lowererT) value(value ssa.Value) (lir.ValueT, error) {
	if result, found := lowerer.values[value]; found {
		return result, nil
	}
	if c, ok := value.(*ssa.Const); ok {
		return lowerer.constant(c)
	}
	kind, err := lowerer.kindOf(value.Pos(), value.Type())
	if err != nil {
		return nil, err
	}
	result := lowerer.function.NewVariable(kind)
	lowerer.values[value] = result
	return result, nil
}

func (lowerer *lowererT) emit(instrs ...*lir.InstructionT) {
	lowerer.block.Add(instrs...)
}

//----------------------------------------------------------------

func (lowerer *lowererT) lowerSignature() error {
	fn := lowerer.fn
	entry := lowerer.blocks[fn.Blocks[0]]
	lowerer.block = entry
	lowerer.emit(lir.NewLabel())
	used := map[lir.KindT]int{}
	for _, param := range fn.Params {
		kind, err := lowerer.kindOf(param.Pos(), param.Type())
		if err != nil {
			return err
		}
		regs := lowerer.target.Arguments(kind)
		if len(regs) <= used[kind] {
			return lowerer.unsupported(param.Pos(), "more than %d %s arguments", len(regs), kind)
		}
		reg := regs[used[kind]]
		used[kind] += 1
		vart, err := lowerer.value(param)
		if err != nil {
			return err
		}
		lowerer.function.Parameters = append(lowerer.function.Parameters, reg)
		lowerer.emit(lir.NewMove(vart, reg))
	}
	return nil
}

// The result registers for a return of 'values'.

func (lowerer *lowererT) resultRegisters(pos token.Pos, values []ssa.Value) ([]lir.ValueT, error) {
	used := map[lir.KindT]int{}
	regs := []lir.ValueT{}
	for _, value := range values {
		kind, err := lowerer.kindOf(pos, value.Type())
		if err != nil {
			return nil, err
		}
		available := lowerer.target.Results(kind)
		if len(available) <= used[kind] {
			return nil, lowerer.unsupported(pos, "more than %d %s results", len(available), kind)
		}
		regs = append(regs, available[used[kind]])
		used[kind] += 1
	}
	return regs, nil
}

func (lowerer *lowererT) lowerBlock(block *ssa.BasicBlock) error {
	lowerer.block = lowerer.blocks[block]
	phis := []lir.ValueT{}
	for _, instr := range block.Instrs {
		if phi, ok := instr.(*ssa.Phi); ok {
			vart, err := lowerer.value(phi)
			if err != nil {
				return err
			}
			phis = append(phis, vart)
		}
	}
	if block.Index != 0 {
		lowerer.emit(lir.NewLabel(phis...))
	} else if 0 < len(phis) {
		return lowerer.unsupported(lowerer.fn.Pos(), "phis in the entry block")
	}
	lowerer.findFusedComparisons(block)
	for _, instr := range block.Instrs {
		if err := lowerer.lowerInstruction(block, instr); err != nil {
			return err
		}
	}
	return nil
}

// A comparison used only by the If that ends its block becomes the
// branch's test.

func (lowerer *lowererT) findFusedComparisons(block *ssa.BasicBlock) {
	last := block.Instrs[len(block.Instrs)-1]
	ifInstr, ok := last.(*ssa.If)
	if !ok {
		return
	}
	binop, ok := ifInstr.Cond.(*ssa.BinOp)
	if !ok || binop.Block() != block || comparisons[binop.Op] == "" {
		return
	}
	if referrers := binop.Referrers(); referrers != nil && len(*referrers) == 1 {
		lowerer.fused[binop] = true
	}
}

var arithmetic = map[token.Token]string{
	token.ADD:     "+",
	token.SUB:     "-",
	token.MUL:     "*",
	token.QUO:     "/",
	token.REM:     "%",
	token.AND:     "&",
	token.OR:      "|",
	token.XOR:     "^",
	token.SHL:     "<<",
	token.SHR:     ">>",
	token.AND_NOT: "&^",
}

var comparisons = map[token.Token]string{
	token.EQL: "==",
	token.NEQ: "!=",
	token.LSS: "<",
	token.LEQ: "<=",
	token.GTR: ">",
	token.GEQ: ">=",
}

// Signed LIR operations that give the wrong answer for 64-bit
// unsigned values with the top bit set.

var signedOnly = map[token.Token]bool{
	token.QUO: true, token.REM: true, token.SHR: true,
	token.LSS: true, token.LEQ: true, token.GTR: true, token.GEQ: true,
}

var floatOperators = map[token.Token]bool{
	token.ADD: true, token.SUB: true, token.MUL: true, token.QUO: true,
}

func (lowerer *lowererT) lowerInstruction(block *ssa.BasicBlock, instr ssa.Instruction) error {
	switch instr := instr.(type) {
	case *ssa.Phi, *ssa.DebugRef:
		return nil
	case *ssa.BinOp:
		if lowerer.fused[instr] {
			return nil
		}
		return lowerer.lowerBinOp(instr)
	case *ssa.UnOp:
		return lowerer.lowerUnOp(instr)
	case *ssa.Convert:
		return lowerer.lowerConvert(instr)
	case *ssa.ChangeType:
		return lowerer.lowerMove(instr, instr.X)
	case *ssa.Jump:
		target := block.Succs[0]
		phiOuts, err := lowerer.phiOuts(block, 0)
		if err != nil {
			return err
		}
		lowerer.emit(lir.NewJump(lowerer.blocks[target], phiOuts...))
		return nil
	case *ssa.If:
		return lowerer.lowerIf(block, instr)
	case *ssa.Return:
		return lowerer.lowerReturn(instr)
	}
	return lowerer.unsupported(instr.Pos(), "instruction %T %s", instr, instr)
}

func (lowerer *lowererT) operands(pos token.Pos, values ...ssa.Value) ([]lir.ValueT, error) {
	result := make([]lir.ValueT, len(values))
	for i, value := range values {
		operand, err := lowerer.value(value)
		if err != nil {
			return nil, err
		}
		result[i] = operand
	}
	return result, nil
}

func (lowerer *lowererT) binaryOperator(instr *ssa.BinOp) (string, error) {
	operandType := instr.X.Type()
	isFloat := !isInteger(operandType) && !isBoolean(operandType)
	if op := comparisons[instr.Op]; op != "" {
		if isUnsigned(operandType) && narrowBits(operandType) == 0 && signedOnly[instr.Op] {
			return "", lowerer.unsupported(instr.Pos(), "64-bit unsigned %s", instr.Op)
		}
		return op, nil
	}
	op := arithmetic[instr.Op]
	switch {
	case op == "":
	case isFloat && !floatOperators[instr.Op]:
	case isUnsigned(operandType) && narrowBits(operandType) == 0 && signedOnly[instr.Op]:
		return "", lowerer.unsupported(instr.Pos(), "64-bit unsigned %s", instr.Op)
	default:
		return op, nil
	}
	return "", lowerer.unsupported(instr.Pos(), "operator %s on %s", instr.Op, operandType)
}

func isBoolean(typ types.Type) bool {
	basic, ok := typ.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsBoolean != 0
}

func (lowerer *lowererT) lowerBinOp(instr *ssa.BinOp) error {
	op, err := lowerer.binaryOperator(instr)
	if err != nil {
		return err
	}
	operands, err := lowerer.operands(instr.Pos(), instr.X, instr.Y)
	if err != nil {
		return err
	}
	if comparisons[instr.Op] != "" {
		result, err := lowerer.value(instr)
		if err != nil {
			return err
		}
		lowerer.emit(lir.NewBinary(op, result, operands[0], operands[1]))
		return nil
	}
	return lowerer.normalized(instr, func(raw lir.ValueT) *lir.InstructionT {
		return lir.NewBinary(op, raw, operands[0], operands[1])
	})
}

func (lowerer *lowererT) lowerUnOp(instr *ssa.UnOp) error {
	var op string
	switch instr.Op {
	case token.SUB:
		op = "neg"
	case token.XOR:
		op = "com"
	case token.NOT:
		op = "not"
	default:
		return lowerer.unsupported(instr.Pos(), "operator %s", instr.Op)
	}
	operands, err := lowerer.operands(instr.Pos(), instr.X)
	if err != nil {
		return err
	}
	return lowerer.normalized(instr, func(raw lir.ValueT) *lir.InstructionT {
		return lir.NewUnary(op, raw, operands[0])
	})
}

func (lowerer *lowererT) lowerConvert(instr *ssa.Convert) error {
	from := instr.X.Type()
	to := instr.Type()
	fromKind, err := lowerer.kindOf(instr.Pos(), from)
	if err != nil {
		return err
	}
	toKind, err := lowerer.kindOf(instr.Pos(), to)
	if err != nil {
		return err
	}
	operands, err := lowerer.operands(instr.Pos(), instr.X)
	if err != nil {
		return err
	}
	switch {
	case fromKind == toKind:
		return lowerer.normalized(instr, func(raw lir.ValueT) *lir.InstructionT {
			return lir.NewMove(raw, operands[0])
		})
	case fromKind == lir.IntKind:
		if isUnsigned(from) && narrowBits(from) == 0 {
			return lowerer.unsupported(instr.Pos(), "conversion from %s to %s", from, to)
		}
		return lowerer.normalized(instr, func(raw lir.ValueT) *lir.InstructionT {
			return lir.NewUnary("itof", raw, operands[0])
		})
	default:
		return lowerer.normalized(instr, func(raw lir.ValueT) *lir.InstructionT {
			return lir.NewUnary("ftoi", raw, operands[0])
		})
	}
}

func (lowerer *lowererT) lowerMove(instr ssa.Value, from ssa.Value) error {
	operands, err := lowerer.operands(instr.Pos(), from)
	if err != nil {
		return err
	}
	result, err := lowerer.value(instr)
	if err != nil {
		return err
	}
	lowerer.emit(lir.NewMove(result, operands[0]))
	return nil
}

// Emits the instruction made by 'build' and, for narrow integers, the
// truncation or sign extension of its result.  Each LIR variable is
// defined only once.

func (lowerer *lowererT) normalized(instr ssa.Value, build func(raw lir.ValueT) *lir.InstructionT) error {
	result, err := lowerer.value(instr)
	if err != nil {
		return err
	}
	bits := narrowBits(instr.Type())
	if bits == 0 {
		lowerer.emit(build(result))
		return nil
	}
	raw := lowerer.function.NewVariable(lir.IntKind)
	lowerer.emit(build(raw))
	if isUnsigned(instr.Type()) {
		mask := lir.IntConstant(int64(1)<<bits - 1)
		lowerer.emit(lir.NewBinary("&", result, raw, mask))
		return nil
	}
	shift := lir.IntConstant(int64(64 - bits))
	shifted := lowerer.function.NewVariable(lir.IntKind)
	lowerer.emit(
		lir.NewBinary("<<", shifted, raw, shift),
		lir.NewBinary(">>", result, shifted, shift))
	return nil
}

//----------------------------------------------------------------
// Control flow

// The values passed along the edge to 'block.Succs[succ]'.

func (lowerer *lowererT) phiOuts(block *ssa.BasicBlock, succ int) ([]lir.ValueT, error) {
	target := block.Succs[succ]
	edge := predecessorIndex(block, succ)
	result := []lir.ValueT{}
	for _, instr := range target.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		value, err := lowerer.value(phi.Edges[edge])
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, nil
}

// The index in the target's predecessors of the edge from 'block' to
// its 'succ'th successor.  Both targets of an If may be the same block.

func predecessorIndex(block *ssa.BasicBlock, succ int) int {
	target := block.Succs[succ]
	skip := 0
	for _, earlier := range block.Succs[:succ] {
		if earlier == target {
			skip += 1
		}
	}
	for i, pred := range target.Preds {
		if pred == block {
			if skip == 0 {
				return i
			}
			skip -= 1
		}
	}
	panic(fmt.Sprintf("%s is not a predecessor of %s", block, target))
}

// A branch cannot pass values and its moves can only go in a target
// with no other predecessors, so edges into blocks with phis or other
// predecessors get a block of their own.

func (lowerer *lowererT) edgeTarget(block *ssa.BasicBlock, succ int) (*lir.BlockT, error) {
	target := block.Succs[succ]
	phiOuts, err := lowerer.phiOuts(block, succ)
	if err != nil {
		return nil, err
	}
	if len(target.Preds) == 1 && len(phiOuts) == 0 {
		return lowerer.blocks[target], nil
	}
	name := fmt.Sprintf("b%d_%d", block.Index, target.Index)
	if succ == 1 && block.Succs[0] == target {
		name += "_2"
	}
	split := lowerer.function.AddBlock(name)
	split.Add(lir.NewLabel(), lir.NewJump(lowerer.blocks[target], phiOuts...))
	lowerer.splits[block] = append(lowerer.splits[block], split)
	return split, nil
}

func (lowerer *lowererT) lowerIf(block *ssa.BasicBlock, instr *ssa.If) error {
	ifTrue, err := lowerer.edgeTarget(block, 0)
	if err != nil {
		return err
	}
	ifFalse, err := lowerer.edgeTarget(block, 1)
	if err != nil {
		return err
	}
	if binop, ok := instr.Cond.(*ssa.BinOp); ok && lowerer.fused[binop] {
		op, err := lowerer.binaryOperator(binop)
		if err != nil {
			return err
		}
		operands, err := lowerer.operands(binop.Pos(), binop.X, binop.Y)
		if err != nil {
			return err
		}
		lowerer.emit(lir.NewBranch(op, operands[0], operands[1], ifTrue, ifFalse))
		return nil
	}
	cond, err := lowerer.value(instr.Cond)
	if err != nil {
		return err
	}
	lowerer.emit(lir.NewBranch("!=", cond, lir.IntConstant(0), ifTrue, ifFalse))
	return nil
}

func (lowerer *lowererT) lowerReturn(instr *ssa.Return) error {
	regs, err := lowerer.resultRegisters(instr.Pos(), instr.Results)
	if err != nil {
		return err
	}
	values, err := lowerer.operands(instr.Pos(), instr.Results...)
	if err != nil {
		return err
	}
	for i, reg := range regs {
		lowerer.emit(lir.NewMove(reg, values[i]))
	}
	lowerer.emit(lir.NewReturn(regs...))
	if lowerer.results == nil {
		lowerer.results = regs
	}
	return nil
}
