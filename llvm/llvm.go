// Package llvm imports functions from LLVM IR, as represented by
// github.com/llir/llvm, into the verifier's intermediate language.
//
// Only the checked fragment is accepted: void and integer types up to 64
// bits, the eight binary operations with their nsw/nuw/exact flags, ret,
// unreachable, integer constants, undef, and arguments. Any other construct
// rejects the function with ErrUnsupported and the caller treats it as
// skipped.
package llvm

import (
	"strconv"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	irtypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	alive "github.com/AbigailBuccaneer/alive2"
)

// ErrUnsupported marks a function using constructs outside the checked
// fragment.
var ErrUnsupported = errors.New("llvm: unsupported construct")

// ImportFunc translates an LLVM function into the verifier's IL.
func ImportFunc(f *ir.Func) (*alive.Function, error) {
	retType, err := importType(f.Sig.RetType)
	if err != nil {
		return nil, err
	}

	im := &importer{
		fn:     alive.NewFunction(retType, f.Name()),
		idents: make(map[value.Value]alive.Value),
	}

	for _, p := range f.Params {
		typ, err := importType(p.Typ)
		if err != nil {
			return nil, err
		}
		in := alive.NewInput(typ, im.localName(p.Name()))
		im.fn.AddInput(in)
		im.idents[p] = in
	}

	for _, b := range f.Blocks {
		bb := im.fn.BB(b.Name())
		for _, inst := range b.Insts {
			instr, err := im.importInst(inst)
			if err != nil {
				return nil, err
			}
			bb.AddInstr(instr)
		}
		term, err := im.importTerm(b.Term)
		if err != nil {
			return nil, err
		}
		bb.AddInstr(term)
	}

	return im.fn, nil
}

type importer struct {
	fn     *alive.Function
	idents map[value.Value]alive.Value
}

// localName decorates a value name with the IL's local prefix, assigning
// %0, %1, ... to anonymous values. llir/llvm reports an unnamed value's name
// as its numeric ID, so empty and all-digit names both count as anonymous.
func (im *importer) localName(name string) string {
	if _, err := strconv.ParseUint(name, 10, 64); name == "" || err == nil {
		return im.fn.NextName()
	}
	return "%" + name
}

// importType translates a type. Only void and integers of width 1..64 are
// supported.
func importType(t irtypes.Type) (alive.Type, error) {
	switch t := t.(type) {
	case *irtypes.VoidType:
		return alive.NewVoidType(), nil
	case *irtypes.IntType:
		if t.BitSize < 1 || t.BitSize > alive.WidthMax {
			return nil, errors.Wrapf(ErrUnsupported, "type %v", t)
		}
		return alive.NewIntType(uint(t.BitSize)), nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "type %v", t)
	}
}

// importOperand resolves an instruction operand: an earlier definition, an
// integer constant, or undef.
func (im *importer) importOperand(v value.Value) (alive.Value, error) {
	if av, ok := im.idents[v]; ok {
		return av, nil
	}

	switch v := v.(type) {
	case *constant.Int:
		if !v.X.IsInt64() {
			return nil, errors.Wrapf(ErrUnsupported, "constant %v", v)
		}
		typ, err := importType(v.Typ)
		if err != nil {
			return nil, err
		}
		c := alive.NewIntConst(typ, v.X.Int64())
		im.fn.AddConstant(c)
		return c, nil
	case *constant.Undef:
		typ, err := importType(v.Typ)
		if err != nil {
			return nil, err
		}
		u := alive.NewUndefValue(typ)
		im.fn.AddUndef(u)
		return u, nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "operand %v", v)
	}
}

// importInst translates a single non-terminator instruction.
func (im *importer) importInst(inst ir.Instruction) (alive.Instr, error) {
	var (
		op    alive.BinOpCode
		flags alive.BinOpFlags
		x, y  value.Value
		name  string
	)

	switch i := inst.(type) {
	case *ir.InstAdd:
		op, flags, x, y, name = alive.BinOpAdd, overflowFlags(i.OverflowFlags), i.X, i.Y, i.Name()
	case *ir.InstSub:
		op, flags, x, y, name = alive.BinOpSub, overflowFlags(i.OverflowFlags), i.X, i.Y, i.Name()
	case *ir.InstMul:
		op, flags, x, y, name = alive.BinOpMul, overflowFlags(i.OverflowFlags), i.X, i.Y, i.Name()
	case *ir.InstSDiv:
		op, flags, x, y, name = alive.BinOpSDiv, exactFlag(i.Exact), i.X, i.Y, i.Name()
	case *ir.InstUDiv:
		op, flags, x, y, name = alive.BinOpUDiv, exactFlag(i.Exact), i.X, i.Y, i.Name()
	case *ir.InstShl:
		op, flags, x, y, name = alive.BinOpShl, overflowFlags(i.OverflowFlags), i.X, i.Y, i.Name()
	case *ir.InstLShr:
		op, flags, x, y, name = alive.BinOpLShr, exactFlag(i.Exact), i.X, i.Y, i.Name()
	case *ir.InstAShr:
		op, flags, x, y, name = alive.BinOpAShr, exactFlag(i.Exact), i.X, i.Y, i.Name()
	default:
		return nil, errors.Wrapf(ErrUnsupported, "instruction %v", inst)
	}

	v := inst.(value.Value)
	typ, err := importType(v.Type())
	if err != nil {
		return nil, err
	}
	a, err := im.importOperand(x)
	if err != nil {
		return nil, err
	}
	b, err := im.importOperand(y)
	if err != nil {
		return nil, err
	}

	bo := alive.NewBinOp(typ, im.localName(name), a, b, op, flags)
	im.idents[v] = bo
	return bo, nil
}

// importTerm translates a block terminator.
func (im *importer) importTerm(term ir.Terminator) (alive.Instr, error) {
	switch t := term.(type) {
	case *ir.TermRet:
		if t.X == nil {
			return nil, errors.Wrapf(ErrUnsupported, "terminator %v", term)
		}
		typ, err := importType(t.X.Type())
		if err != nil {
			return nil, err
		}
		val, err := im.importOperand(t.X)
		if err != nil {
			return nil, err
		}
		return alive.NewReturn(typ, val), nil
	case *ir.TermUnreachable:
		return alive.NewUnreachable(), nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "terminator %v", term)
	}
}

func overflowFlags(flags []enum.OverflowFlag) alive.BinOpFlags {
	var out alive.BinOpFlags
	for _, f := range flags {
		switch f {
		case enum.OverflowFlagNSW:
			out |= alive.FlagNSW
		case enum.OverflowFlagNUW:
			out |= alive.FlagNUW
		}
	}
	return out
}

func exactFlag(exact bool) alive.BinOpFlags {
	if exact {
		return alive.FlagExact
	}
	return 0
}
