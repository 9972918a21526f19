package alive

import (
	"bytes"
	"math/bits"
	"strconv"
)

// Value represents an IL value: an input, a constant, an undef, or an
// instruction. Every value carries a type, possibly symbolic, and a textual
// name.
type Value interface {
	// Name returns the value's textual name.
	Name() string

	// Type returns the value's type.
	Type() Type

	// TypeConstraints returns the formula a valid typing must satisfy.
	TypeConstraints() Expr

	// ToSMT lowers the value in the context of a symbolic execution state.
	ToSMT(s *State) StateValue
}

// Instr represents an instruction value.
type Instr interface {
	Value
	isInstr()
}

func (*BinOp) isInstr()       {}
func (*Return) isInstr()      {}
func (*Unreachable) isInstr() {}

// StateValue pairs a value's bit-vector term with the predicate under which
// it is not poison.
type StateValue struct {
	Value     Expr
	NonPoison Expr
}

// IsValid returns true if both components are present.
func (v StateValue) IsValid() bool {
	return v.Value != nil && v.NonPoison != nil
}

// Bits returns the width of the value term.
func (v StateValue) Bits() uint {
	return ExprWidth(v.Value)
}

// Both returns the conjunction of the value's low bit and non-poison
// predicate; only meaningful for boolean values.
func (v StateValue) Both() Expr {
	return NewBinaryExpr(AND, v.Value, v.NonPoison)
}

// Eq returns true if both components are structurally equal.
func (v StateValue) Eq(other StateValue) bool {
	return CompareExpr(v.Value, other.Value) == 0 &&
		CompareExpr(v.NonPoison, other.NonPoison) == 0
}

// ZExt widens the value by amount zero bits.
func (v StateValue) ZExt(amount uint) StateValue {
	return StateValue{
		Value:     NewCastExpr(v.Value, v.Bits()+amount, false),
		NonPoison: v.NonPoison,
	}
}

// Trunc narrows the value to tobw bits.
func (v StateValue) Trunc(tobw uint) StateValue {
	return StateValue{
		Value:     NewExtractExpr(v.Value, 0, tobw),
		NonPoison: v.NonPoison,
	}
}

// ZExtOrTrunc resizes the value to tobw bits, zero-extending if it grows.
func (v StateValue) ZExtOrTrunc(tobw uint) StateValue {
	if tobw >= v.Bits() {
		return v.ZExt(tobw - v.Bits())
	}
	return v.Trunc(tobw)
}

// Concat appends other as the low bits of the value.
func (v StateValue) Concat(other StateValue) StateValue {
	return StateValue{
		Value:     NewConcatExpr(v.Value, other.Value),
		NonPoison: NewBinaryExpr(AND, v.NonPoison, other.NonPoison),
	}
}

// Subst applies the replacements to both components.
func (v StateValue) Subst(repls []Replacement) StateValue {
	return StateValue{
		Value:     SubstExpr(v.Value, repls),
		NonPoison: SubstExpr(v.NonPoison, repls),
	}
}

// MkIf selects between two state values on a boolean condition.
func MkIf(cond Expr, then, els StateValue) StateValue {
	return StateValue{
		Value:     NewIteExpr(cond, then.Value, els.Value),
		NonPoison: NewIteExpr(cond, then.NonPoison, els.NonPoison),
	}
}

// Input represents a function argument.
type Input struct {
	typ  Type
	name string
}

// NewInput returns a new instance of Input.
func NewInput(typ Type, name string) *Input {
	assert(name != "", "input name cannot be empty")
	typ.SetName(name)
	return &Input{typ: typ, name: name}
}

// Name returns the value's textual name.
func (v *Input) Name() string { return v.name }

// Type returns the value's type.
func (v *Input) Type() Type { return v.typ }

// TypeConstraints returns the formula a valid typing must satisfy.
func (v *Input) TypeConstraints() Expr {
	return v.typ.TypeConstraints()
}

// ToSMT lowers the input to a free variable named after it. Inputs in the
// source and target sharing a name lower to the same variable, which is what
// correlates the two functions' executions.
func (v *Input) ToSMT(s *State) StateValue {
	return StateValue{
		Value:     NewVarExpr(v.name, v.typ.Bits()),
		NonPoison: NewBoolConstantExpr(true),
	}
}

// String returns the value's name.
func (v *Input) String() string { return v.name }

// IntConst represents an integer literal.
type IntConst struct {
	typ Type
	val int64
}

// NewIntConst returns a new instance of IntConst.
func NewIntConst(typ Type, val int64) *IntConst {
	if typ, ok := typ.(*SymbolicType); ok {
		typ.EnforceIntType()
	}
	typ.SetName(strconv.FormatInt(val, 10))
	return &IntConst{typ: typ, val: val}
}

// Name returns the literal in decimal.
func (v *IntConst) Name() string { return strconv.FormatInt(v.val, 10) }

// Type returns the value's type.
func (v *IntConst) Type() Type { return v.typ }

// Int returns the literal value.
func (v *IntConst) Int() int64 { return v.val }

// TypeConstraints requires an integer type wide enough for the literal.
func (v *IntConst) TypeConstraints() Expr {
	c := v.typ.TypeConstraints()
	needed := NewConstantExpr(uint64(literalBits(v.val)), bwVarBits)
	switch typ := v.typ.(type) {
	case *IntType:
		return NewBinaryExpr(AND, c, NewBinaryExpr(ULE, needed, typ.sizeVar()))
	case *SymbolicType:
		return NewBinaryExpr(AND, c, NewBinaryExpr(ULE, needed, typ.i.sizeVar()))
	default:
		return c
	}
}

// ToSMT lowers the literal to a constant of the type's width.
func (v *IntConst) ToSMT(s *State) StateValue {
	return StateValue{
		Value:     NewConstantExpr(uint64(v.val), v.typ.Bits()),
		NonPoison: NewBoolConstantExpr(true),
	}
}

// String returns the value's name.
func (v *IntConst) String() string { return v.Name() }

// literalBits returns the smallest width that can represent the literal.
func literalBits(val int64) uint {
	if val >= 0 {
		n := uint(bits.Len64(uint64(val)))
		if n == 0 {
			n = 1
		}
		return n
	}
	return uint(bits.Len64(^uint64(val))) + 1
}

// UndefValue represents an undef constant. Each symbolic execution binds it
// to a fresh universally-quantified variable.
type UndefValue struct {
	typ Type
}

// NewUndefValue returns a new instance of UndefValue.
func NewUndefValue(typ Type) *UndefValue {
	if typ, ok := typ.(*SymbolicType); ok {
		typ.EnforceIntType()
	}
	typ.SetName("undef")
	return &UndefValue{typ: typ}
}

// Name returns the value's textual name.
func (v *UndefValue) Name() string { return "undef" }

// Type returns the value's type.
func (v *UndefValue) Type() Type { return v.typ }

// TypeConstraints returns the formula a valid typing must satisfy.
func (v *UndefValue) TypeConstraints() Expr {
	return v.typ.TypeConstraints()
}

// ToSMT lowers the undef to a fresh quantified variable.
func (v *UndefValue) ToSMT(s *State) StateValue {
	return StateValue{
		Value:     s.FreshQuantVar(v.typ.Bits()),
		NonPoison: NewBoolConstantExpr(true),
	}
}

// String returns the value's name.
func (v *UndefValue) String() string { return v.Name() }

// BinOpCode identifies a binary operation.
type BinOpCode int

// Binary operations.
const (
	BinOpAdd BinOpCode = iota
	BinOpSub
	BinOpMul
	BinOpSDiv
	BinOpUDiv
	BinOpShl
	BinOpLShr
	BinOpAShr
)

var binOpNames = [...]string{
	BinOpAdd:  "add",
	BinOpSub:  "sub",
	BinOpMul:  "mul",
	BinOpSDiv: "sdiv",
	BinOpUDiv: "udiv",
	BinOpShl:  "shl",
	BinOpLShr: "lshr",
	BinOpAShr: "ashr",
}

// String returns the string representation of the operation.
func (op BinOpCode) String() string {
	if op >= 0 && int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return "BinOpCode<" + strconv.Itoa(int(op)) + ">"
}

// BinOpFlags is a bitset of instruction flags.
type BinOpFlags uint

// Instruction flags. NSW/NUW/Exact contribute to the poison predicate of the
// result, never to UB.
const (
	FlagNSW BinOpFlags = 1 << iota
	FlagNUW
	FlagExact
)

// String returns the flags in printed order, with a trailing space.
func (f BinOpFlags) String() string {
	var buf bytes.Buffer
	if f&FlagNSW != 0 {
		buf.WriteString("nsw ")
	}
	if f&FlagNUW != 0 {
		buf.WriteString("nuw ")
	}
	if f&FlagExact != 0 {
		buf.WriteString("exact ")
	}
	return buf.String()
}

// BinOp represents a binary instruction.
type BinOp struct {
	typ   Type
	name  string
	a, b  Value
	op    BinOpCode
	flags BinOpFlags
}

// NewBinOp returns a new instance of BinOp.
func NewBinOp(typ Type, name string, a, b Value, op BinOpCode, flags BinOpFlags) *BinOp {
	assert(name != "", "instruction name cannot be empty")
	if typ, ok := typ.(*SymbolicType); ok {
		typ.EnforceIntType()
	}
	typ.SetName(name)
	return &BinOp{typ: typ, name: name, a: a, b: b, op: op, flags: flags}
}

// Name returns the value's textual name.
func (v *BinOp) Name() string { return v.name }

// Type returns the value's type.
func (v *BinOp) Type() Type { return v.typ }

// Op returns the operation code.
func (v *BinOp) Op() BinOpCode { return v.op }

// Flags returns the instruction flags.
func (v *BinOp) Flags() BinOpFlags { return v.flags }

// Operands returns the two operand values.
func (v *BinOp) Operands() (a, b Value) { return v.a, v.b }

// TypeConstraints requires an integer result type shared by both operands.
func (v *BinOp) TypeConstraints() Expr {
	c := v.typ.TypeConstraints()
	c = NewBinaryExpr(AND, c, TypeEq(v.typ, v.a.Type()))
	c = NewBinaryExpr(AND, c, TypeEq(v.typ, v.b.Type()))
	return c
}

// ToSMT lowers the instruction. Flags narrow the non-poison predicate;
// division and shift preconditions narrow the state's UB predicate.
func (v *BinOp) ToSMT(s *State) StateValue {
	a := s.Eval(v.a)
	b := s.Eval(v.b)
	w := v.typ.Bits()
	np := NewBinaryExpr(AND, a.NonPoison, b.NonPoison)

	var val Expr
	switch v.op {
	case BinOpAdd:
		val = NewBinaryExpr(ADD, a.Value, b.Value)
		if v.flags&FlagNSW != 0 {
			np = NewBinaryExpr(AND, np, addNoSWrap(a.Value, b.Value, val, w))
		}
		if v.flags&FlagNUW != 0 {
			np = NewBinaryExpr(AND, np, addNoUWrap(a.Value, b.Value, val, w))
		}
	case BinOpSub:
		val = NewBinaryExpr(SUB, a.Value, b.Value)
		if v.flags&FlagNSW != 0 {
			np = NewBinaryExpr(AND, np, subNoSWrap(a.Value, b.Value, val, w))
		}
		if v.flags&FlagNUW != 0 {
			// No unsigned wrap iff no borrow.
			np = NewBinaryExpr(AND, np, NewBinaryExpr(UGE, a.Value, b.Value))
		}
	case BinOpMul:
		val = NewBinaryExpr(MUL, a.Value, b.Value)
		if v.flags&FlagNSW != 0 {
			np = NewBinaryExpr(AND, np, mulNoSWrap(a.Value, b.Value, val, w))
		}
		if v.flags&FlagNUW != 0 {
			np = NewBinaryExpr(AND, np, mulNoUWrap(a.Value, b.Value, val, w))
		}
	case BinOpSDiv:
		val = NewBinaryExpr(SDIV, a.Value, b.Value)
		s.AddUB(NewBinaryExpr(NE, b.Value, NewConstantExpr(0, w)))
		s.AddUB(NewNotExpr(NewBinaryExpr(AND,
			NewBinaryExpr(EQ, a.Value, NewConstantExpr(intMin(w), w)),
			NewBinaryExpr(EQ, b.Value, NewConstantExpr(bitmask(w), w)))))
		if v.flags&FlagExact != 0 {
			np = NewBinaryExpr(AND, np, divExact(val, a.Value, b.Value))
		}
	case BinOpUDiv:
		val = NewBinaryExpr(UDIV, a.Value, b.Value)
		s.AddUB(NewBinaryExpr(NE, b.Value, NewConstantExpr(0, w)))
		if v.flags&FlagExact != 0 {
			np = NewBinaryExpr(AND, np, divExact(val, a.Value, b.Value))
		}
	case BinOpShl:
		val = NewBinaryExpr(SHL, a.Value, b.Value)
		s.AddUB(NewBinaryExpr(ULT, b.Value, NewConstantExpr(uint64(w), w)))
		if v.flags&FlagNSW != 0 {
			np = NewBinaryExpr(AND, np,
				NewBinaryExpr(EQ, NewBinaryExpr(ASHR, val, b.Value), a.Value))
		}
		if v.flags&FlagNUW != 0 {
			np = NewBinaryExpr(AND, np,
				NewBinaryExpr(EQ, NewBinaryExpr(LSHR, val, b.Value), a.Value))
		}
	case BinOpLShr:
		val = NewBinaryExpr(LSHR, a.Value, b.Value)
		s.AddUB(NewBinaryExpr(ULT, b.Value, NewConstantExpr(uint64(w), w)))
		if v.flags&FlagExact != 0 {
			np = NewBinaryExpr(AND, np, shrExact(val, a.Value, b.Value))
		}
	case BinOpAShr:
		val = NewBinaryExpr(ASHR, a.Value, b.Value)
		s.AddUB(NewBinaryExpr(ULT, b.Value, NewConstantExpr(uint64(w), w)))
		if v.flags&FlagExact != 0 {
			np = NewBinaryExpr(AND, np, shrExact(val, a.Value, b.Value))
		}
	default:
		panic("unreachable")
	}

	return StateValue{Value: val, NonPoison: np}
}

// String returns the printed instruction.
func (v *BinOp) String() string {
	var buf bytes.Buffer
	buf.WriteString(v.name)
	buf.WriteString(" = ")
	buf.WriteString(v.op.String())
	buf.WriteRune(' ')
	buf.WriteString(v.flags.String())
	if t := v.typ.String(); t != "" {
		buf.WriteString(t)
		buf.WriteRune(' ')
	}
	buf.WriteString(v.a.Name())
	buf.WriteString(", ")
	buf.WriteString(v.b.Name())
	return buf.String()
}

// addNoSWrap returns the predicate that a+b does not wrap as signed.
func addNoSWrap(a, b, sum Expr, w uint) Expr {
	return NewBinaryExpr(EQ,
		NewBinaryExpr(ADD, NewCastExpr(a, w+1, true), NewCastExpr(b, w+1, true)),
		NewCastExpr(sum, w+1, true))
}

// addNoUWrap returns the predicate that a+b does not wrap as unsigned.
func addNoUWrap(a, b, sum Expr, w uint) Expr {
	return NewBinaryExpr(EQ,
		NewBinaryExpr(ADD, NewCastExpr(a, w+1, false), NewCastExpr(b, w+1, false)),
		NewCastExpr(sum, w+1, false))
}

// subNoSWrap returns the predicate that a-b does not wrap as signed.
func subNoSWrap(a, b, diff Expr, w uint) Expr {
	return NewBinaryExpr(EQ,
		NewBinaryExpr(SUB, NewCastExpr(a, w+1, true), NewCastExpr(b, w+1, true)),
		NewCastExpr(diff, w+1, true))
}

// mulNoSWrap returns the predicate that a*b does not wrap as signed.
func mulNoSWrap(a, b, prod Expr, w uint) Expr {
	return NewBinaryExpr(EQ,
		NewBinaryExpr(MUL, NewCastExpr(a, 2*w, true), NewCastExpr(b, 2*w, true)),
		NewCastExpr(prod, 2*w, true))
}

// mulNoUWrap returns the predicate that a*b does not wrap as unsigned.
func mulNoUWrap(a, b, prod Expr, w uint) Expr {
	return NewBinaryExpr(EQ,
		NewBinaryExpr(MUL, NewCastExpr(a, 2*w, false), NewCastExpr(b, 2*w, false)),
		NewCastExpr(prod, 2*w, false))
}

// divExact returns the predicate that the division left no remainder.
func divExact(quot, a, b Expr) Expr {
	return NewBinaryExpr(EQ, NewBinaryExpr(MUL, quot, b), a)
}

// shrExact returns the predicate that the shift dropped no set bits.
func shrExact(res, a, b Expr) Expr {
	return NewBinaryExpr(EQ, NewBinaryExpr(SHL, res, b), a)
}

// Return represents a return instruction.
type Return struct {
	typ Type
	val Value
}

// NewReturn returns a new instance of Return.
func NewReturn(typ Type, val Value) *Return {
	typ.SetName("return")
	return &Return{typ: typ, val: val}
}

// Name returns the value's textual name.
func (v *Return) Name() string { return "return" }

// Type returns the value's type.
func (v *Return) Type() Type { return v.typ }

// Val returns the returned operand.
func (v *Return) Val() Value { return v.val }

// TypeConstraints requires the return type to match the operand's type.
func (v *Return) TypeConstraints() Expr {
	return NewBinaryExpr(AND, v.typ.TypeConstraints(), TypeEq(v.typ, v.val.Type()))
}

// ToSMT captures the function's return value and domain.
func (v *Return) ToSMT(s *State) StateValue {
	val := s.Eval(v.val)
	s.AddReturn(val)
	return val
}

// String returns the printed instruction.
func (v *Return) String() string {
	if t := v.typ.String(); t != "" {
		return "ret " + t + " " + v.val.Name()
	}
	return "ret " + v.val.Name()
}

// Unreachable represents an unreachable instruction. Reaching it is UB.
type Unreachable struct{}

// NewUnreachable returns a new instance of Unreachable.
func NewUnreachable() *Unreachable { return &Unreachable{} }

// Name returns the value's textual name.
func (v *Unreachable) Name() string { return "unreachable" }

// Type returns the value's type.
func (v *Unreachable) Type() Type { return &VoidType{} }

// TypeConstraints returns the formula a valid typing must satisfy.
func (v *Unreachable) TypeConstraints() Expr { return NewBoolConstantExpr(true) }

// ToSMT poisons the execution's UB predicate.
func (v *Unreachable) ToSMT(s *State) StateValue {
	s.AddUB(NewBoolConstantExpr(false))
	return StateValue{}
}

// String returns the printed instruction.
func (v *Unreachable) String() string { return "unreachable" }
