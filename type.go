package alive

import (
	"strconv"
)

// Widths of the SMT variables that encode an unresolved type: a 3-bit tag
// selecting the case and a 10-bit bandwidth for integers.
const (
	typeVarBits = 3
	bwVarBits   = 10
)

// TypeNum enumerates the cases a symbolic type may resolve to.
type TypeNum uint

// Symbolic type cases.
const (
	TypeInt TypeNum = iota
	TypeFloat
	TypePtr
	TypeArray
	TypeVector
	TypeUndefined
)

// Type represents an IL type, possibly not yet resolved to a concrete case.
type Type interface {
	// String returns the printed form of the type. Unresolved types print
	// as the empty string.
	String() string

	// Bits returns the bit width of the type. Only valid once the type is
	// concrete.
	Bits() uint

	// TypeConstraints returns the formula that must hold for any valid
	// concretization of the type.
	TypeConstraints() Expr

	// Fixup commits the type to the concrete form chosen by the model.
	Fixup(m *Model)

	// Dup returns a deep copy of the type.
	Dup() Type

	// SetName sets the prefix used for the type's SMT variables.
	SetName(name string)
}

// VoidType represents the void type.
type VoidType struct{}

// NewVoidType returns a new instance of VoidType.
func NewVoidType() *VoidType { return &VoidType{} }

// String returns the string representation of the type.
func (t *VoidType) String() string { return "void" }

// Bits panics; void has no width.
func (t *VoidType) Bits() uint {
	panic("void type has no width")
}

// TypeConstraints returns the formula constraining the type.
func (t *VoidType) TypeConstraints() Expr { return NewBoolConstantExpr(true) }

// Fixup commits the type; void is already concrete.
func (t *VoidType) Fixup(m *Model) {}

// Dup returns a deep copy of the type.
func (t *VoidType) Dup() Type { return &VoidType{} }

// SetName sets the SMT variable prefix; void has no variables.
func (t *VoidType) SetName(name string) {}

// IntType represents an integer type. If defined is false the width is left
// to the solver as a 10-bit variable.
type IntType struct {
	name     string
	bitwidth uint
	defined  bool
}

// NewIntType returns a concrete integer type of the given width.
func NewIntType(bits uint) *IntType {
	assert(bits >= 1 && bits <= WidthMax, "invalid integer width: %d", bits)
	return &IntType{bitwidth: bits, defined: true}
}

// String returns the string representation of the type.
func (t *IntType) String() string {
	if !t.defined {
		return ""
	}
	return "i" + strconv.Itoa(int(t.bitwidth))
}

// Bits returns the bit width of the type.
func (t *IntType) Bits() uint {
	assert(t.bitwidth >= 1, "integer width not resolved")
	return t.bitwidth
}

// sizeVar returns the SMT term for the type's width.
func (t *IntType) sizeVar() Expr {
	if t.defined {
		return NewConstantExpr(uint64(t.bitwidth), bwVarBits)
	}
	return t.sizeVarVar()
}

func (t *IntType) sizeVarVar() *VarExpr {
	assert(t.name != "", "integer type has no variable prefix")
	return NewVarExpr(t.name+"_bw", bwVarBits)
}

// TypeConstraints limits integers to widths 1 through 64.
func (t *IntType) TypeConstraints() Expr {
	bw := t.sizeVar()
	return NewBinaryExpr(AND,
		NewBinaryExpr(NE, bw, NewConstantExpr(0, bwVarBits)),
		NewBinaryExpr(ULE, bw, NewConstantExpr(WidthMax, bwVarBits)))
}

// Fixup commits the width chosen by the model.
func (t *IntType) Fixup(m *Model) {
	if !t.defined {
		t.bitwidth = uint(m.GetUint(t.sizeVarVar()))
	}
}

// Dup returns a deep copy of the type.
func (t *IntType) Dup() Type {
	dup := *t
	return &dup
}

// SetName sets the SMT variable prefix.
func (t *IntType) SetName(name string) { t.name = name }

// FloatType represents a floating-point type. Only reserved: its constraint
// is unsatisfiable, so any transformation mentioning it has no valid typing.
type FloatType struct{}

// String returns the string representation of the type.
func (t *FloatType) String() string { return "float" }

// Bits panics; floats are not supported.
func (t *FloatType) Bits() uint { panic("float type is not supported") }

// TypeConstraints returns the formula constraining the type.
func (t *FloatType) TypeConstraints() Expr { return NewBoolConstantExpr(false) }

// Fixup commits the type.
func (t *FloatType) Fixup(m *Model) {}

// Dup returns a deep copy of the type.
func (t *FloatType) Dup() Type { return &FloatType{} }

// SetName sets the SMT variable prefix.
func (t *FloatType) SetName(name string) {}

// PtrType represents a pointer type. Reserved, unsupported.
type PtrType struct{}

// String returns the string representation of the type.
func (t *PtrType) String() string { return "ptr" }

// Bits panics; pointers are not supported.
func (t *PtrType) Bits() uint { panic("pointer type is not supported") }

// TypeConstraints returns the formula constraining the type.
func (t *PtrType) TypeConstraints() Expr { return NewBoolConstantExpr(false) }

// Fixup commits the type.
func (t *PtrType) Fixup(m *Model) {}

// Dup returns a deep copy of the type.
func (t *PtrType) Dup() Type { return &PtrType{} }

// SetName sets the SMT variable prefix.
func (t *PtrType) SetName(name string) {}

// ArrayType represents an array type. Reserved, unsupported.
type ArrayType struct{}

// String returns the string representation of the type.
func (t *ArrayType) String() string { return "array" }

// Bits panics; arrays are not supported.
func (t *ArrayType) Bits() uint { panic("array type is not supported") }

// TypeConstraints returns the formula constraining the type.
func (t *ArrayType) TypeConstraints() Expr { return NewBoolConstantExpr(false) }

// Fixup commits the type.
func (t *ArrayType) Fixup(m *Model) {}

// Dup returns a deep copy of the type.
func (t *ArrayType) Dup() Type { return &ArrayType{} }

// SetName sets the SMT variable prefix.
func (t *ArrayType) SetName(name string) {}

// VectorType represents a vector type. Reserved, unsupported.
type VectorType struct{}

// String returns the string representation of the type.
func (t *VectorType) String() string { return "vector" }

// Bits panics; vectors are not supported.
func (t *VectorType) Bits() uint { panic("vector type is not supported") }

// TypeConstraints returns the formula constraining the type.
func (t *VectorType) TypeConstraints() Expr { return NewBoolConstantExpr(false) }

// Fixup commits the type.
func (t *VectorType) Fixup(m *Model) {}

// Dup returns a deep copy of the type.
func (t *VectorType) Dup() Type { return &VectorType{} }

// SetName sets the SMT variable prefix.
func (t *VectorType) SetName(name string) {}

// SymbolicType represents a type left to the solver. It carries a bitset of
// enabled cases and one embedded instance of each concrete case; the chosen
// case and its parameters are read back from the typing model.
type SymbolicType struct {
	name    string // display name, if any
	prefix  string // SMT variable prefix
	enabled uint
	typ     TypeNum

	i IntType
	f FloatType
	p PtrType
	a ArrayType
	v VectorType
}

// NewSymbolicType returns a symbolic type with every case enabled.
func NewSymbolicType() *SymbolicType {
	return &SymbolicType{
		enabled: 1<<TypeInt | 1<<TypeFloat | 1<<TypePtr | 1<<TypeArray | 1<<TypeVector,
		typ:     TypeUndefined,
	}
}

// typeVar returns the 3-bit SMT variable selecting the case.
func (t *SymbolicType) typeVar() *VarExpr {
	assert(t.prefix != "", "symbolic type has no variable prefix")
	return NewVarExpr(t.prefix+"_type", typeVarBits)
}

// isCase returns the formula selecting a given case, or false if disabled.
func (t *SymbolicType) isCase(n TypeNum) Expr {
	if t.enabled&(1<<n) == 0 {
		return NewBoolConstantExpr(false)
	}
	return NewBinaryExpr(EQ, t.typeVar(), NewConstantExpr(uint64(n), typeVarBits))
}

// String returns the string representation of the type.
func (t *SymbolicType) String() string {
	if t.name != "" {
		return t.name
	}
	switch t.typ {
	case TypeInt:
		return t.i.String()
	case TypeFloat:
		return t.f.String()
	case TypePtr:
		return t.p.String()
	case TypeArray:
		return t.a.String()
	case TypeVector:
		return t.v.String()
	default:
		return ""
	}
}

// Bits returns the bit width of the resolved case.
func (t *SymbolicType) Bits() uint {
	switch t.typ {
	case TypeInt:
		return t.i.Bits()
	case TypeFloat:
		return t.f.Bits()
	case TypePtr:
		return t.p.Bits()
	case TypeArray:
		return t.a.Bits()
	case TypeVector:
		return t.v.Bits()
	default:
		panic("symbolic type not resolved")
	}
}

// TypeConstraints returns the disjunction over the enabled cases.
func (t *SymbolicType) TypeConstraints() Expr {
	c := Expr(NewBoolConstantExpr(false))
	c = NewBinaryExpr(OR, c, NewBinaryExpr(AND, t.isCase(TypeInt), t.i.TypeConstraints()))
	c = NewBinaryExpr(OR, c, NewBinaryExpr(AND, t.isCase(TypeFloat), t.f.TypeConstraints()))
	c = NewBinaryExpr(OR, c, NewBinaryExpr(AND, t.isCase(TypePtr), t.p.TypeConstraints()))
	c = NewBinaryExpr(OR, c, NewBinaryExpr(AND, t.isCase(TypeArray), t.a.TypeConstraints()))
	c = NewBinaryExpr(OR, c, NewBinaryExpr(AND, t.isCase(TypeVector), t.v.TypeConstraints()))
	return c
}

// Fixup commits the case and parameters chosen by the model.
func (t *SymbolicType) Fixup(m *Model) {
	n := TypeNum(m.GetUint(t.typeVar()))
	assert(n <= TypeVector, "model chose an invalid type case: %d", n)
	assert(t.enabled&(1<<n) != 0, "model chose a disabled type case: %d", n)
	t.typ = n

	switch t.typ {
	case TypeInt:
		t.i.Fixup(m)
	case TypeFloat:
		t.f.Fixup(m)
	case TypePtr:
		t.p.Fixup(m)
	case TypeArray:
		t.a.Fixup(m)
	case TypeVector:
		t.v.Fixup(m)
	}
}

// EnforceIntType restricts the symbolic type to the integer case.
func (t *SymbolicType) EnforceIntType() {
	t.enabled &= 1 << TypeInt
}

// Dup returns a deep copy of the type.
func (t *SymbolicType) Dup() Type {
	dup := *t
	return &dup
}

// SetName sets the SMT variable prefix on the type and every embedded case.
// An explicit display name takes precedence over the assigned one.
func (t *SymbolicType) SetName(name string) {
	if t.name != "" {
		name = t.name
	}
	t.prefix = name
	t.i.SetName(name)
	t.f.SetName(name)
	t.p.SetName(name)
	t.a.SetName(name)
	t.v.SetName(name)
}

// TypeEq returns the formula under which two types resolve identically.
func TypeEq(a, b Type) Expr {
	if a == b {
		return NewBoolConstantExpr(true)
	}

	switch a := a.(type) {
	case *VoidType:
		if _, ok := b.(*VoidType); ok {
			return NewBoolConstantExpr(true)
		}
		return NewBoolConstantExpr(false)
	case *IntType:
		switch b := b.(type) {
		case *IntType:
			return NewBinaryExpr(EQ, a.sizeVar(), b.sizeVar())
		case *SymbolicType:
			return b.eqConcreteInt(a)
		default:
			return NewBoolConstantExpr(false)
		}
	case *SymbolicType:
		return a.eqType(b)
	default:
		// Float, pointer, array and vector types never compare equal;
		// their constraints are unsatisfiable anyway.
		return NewBoolConstantExpr(false)
	}
}

// eqConcreteInt returns the formula under which t resolves to the given
// integer type.
func (t *SymbolicType) eqConcreteInt(b *IntType) Expr {
	return NewBinaryExpr(AND, t.isCase(TypeInt),
		NewBinaryExpr(EQ, t.i.sizeVar(), b.sizeVar()))
}

// eqType returns the formula under which t and b resolve identically.
func (t *SymbolicType) eqType(b Type) Expr {
	switch b := b.(type) {
	case *IntType:
		return t.eqConcreteInt(b)
	case *SymbolicType:
		// Only the integer case can compare equal; the other cases'
		// equalities are all false.
		c := NewBinaryExpr(AND,
			NewBinaryExpr(AND, t.isCase(TypeInt), b.isCase(TypeInt)),
			NewBinaryExpr(EQ, t.i.sizeVar(), b.i.sizeVar()))
		return NewBinaryExpr(AND, c, NewBinaryExpr(EQ, t.typeVar(), b.typeVar()))
	default:
		return NewBoolConstantExpr(false)
	}
}
