package alive_test

import (
	"testing"

	alive "github.com/AbigailBuccaneer/alive2"
)

func TestIntType(t *testing.T) {
	t.Run("Defined", func(t *testing.T) {
		typ := alive.NewIntType(8)
		if got, exp := typ.Bits(), uint(8); got != exp {
			t.Fatalf("Bits()=%d, expected %d", got, exp)
		} else if s := typ.String(); s != "i8" {
			t.Fatalf("unexpected string: %s", s)
		} else if c := typ.TypeConstraints(); !alive.IsConstantTrue(c) {
			t.Fatalf("expected constant constraints, got %s", c)
		}
	})

	t.Run("FixupFromModel", func(t *testing.T) {
		// An input with a symbolic type resolves through the model of
		// its type variables.
		sym := alive.NewSymbolicType()
		alive.NewInput(sym, "%a")

		if c := sym.TypeConstraints(); alive.IsConstantExpr(c) {
			t.Fatalf("expected symbolic constraints, got %s", c)
		}

		m := alive.NewModel(map[string]*alive.ConstantExpr{
			"%a_type": alive.NewConstantExpr(0, 3),
			"%a_bw":   alive.NewConstantExpr(8, 10),
		})
		sym.Fixup(m)
		if got, exp := sym.Bits(), uint(8); got != exp {
			t.Fatalf("Bits()=%d, expected %d", got, exp)
		}
	})
}

func TestSymbolicType_EnforceIntType(t *testing.T) {
	sym := alive.NewSymbolicType()
	sym.SetName("%x")
	sym.EnforceIntType()

	m := alive.NewModel(map[string]*alive.ConstantExpr{
		"%x_type": alive.NewConstantExpr(0, 3),
		"%x_bw":   alive.NewConstantExpr(32, 10),
	})
	sym.Fixup(m)
	if got, exp := sym.Bits(), uint(32); got != exp {
		t.Fatalf("Bits()=%d, expected %d", got, exp)
	}
}

func TestTypeEq(t *testing.T) {
	t.Run("IntInt", func(t *testing.T) {
		if c := alive.TypeEq(alive.NewIntType(8), alive.NewIntType(8)); !alive.IsConstantTrue(c) {
			t.Fatalf("expected true, got %s", c)
		}
	})
	t.Run("IntIntMismatch", func(t *testing.T) {
		if c := alive.TypeEq(alive.NewIntType(8), alive.NewIntType(16)); !alive.IsConstantFalse(c) {
			t.Fatalf("expected false, got %s", c)
		}
	})
	t.Run("VoidVoid", func(t *testing.T) {
		if c := alive.TypeEq(alive.NewVoidType(), alive.NewVoidType()); !alive.IsConstantTrue(c) {
			t.Fatalf("expected true, got %s", c)
		}
	})
	t.Run("SymbolicInt", func(t *testing.T) {
		sym := alive.NewSymbolicType()
		sym.SetName("%x")
		if c := alive.TypeEq(sym, alive.NewIntType(8)); alive.IsConstantExpr(c) {
			t.Fatalf("expected symbolic formula, got %s", c)
		}
	})
	t.Run("SymbolicVoid", func(t *testing.T) {
		sym := alive.NewSymbolicType()
		sym.SetName("%x")
		if c := alive.TypeEq(sym, alive.NewVoidType()); !alive.IsConstantFalse(c) {
			t.Fatalf("expected false, got %s", c)
		}
	})
}

func TestType_Dup(t *testing.T) {
	sym := alive.NewSymbolicType()
	sym.SetName("%x")
	dup := sym.Dup().(*alive.SymbolicType)
	dup.SetName("%y")

	m := alive.NewModel(map[string]*alive.ConstantExpr{
		"%x_type": alive.NewConstantExpr(0, 3),
		"%x_bw":   alive.NewConstantExpr(8, 10),
		"%y_type": alive.NewConstantExpr(0, 3),
		"%y_bw":   alive.NewConstantExpr(16, 10),
	})
	sym.Fixup(m)
	dup.Fixup(m)
	if got, exp := sym.Bits(), uint(8); got != exp {
		t.Fatalf("Bits()=%d, expected %d", got, exp)
	}
	if got, exp := dup.Bits(), uint(16); got != exp {
		t.Fatalf("dup Bits()=%d, expected %d", got, exp)
	}
}
