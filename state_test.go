package alive_test

import (
	"strings"
	"testing"

	alive "github.com/AbigailBuccaneer/alive2"
)

// buildUnaryFn builds "%x = <op> [flags] i8 %a, %a; ret i8 %x".
func buildUnaryFn(op alive.BinOpCode, flags alive.BinOpFlags) (*alive.Function, *alive.BinOp) {
	f := alive.NewFunction(alive.NewIntType(8), "f")
	a := alive.NewInput(alive.NewIntType(8), "%a")
	f.AddInput(a)

	bb := f.BB("")
	x := alive.NewBinOp(alive.NewIntType(8), "%x", a, a, op, flags)
	bb.AddInstr(x)
	bb.AddInstr(alive.NewReturn(alive.NewIntType(8), x))
	return f, x
}

func TestState_Exec(t *testing.T) {
	t.Run("Return", func(t *testing.T) {
		f, x := buildUnaryFn(alive.BinOpAdd, 0)
		s := alive.NewState(f, &alive.VarIDs{})
		s.Exec()

		if !s.FnReturned() {
			t.Fatal("expected function to return")
		}
		if dom := s.ReturnDomain(); !alive.IsConstantTrue(dom) {
			t.Fatalf("unexpected return domain: %s", dom)
		}

		val, ok := s.At(x)
		if !ok {
			t.Fatal("binding for x not found")
		} else if expr, ok := val.Val.Value.(*alive.BinaryExpr); !ok || expr.Op != alive.ADD {
			t.Fatalf("unexpected value: %s", val.Val.Value)
		} else if !alive.IsConstantTrue(val.Val.NonPoison) {
			t.Fatalf("unexpected non-poison: %s", val.Val.NonPoison)
		}
	})

	t.Run("NSWNarrowsPoison", func(t *testing.T) {
		f, _ := buildUnaryFn(alive.BinOpAdd, alive.FlagNSW)
		s := alive.NewState(f, &alive.VarIDs{})
		s.Exec()

		if np := s.ReturnVal().Val.NonPoison; alive.IsConstantExpr(np) {
			t.Fatalf("expected symbolic non-poison, got %s", np)
		}
		// Flags never narrow UB.
		if dom := s.ReturnDomain(); !alive.IsConstantTrue(dom) {
			t.Fatalf("unexpected return domain: %s", dom)
		}
	})

	t.Run("SDivNarrowsUB", func(t *testing.T) {
		f, _ := buildUnaryFn(alive.BinOpSDiv, 0)
		s := alive.NewState(f, &alive.VarIDs{})
		s.Exec()

		if dom := s.ReturnDomain(); alive.IsConstantExpr(dom) {
			t.Fatalf("expected symbolic return domain, got %s", dom)
		}
	})

	t.Run("ShiftInBoundsFolds", func(t *testing.T) {
		// A constant in-bounds shift amount leaves the domain constant.
		f := alive.NewFunction(alive.NewIntType(8), "f")
		a := alive.NewInput(alive.NewIntType(8), "%a")
		f.AddInput(a)
		c := alive.NewIntConst(alive.NewIntType(8), 3)
		f.AddConstant(c)

		bb := f.BB("")
		x := alive.NewBinOp(alive.NewIntType(8), "%x", a, c, alive.BinOpShl, 0)
		bb.AddInstr(x)
		bb.AddInstr(alive.NewReturn(alive.NewIntType(8), x))

		s := alive.NewState(f, &alive.VarIDs{})
		s.Exec()
		if dom := s.ReturnDomain(); !alive.IsConstantTrue(dom) {
			t.Fatalf("unexpected return domain: %s", dom)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		f := alive.NewFunction(alive.NewVoidType(), "f")
		f.BB("").AddInstr(alive.NewUnreachable())

		s := alive.NewState(f, &alive.VarIDs{})
		s.Exec()
		if s.FnReturned() {
			t.Fatal("expected function not to return")
		}
		if dom := s.Domain(); !alive.IsConstantFalse(dom) {
			t.Fatalf("unexpected domain: %s", dom)
		}
	})

	t.Run("UndefQuantifies", func(t *testing.T) {
		f := alive.NewFunction(alive.NewIntType(8), "f")
		a := alive.NewInput(alive.NewIntType(8), "%a")
		f.AddInput(a)
		u := alive.NewUndefValue(alive.NewIntType(8))
		f.AddUndef(u)

		bb := f.BB("")
		x := alive.NewBinOp(alive.NewIntType(8), "%x", a, u, alive.BinOpAdd, 0)
		bb.AddInstr(x)
		bb.AddInstr(alive.NewReturn(alive.NewIntType(8), x))

		s := alive.NewState(f, &alive.VarIDs{})
		s.Exec()

		vars := s.QuantVars()
		if got, exp := len(vars), 1; got != exp {
			t.Fatalf("len(QuantVars())=%d, expected %d", got, exp)
		} else if !strings.HasPrefix(vars[0].VarName, "undef!") {
			t.Fatalf("unexpected variable name: %s", vars[0].VarName)
		}

		// The quantified variable propagates to the returned value.
		ret := s.ReturnVal()
		if got, exp := len(ret.Quant), 1; got != exp {
			t.Fatalf("len(ReturnVal().Quant)=%d, expected %d", got, exp)
		}
	})

	t.Run("SharedAllocator", func(t *testing.T) {
		// Two states sharing an allocator never collide on fresh names.
		f := alive.NewFunction(alive.NewIntType(8), "f")
		a := alive.NewInput(alive.NewIntType(8), "%a")
		f.AddInput(a)
		u := alive.NewUndefValue(alive.NewIntType(8))
		f.AddUndef(u)
		bb := f.BB("")
		x := alive.NewBinOp(alive.NewIntType(8), "%x", a, u, alive.BinOpAdd, 0)
		bb.AddInstr(x)
		bb.AddInstr(alive.NewReturn(alive.NewIntType(8), x))

		ids := &alive.VarIDs{}
		s1 := alive.NewState(f, ids)
		s1.Exec()
		s2 := alive.NewState(f, ids)
		s2.Exec()

		if v1, v2 := s1.QuantVars()[0], s2.QuantVars()[0]; v1.VarName == v2.VarName {
			t.Fatalf("fresh variables collide: %s", v1.VarName)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		f, _ := buildUnaryFn(alive.BinOpSDiv, alive.FlagExact)
		s1 := alive.NewState(f, &alive.VarIDs{})
		s1.Exec()
		s2 := alive.NewState(f, &alive.VarIDs{})
		s2.Exec()

		if !s1.ReturnVal().Val.Eq(s2.ReturnVal().Val) {
			t.Fatal("expected identical return values")
		}
		if alive.CompareExpr(s1.ReturnDomain(), s2.ReturnDomain()) != 0 {
			t.Fatal("expected identical return domains")
		}
	})
}

func TestStateValue(t *testing.T) {
	x := alive.StateValue{Value: alive.NewVarExpr("x", 8), NonPoison: alive.NewBoolConstantExpr(true)}

	t.Run("ZExt", func(t *testing.T) {
		if got, exp := x.ZExt(8).Bits(), uint(16); got != exp {
			t.Fatalf("Bits()=%d, expected %d", got, exp)
		}
	})
	t.Run("Trunc", func(t *testing.T) {
		if got, exp := x.Trunc(4).Bits(), uint(4); got != exp {
			t.Fatalf("Bits()=%d, expected %d", got, exp)
		}
	})
	t.Run("ZExtOrTrunc", func(t *testing.T) {
		if got, exp := x.ZExtOrTrunc(8).Bits(), uint(8); got != exp {
			t.Fatalf("Bits()=%d, expected %d", got, exp)
		}
	})
	t.Run("Concat", func(t *testing.T) {
		y := alive.StateValue{Value: alive.NewVarExpr("y", 8), NonPoison: alive.NewBoolConstantExpr(true)}
		if got, exp := x.Concat(y).Bits(), uint(16); got != exp {
			t.Fatalf("Bits()=%d, expected %d", got, exp)
		}
	})
	t.Run("Subst", func(t *testing.T) {
		got := x.Subst([]alive.Replacement{{
			From: alive.NewVarExpr("x", 8),
			To:   alive.NewConstantExpr(7, 8),
		}})
		if !got.Eq(alive.StateValue{Value: alive.NewConstantExpr(7, 8), NonPoison: alive.NewBoolConstantExpr(true)}) {
			t.Fatalf("unexpected value: %s", got.Value)
		}
	})
	t.Run("MkIf", func(t *testing.T) {
		y := alive.StateValue{Value: alive.NewVarExpr("y", 8), NonPoison: alive.NewBoolConstantExpr(true)}
		got := alive.MkIf(alive.NewBoolConstantExpr(true), x, y)
		if !got.Eq(x) {
			t.Fatalf("unexpected value: %s", got.Value)
		}
	})
}
