package llvm_test

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	irtypes "github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"

	alive "github.com/AbigailBuccaneer/alive2"
	"github.com/AbigailBuccaneer/alive2/llvm"
)

func TestImportFunc(t *testing.T) {
	t.Run("AddRet", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.I8, ir.NewParam("a", irtypes.I8))
		b := f.NewBlock("")
		x := b.NewAdd(f.Params[0], constant.NewInt(irtypes.I8, 1))
		x.SetName("x")
		b.NewRet(x)

		fn, err := llvm.ImportFunc(f)
		if err != nil {
			t.Fatal(err)
		}

		if got, exp := len(fn.Inputs()), 1; got != exp {
			t.Fatalf("len(Inputs())=%d, expected %d", got, exp)
		} else if got, exp := fn.Inputs()[0].Name(), "%a"; got != exp {
			t.Fatalf("input name=%q, expected %q", got, exp)
		}

		instrs := fn.Instrs()
		if got, exp := len(instrs), 2; got != exp {
			t.Fatalf("len(Instrs())=%d, expected %d", got, exp)
		}
		binop, ok := instrs[0].(*alive.BinOp)
		if !ok {
			t.Fatalf("expected BinOp, got %T", instrs[0])
		} else if got, exp := binop.Name(), "%x"; got != exp {
			t.Fatalf("name=%q, expected %q", got, exp)
		} else if got, exp := binop.Op(), alive.BinOpAdd; got != exp {
			t.Fatalf("op=%s, expected %s", got, exp)
		} else if got, exp := binop.Type().Bits(), uint(8); got != exp {
			t.Fatalf("bits=%d, expected %d", got, exp)
		}
		if _, ok := instrs[1].(*alive.Return); !ok {
			t.Fatalf("expected Return, got %T", instrs[1])
		}
	})

	t.Run("Flags", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.I32,
			ir.NewParam("a", irtypes.I32), ir.NewParam("b", irtypes.I32))
		b := f.NewBlock("")
		x := b.NewAdd(f.Params[0], f.Params[1])
		x.SetName("x")
		x.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNSW, enum.OverflowFlagNUW}
		y := b.NewLShr(x, f.Params[1])
		y.SetName("y")
		y.Exact = true
		b.NewRet(y)

		fn, err := llvm.ImportFunc(f)
		if err != nil {
			t.Fatal(err)
		}

		instrs := fn.Instrs()
		if got, exp := instrs[0].(*alive.BinOp).Flags(), alive.FlagNSW|alive.FlagNUW; got != exp {
			t.Fatalf("flags=%v, expected %v", got, exp)
		}
		if got, exp := instrs[1].(*alive.BinOp).Flags(), alive.FlagExact; got != exp {
			t.Fatalf("flags=%v, expected %v", got, exp)
		}
	})

	t.Run("Undef", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.I8, ir.NewParam("a", irtypes.I8))
		b := f.NewBlock("")
		x := b.NewAdd(f.Params[0], constant.NewUndef(irtypes.I8))
		x.SetName("x")
		b.NewRet(x)

		fn, err := llvm.ImportFunc(f)
		if err != nil {
			t.Fatal(err)
		}
		if got, exp := len(fn.Undefs()), 1; got != exp {
			t.Fatalf("len(Undefs())=%d, expected %d", got, exp)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.Void)
		b := f.NewBlock("")
		b.NewUnreachable()

		fn, err := llvm.ImportFunc(f)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := fn.Instrs()[0].(*alive.Unreachable); !ok {
			t.Fatalf("expected Unreachable, got %T", fn.Instrs()[0])
		}
	})

	t.Run("AnonymousValues", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.I8, ir.NewParam("", irtypes.I8))
		b := f.NewBlock("")
		x := b.NewAdd(f.Params[0], constant.NewInt(irtypes.I8, 1))
		b.NewRet(x)

		fn, err := llvm.ImportFunc(f)
		if err != nil {
			t.Fatal(err)
		}
		if got, exp := fn.Inputs()[0].Name(), "%0"; got != exp {
			t.Fatalf("input name=%q, expected %q", got, exp)
		}
		if got, exp := fn.Instrs()[0].Name(), "%1"; got != exp {
			t.Fatalf("instr name=%q, expected %q", got, exp)
		}
	})
}

func TestImportFunc_Unsupported(t *testing.T) {
	t.Run("FloatType", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.Float)
		if _, err := llvm.ImportFunc(f); !errors.Is(err, llvm.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
	})

	t.Run("WideInt", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.NewInt(128))
		if _, err := llvm.ImportFunc(f); !errors.Is(err, llvm.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
	})

	t.Run("RetVoid", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.Void)
		b := f.NewBlock("")
		b.NewRet(nil)

		if _, err := llvm.ImportFunc(f); !errors.Is(err, llvm.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
	})

	t.Run("UnsupportedInstruction", func(t *testing.T) {
		m := ir.NewModule()
		f := m.NewFunc("f", irtypes.I8,
			ir.NewParam("a", irtypes.I8), ir.NewParam("b", irtypes.I8))
		b := f.NewBlock("")
		x := b.NewAnd(f.Params[0], f.Params[1])
		b.NewRet(x)

		if _, err := llvm.ImportFunc(f); !errors.Is(err, llvm.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
	})
}
