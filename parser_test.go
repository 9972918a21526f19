package alive_test

import (
	"strings"
	"testing"

	alive "github.com/AbigailBuccaneer/alive2"
	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	t.Run("Simple", func(t *testing.T) {
		transforms, err := alive.Parse(`
Name: id1
%x = add i8 %a, 0
ret i8 %x
=>
ret i8 %a
`)
		if err != nil {
			t.Fatal(err)
		} else if got, exp := len(transforms), 1; got != exp {
			t.Fatalf("len(transforms)=%d, expected %d", got, exp)
		}

		tr := transforms[0]
		if got, exp := tr.Name, "id1"; got != exp {
			t.Fatalf("Name=%q, expected %q", got, exp)
		}
		if got, exp := len(tr.Src.Instrs()), 2; got != exp {
			t.Fatalf("len(Src.Instrs())=%d, expected %d", got, exp)
		}
		if got, exp := len(tr.Tgt.Instrs()), 1; got != exp {
			t.Fatalf("len(Tgt.Instrs())=%d, expected %d", got, exp)
		}
		if got, exp := len(tr.Src.Inputs()), 1; got != exp {
			t.Fatalf("len(Src.Inputs())=%d, expected %d", got, exp)
		}
		if got, exp := len(tr.Src.Constants()), 1; got != exp {
			t.Fatalf("len(Src.Constants())=%d, expected %d", got, exp)
		}

		binop, ok := tr.Src.Instrs()[0].(*alive.BinOp)
		if !ok {
			t.Fatalf("expected BinOp, got %T", tr.Src.Instrs()[0])
		} else if got, exp := binop.Name(), "%x"; got != exp {
			t.Fatalf("Name=%q, expected %q", got, exp)
		} else if got, exp := binop.Op(), alive.BinOpAdd; got != exp {
			t.Fatalf("Op=%s, expected %s", got, exp)
		} else if got, exp := binop.Type().Bits(), uint(8); got != exp {
			t.Fatalf("Bits=%d, expected %d", got, exp)
		}
	})

	t.Run("Flags", func(t *testing.T) {
		transforms, err := alive.Parse(`
%x = add nsw nuw i8 %a, %b
ret i8 %x
=>
%y = sdiv exact i8 %a, %b
ret i8 %y
`)
		if err != nil {
			t.Fatal(err)
		}

		src := transforms[0].Src.Instrs()[0].(*alive.BinOp)
		if got, exp := src.Flags(), alive.FlagNSW|alive.FlagNUW; got != exp {
			t.Fatalf("Flags=%v, expected %v", got, exp)
		}
		tgt := transforms[0].Tgt.Instrs()[0].(*alive.BinOp)
		if got, exp := tgt.Flags(), alive.FlagExact; got != exp {
			t.Fatalf("Flags=%v, expected %v", got, exp)
		}
	})

	t.Run("SymbolicType", func(t *testing.T) {
		transforms, err := alive.Parse(`
%x = add %a, %b
ret %x
=>
%x = add %b, %a
ret %x
`)
		if err != nil {
			t.Fatal(err)
		}

		binop := transforms[0].Src.Instrs()[0].(*alive.BinOp)
		if _, ok := binop.Type().(*alive.SymbolicType); !ok {
			t.Fatalf("expected SymbolicType, got %T", binop.Type())
		}
	})

	t.Run("NegativeConstant", func(t *testing.T) {
		transforms, err := alive.Parse(`
%x = sdiv i8 %a, -1
ret i8 %x
=>
ret i8 %a
`)
		if err != nil {
			t.Fatal(err)
		}
		c := transforms[0].Src.Constants()[0]
		if got, exp := c.Int(), int64(-1); got != exp {
			t.Fatalf("Int()=%d, expected %d", got, exp)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		transforms, err := alive.Parse(`
ret i8 %a
=>
unreachable
`)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := transforms[0].Tgt.Instrs()[0].(*alive.Unreachable); !ok {
			t.Fatalf("expected Unreachable, got %T", transforms[0].Tgt.Instrs()[0])
		}
	})

	t.Run("Pre", func(t *testing.T) {
		transforms, err := alive.Parse(`
Name: masked
Pre: isPowerOf2(%b)
%x = udiv i8 %a, %b
ret i8 %x
=>
%x = udiv i8 %a, %b
ret i8 %x
`)
		if err != nil {
			t.Fatal(err)
		}
		if got, exp := transforms[0].Precond, "isPowerOf2(%b)"; got != exp {
			t.Fatalf("Precond=%q, expected %q", got, exp)
		}
	})

	t.Run("Multiple", func(t *testing.T) {
		transforms, err := alive.Parse(`
Name: first
ret i8 %a
=>
ret i8 %a

Name: second
ret i8 %b
=>
ret i8 %b
`)
		if err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, tr := range transforms {
			names = append(names, tr.Name)
		}
		if diff := cmp.Diff([]string{"first", "second"}, names); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Comments", func(t *testing.T) {
		transforms, err := alive.Parse(`
; identity
ret i8 %a ; returns the argument
=>
ret i8 %a
`)
		if err != nil {
			t.Fatal(err)
		} else if got, exp := len(transforms), 1; got != exp {
			t.Fatalf("len(transforms)=%d, expected %d", got, exp)
		}
	})

	t.Run("Labels", func(t *testing.T) {
		transforms, err := alive.Parse(`
entry:
ret i8 %a
=>
ret i8 %a
`)
		if err != nil {
			t.Fatal(err)
		}
		blocks := transforms[0].Src.Blocks()
		if got, exp := len(blocks), 2; got != exp {
			t.Fatalf("len(blocks)=%d, expected %d", got, exp)
		} else if got, exp := blocks[1].Name(), "entry"; got != exp {
			t.Fatalf("block name=%q, expected %q", got, exp)
		}
	})
}

func TestParse_Errors(t *testing.T) {
	t.Run("UnknownToken", func(t *testing.T) {
		_, err := alive.Parse("%x = bogus i8 %a, %b")
		perr, ok := err.(*alive.ParseError)
		if !ok {
			t.Fatalf("expected ParseError, got %v", err)
		} else if got, exp := perr.Line, 1; got != exp {
			t.Fatalf("Line=%d, expected %d", got, exp)
		}
	})
	t.Run("LineNumbers", func(t *testing.T) {
		_, err := alive.Parse("ret i8 %a\n=>\n%x = add i8 %a\nret i8 %x\n")
		perr, ok := err.(*alive.ParseError)
		if !ok {
			t.Fatalf("expected ParseError, got %v", err)
		} else if got, exp := perr.Line, 4; got != exp {
			t.Fatalf("Line=%d, expected %d", got, exp)
		}
	})
	t.Run("BadWidth", func(t *testing.T) {
		_, err := alive.Parse("ret i65 %a\n=>\nret i65 %a\n")
		if _, ok := err.(*alive.ParseError); !ok {
			t.Fatalf("expected ParseError, got %v", err)
		}
	})
	t.Run("MissingArrow", func(t *testing.T) {
		_, err := alive.Parse("ret i8 %a\n")
		if _, ok := err.(*alive.ParseError); !ok {
			t.Fatalf("expected ParseError, got %v", err)
		}
	})
}

func TestTransform_Print(t *testing.T) {
	transforms, err := alive.Parse(`
Name: shift
%x = shl i8 %a, 3
ret i8 %x
=>
%x = mul i8 %a, 8
ret i8 %x
`)
	if err != nil {
		t.Fatal(err)
	}

	s := transforms[0].String()
	if !strings.Contains(s, "Name: shift\n") {
		t.Fatalf("missing name: %q", s)
	}
	if !strings.Contains(s, "%x = shl i8 %a, 3\n") {
		t.Fatalf("missing source instruction: %q", s)
	}
	if !strings.Contains(s, "=>\n") {
		t.Fatalf("missing arrow: %q", s)
	}
	if !strings.Contains(s, "%x = mul i8 %a, 8\n") {
		t.Fatalf("missing target instruction: %q", s)
	}
}
