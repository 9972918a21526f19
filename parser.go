package alive

import (
	"fmt"
)

// ParseError describes a syntax error and the line it occurred on.
type ParseError struct {
	Line int
	Msg  string
}

// Error returns the error as a string.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
}

// Parse reads a sequence of transformations in the textual syntax:
//
//	Name: <name>
//	%x = add nsw i8 %a, %b
//	ret i8 %x
//	=>
//	ret i8 %b
//
// Types may be omitted, leaving them to the typing phase. An optional
// "Pre:" line is stored unevaluated.
func Parse(src string) ([]*Transform, error) {
	p := &parser{lx: newLexer(src)}

	var transforms []*Transform
	for {
		lex, err := p.peek()
		if err != nil {
			return nil, err
		} else if lex.tok == tokEOF {
			return transforms, nil
		}

		t, err := p.parseTransform()
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, t)
	}
}

type parser struct {
	lx     *lexer
	peeked *lexeme

	fn     *Function
	bb     *BasicBlock
	idents map[string]Value
}

func (p *parser) next() (lexeme, error) {
	if p.peeked != nil {
		lex := *p.peeked
		p.peeked = nil
		return lex, nil
	}
	return p.lx.next()
}

func (p *parser) peek() (lexeme, error) {
	if p.peeked == nil {
		lex, err := p.lx.next()
		if err != nil {
			return lexeme{}, err
		}
		p.peeked = &lex
	}
	return *p.peeked, nil
}

func (p *parser) consumeIf(tok token) (lexeme, bool, error) {
	lex, err := p.peek()
	if err != nil {
		return lexeme{}, false, err
	} else if lex.tok != tok {
		return lexeme{}, false, nil
	}
	p.peeked = nil
	return lex, true, nil
}

func (p *parser) ensure(tok token) (lexeme, error) {
	lex, err := p.next()
	if err != nil {
		return lexeme{}, err
	} else if lex.tok != tok {
		return lexeme{}, &ParseError{Line: lex.line, Msg: fmt.Sprintf("expected %s, got %s", tok, lex.tok)}
	}
	return lex, nil
}

func (p *parser) parseTransform() (*Transform, error) {
	t := &Transform{}

	if lex, ok, err := p.consumeIf(tokName); err != nil {
		return nil, err
	} else if ok {
		t.Name = lex.str
	}
	if lex, ok, err := p.consumeIf(tokPre); err != nil {
		return nil, err
	} else if ok {
		t.Precond = lex.str
	}

	t.Src = NewFunction(nil, "src")
	if err := p.parseFn(t.Src); err != nil {
		return nil, err
	}
	if _, err := p.ensure(tokArrow); err != nil {
		return nil, err
	}
	t.Tgt = NewFunction(nil, "tgt")
	if err := p.parseFn(t.Tgt); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *parser) parseFn(f *Function) error {
	p.fn = f
	p.bb = f.BB("")
	p.idents = make(map[string]Value)

	for {
		lex, err := p.peek()
		if err != nil {
			return err
		}

		switch lex.tok {
		case tokIdent:
			p.peeked = nil
			instr, err := p.parseInstr(lex.str)
			if err != nil {
				return err
			}
			p.idents[lex.str] = instr
			p.bb.AddInstr(instr)

		case tokLabel:
			p.peeked = nil
			p.bb = f.BB(lex.str)

		case tokRet:
			p.peeked = nil
			typ, err := p.parseOptType()
			if err != nil {
				return err
			}
			val, err := p.parseOperand(typ)
			if err != nil {
				return err
			}
			p.bb.AddInstr(NewReturn(typ, val))

		case tokUnreachable:
			p.peeked = nil
			p.bb.AddInstr(NewUnreachable())

		default:
			return nil
		}
	}
}

// parseInstr parses "%name = op [flags] [type] a, b".
func (p *parser) parseInstr(name string) (Instr, error) {
	if _, err := p.ensure(tokEquals); err != nil {
		return nil, err
	}

	lex, err := p.next()
	if err != nil {
		return nil, err
	}

	var op BinOpCode
	switch lex.tok {
	case tokAdd:
		op = BinOpAdd
	case tokSub:
		op = BinOpSub
	case tokMul:
		op = BinOpMul
	case tokSDiv:
		op = BinOpSDiv
	case tokUDiv:
		op = BinOpUDiv
	case tokShl:
		op = BinOpShl
	case tokLShr:
		op = BinOpLShr
	case tokAShr:
		op = BinOpAShr
	default:
		return nil, &ParseError{Line: lex.line, Msg: fmt.Sprintf("expected an instruction name, got %s", lex.tok)}
	}

	flags, err := p.parseFlags(op)
	if err != nil {
		return nil, err
	}
	typ, err := p.parseOptType()
	if err != nil {
		return nil, err
	}
	a, err := p.parseOperand(typ)
	if err != nil {
		return nil, err
	}
	if _, err := p.ensure(tokComma); err != nil {
		return nil, err
	}
	b, err := p.parseOperand(typ)
	if err != nil {
		return nil, err
	}
	return NewBinOp(typ, name, a, b, op, flags), nil
}

// parseFlags parses the flags an operation admits: nsw/nuw for add, sub,
// mul and shl; exact for the divisions and right shifts.
func (p *parser) parseFlags(op BinOpCode) (BinOpFlags, error) {
	var flags BinOpFlags
	switch op {
	case BinOpAdd, BinOpSub, BinOpMul, BinOpShl:
		for {
			if _, ok, err := p.consumeIf(tokNSW); err != nil {
				return 0, err
			} else if ok {
				flags |= FlagNSW
				continue
			}
			if _, ok, err := p.consumeIf(tokNUW); err != nil {
				return 0, err
			} else if ok {
				flags |= FlagNUW
				continue
			}
			return flags, nil
		}
	case BinOpSDiv, BinOpUDiv, BinOpLShr, BinOpAShr:
		if _, ok, err := p.consumeIf(tokExact); err != nil {
			return 0, err
		} else if ok {
			flags |= FlagExact
		}
		return flags, nil
	default:
		return flags, nil
	}
}

// parseOptType parses an explicit iN type or falls back to a fresh symbolic
// type resolved by the typing phase.
func (p *parser) parseOptType() (Type, error) {
	lex, ok, err := p.consumeIf(tokIntType)
	if err != nil {
		return nil, err
	} else if !ok {
		return NewSymbolicType(), nil
	}
	if lex.num < 1 || lex.num > WidthMax {
		return nil, &ParseError{Line: lex.line, Msg: fmt.Sprintf("unsupported integer width: i%d", lex.num)}
	}
	return NewIntType(uint(lex.num)), nil
}

// parseOperand parses a constant or a local. New locals become inputs; each
// operand owns a copy of the instruction's type so the typing phase can
// constrain them independently.
func (p *parser) parseOperand(typ Type) (Value, error) {
	lex, err := p.next()
	if err != nil {
		return nil, err
	}

	switch lex.tok {
	case tokNum:
		c := NewIntConst(typ.Dup(), lex.num)
		p.fn.AddConstant(c)
		return c, nil
	case tokIdent:
		if v, ok := p.idents[lex.str]; ok {
			return v, nil
		}
		in := NewInput(typ.Dup(), lex.str)
		p.fn.AddInput(in)
		p.idents[lex.str] = in
		return in, nil
	default:
		return nil, &ParseError{Line: lex.line, Msg: fmt.Sprintf("expected an operand, got %s", lex.tok)}
	}
}
