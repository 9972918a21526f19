package alive

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// BasicBlock is a named, ordered list of instructions.
type BasicBlock struct {
	name   string
	instrs []Instr
}

// Name returns the block's label. The entry block's label may be empty.
func (b *BasicBlock) Name() string { return b.name }

// Instrs returns the block's instructions in order.
func (b *BasicBlock) Instrs() []Instr { return b.instrs }

// AddInstr appends an instruction to the block.
func (b *BasicBlock) AddInstr(i Instr) {
	b.instrs = append(b.instrs, i)
}

// Function is an ordered sequence of basic blocks together with the inputs,
// constants and undefs its instructions reference. The first block created is
// the entry block.
type Function struct {
	name    string
	retType Type

	inputs    []*Input
	constants []*IntConst
	undefs    []*UndefValue

	blocks   []*BasicBlock
	blockIdx map[string]*BasicBlock

	nameSeq int
}

// NewFunction returns a new function with the given return type and name.
func NewFunction(retType Type, name string) *Function {
	return &Function{
		name:     name,
		retType:  retType,
		blockIdx: make(map[string]*BasicBlock),
	}
}

// Name returns the function's name.
func (f *Function) Name() string { return f.name }

// RetType returns the function's return type.
func (f *Function) RetType() Type { return f.retType }

// BB returns the basic block with the given label, creating it if needed.
func (f *Function) BB(name string) *BasicBlock {
	if bb, ok := f.blockIdx[name]; ok {
		return bb
	}
	bb := &BasicBlock{name: name}
	f.blockIdx[name] = bb
	f.blocks = append(f.blocks, bb)
	return bb
}

// EntryBlock returns the function's entry block, or nil if none exists.
func (f *Function) EntryBlock() *BasicBlock {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

// Blocks returns the function's blocks in creation order.
func (f *Function) Blocks() []*BasicBlock { return f.blocks }

// Inputs returns the function's inputs in order.
func (f *Function) Inputs() []*Input { return f.inputs }

// Constants returns the function's constants in order.
func (f *Function) Constants() []*IntConst { return f.constants }

// Undefs returns the function's undef values in order.
func (f *Function) Undefs() []*UndefValue { return f.undefs }

// AddInput appends an input to the function.
func (f *Function) AddInput(v *Input) {
	f.inputs = append(f.inputs, v)
}

// AddConstant appends a constant to the function.
func (f *Function) AddConstant(c *IntConst) {
	f.constants = append(f.constants, c)
}

// AddUndef appends an undef value to the function.
func (f *Function) AddUndef(u *UndefValue) {
	f.undefs = append(f.undefs, u)
}

// NextName returns the next auto-assigned name for an anonymous temporary.
func (f *Function) NextName() string {
	name := "%" + strconv.Itoa(f.nameSeq)
	f.nameSeq++
	return name
}

// Instrs returns every instruction of the function in block order.
func (f *Function) Instrs() []Instr {
	var instrs []Instr
	for _, bb := range f.blocks {
		instrs = append(instrs, bb.instrs...)
	}
	return instrs
}

// TypeConstraints returns the conjunction of every value's type constraints.
func (f *Function) TypeConstraints() Expr {
	c := Expr(NewBoolConstantExpr(true))
	for _, v := range f.inputs {
		c = NewBinaryExpr(AND, c, v.TypeConstraints())
	}
	for _, v := range f.constants {
		c = NewBinaryExpr(AND, c, v.TypeConstraints())
	}
	for _, v := range f.undefs {
		c = NewBinaryExpr(AND, c, v.TypeConstraints())
	}
	for _, v := range f.Instrs() {
		c = NewBinaryExpr(AND, c, v.TypeConstraints())
	}
	return c
}

// FixupTypes commits every value's type to the concrete form chosen by the
// typing model.
func (f *Function) FixupTypes(m *Model) {
	for _, v := range f.inputs {
		v.Type().Fixup(m)
	}
	for _, v := range f.constants {
		v.Type().Fixup(m)
	}
	for _, v := range f.undefs {
		v.Type().Fixup(m)
	}
	for _, v := range f.Instrs() {
		v.Type().Fixup(m)
	}
}

// Print writes the function body, optionally preceded by a header line.
func (f *Function) Print(w io.Writer, header bool) {
	if header {
		var buf bytes.Buffer
		for i, in := range f.inputs {
			if i > 0 {
				buf.WriteString(", ")
			}
			if t := in.Type().String(); t != "" {
				buf.WriteString(t)
				buf.WriteRune(' ')
			}
			buf.WriteString(in.Name())
		}
		ret := ""
		if f.retType != nil {
			ret = f.retType.String()
		}
		fmt.Fprintf(w, "define %s @%s(%s) {\n", ret, f.name, buf.String())
	}
	for _, bb := range f.blocks {
		if bb.name != "" {
			fmt.Fprintf(w, "%s:\n", bb.name)
		}
		for _, instr := range bb.instrs {
			fmt.Fprintf(w, "  %s\n", instr)
		}
	}
	if header {
		fmt.Fprintln(w, "}")
	}
}

// String returns the printed function body.
func (f *Function) String() string {
	var buf bytes.Buffer
	f.Print(&buf, false)
	return buf.String()
}
