package alive

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Transform pairs a source function with a candidate rewrite. The verifier
// decides whether the target refines the source.
type Transform struct {
	Name string
	Src  *Function
	Tgt  *Function

	// Precond is parsed but not yet evaluated; verification treats the
	// precondition as true.
	Precond string
}

// VerifyOpts configures verification.
type VerifyOpts struct {
	// CheckEachVar additionally compares every source temporary against
	// the target instruction with the same textual name.
	CheckEachVar bool
}

// PrintOpts configures printing.
type PrintOpts struct {
	FnHeader bool
}

// Print writes the transformation as "Name:\n<src>\n=>\n<tgt>", preceded by
// a separator line. The "Name:" line is omitted for unnamed transformations.
func (t *Transform) Print(w io.Writer, opts PrintOpts) {
	fmt.Fprintf(w, "\n----------------------------------------\n")
	if t.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", t.Name)
	}
	t.Src.Print(w, opts.FnHeader)
	fmt.Fprintln(w, "=>")
	t.Tgt.Print(w, opts.FnHeader)
}

// String returns the printed transformation.
func (t *Transform) String() string {
	var buf bytes.Buffer
	t.Print(&buf, PrintOpts{})
	return buf.String()
}

// TypingAssignments enumerates the concrete typings satisfying a
// transformation's accumulated type constraints. Each satisfying model is
// blocked before the next check, so the enumeration visits every distinct
// assignment exactly once.
type TypingAssignments struct {
	s Solver
	r Result
}

// Typings returns an enumerator over the valid typings of the pair.
// Solver queries are force-enabled while enumerating.
func (t *Transform) Typings() *TypingAssignments {
	restore := SetSMTQueries(true)
	defer restore()

	s := NewSolver()
	s.Add(t.typeConstraints())
	return &TypingAssignments{s: s, r: s.Check()}
}

// typeConstraints conjoins both functions' constraints with the
// cross-function constraints tying same-named inputs and the return types.
func (t *Transform) typeConstraints() Expr {
	c := NewBinaryExpr(AND, t.Src.TypeConstraints(), t.Tgt.TypeConstraints())

	tgtInputs := make(map[string]*Input, len(t.Tgt.Inputs()))
	for _, in := range t.Tgt.Inputs() {
		tgtInputs[in.Name()] = in
	}
	for _, in := range t.Src.Inputs() {
		if other, ok := tgtInputs[in.Name()]; ok {
			c = NewBinaryExpr(AND, c, TypeEq(in.Type(), other.Type()))
		}
	}

	if src, tgt := returnInstr(t.Src), returnInstr(t.Tgt); src != nil && tgt != nil {
		c = NewBinaryExpr(AND, c, TypeEq(src.Type(), tgt.Type()))
	}
	return c
}

// returnInstr returns the function's return instruction, if any.
func returnInstr(f *Function) *Return {
	for _, instr := range f.Instrs() {
		if ret, ok := instr.(*Return); ok {
			return ret
		}
	}
	return nil
}

// Valid returns true if the enumerator currently holds a typing.
func (ta *TypingAssignments) Valid() bool {
	return ta.r.IsSat()
}

// Result returns the current check result.
func (ta *TypingAssignments) Result() Result {
	return ta.r
}

// Next blocks the current typing and advances to the next one.
func (ta *TypingAssignments) Next() {
	restore := SetSMTQueries(true)
	defer restore()

	ta.s.Block(ta.r.Model())
	ta.r = ta.s.Check()
	assert(!ta.r.IsUnknown(), "typing enumeration returned unknown")
}

// Close releases the enumerator's solver.
func (ta *TypingAssignments) Close() {
	ta.s.Close()
}

// FixupTypes commits both functions to the enumerator's current typing.
func (t *Transform) FixupTypes(ta *TypingAssignments) {
	m := ta.r.Model()
	t.Src.FixupTypes(m)
	t.Tgt.FixupTypes(m)
}

// Verify checks that the target refines the source under every valid typing.
// The first failing typing's diagnostics are returned; the empty collector
// means verified. A pair with no valid typing is vacuously valid.
func (t *Transform) Verify(opts VerifyOpts) *Errors {
	errs := &Errors{}

	ta := t.Typings()
	defer ta.Close()

	if r := ta.Result(); r.IsInvalid() {
		panic("alive: typing constraints are malformed")
	} else if r.IsUnknown() {
		errs.Add(ErrCouldNotType)
		return errs
	}

	for ta.Valid() {
		t.FixupTypes(ta)
		if errs = t.verifyTyped(opts); !errs.Empty() {
			return errs
		}
		ta.Next()
	}
	return errs
}

// verifyTyped checks refinement under the currently-committed typing.
func (t *Transform) verifyTyped(opts VerifyOpts) *Errors {
	ids := &VarIDs{}
	srcState := NewState(t.Src, ids)
	srcState.Exec()
	tgtState := NewState(t.Tgt, ids)
	tgtState.Exec()

	errs := &Errors{}
	s := NewSolver()
	defer s.Close()

	qvars := mergeQuantVars(srcState.QuantVars(), tgtState.QuantVars())

	if opts.CheckEachVar {
		t.checkEachVar(s, errs, qvars, srcState, tgtState)
	}

	if srcState.FnReturned() != tgtState.FnReturned() {
		if srcState.FnReturned() {
			errs.Add(ErrSourceReturns)
		} else {
			errs.Add(ErrTargetReturns)
		}
	} else if srcState.FnReturned() {
		checkRefinement(s, errs, qvars,
			srcState.ReturnDomain(), srcState.ReturnVal(),
			tgtState.ReturnDomain(), tgtState.ReturnVal())
	}

	return errs
}

// checkEachVar compares every named source temporary against the target
// instruction with the same name, under true domains.
func (t *Transform) checkEachVar(s Solver, errs *Errors, qvars []*VarExpr, srcState, tgtState *State) {
	tgtVals := make(map[string]ValTy)
	tgtState.Each(func(v Value, val ValTy) {
		if _, ok := v.(Instr); ok {
			tgtVals[v.Name()] = val
		}
	})

	tru := Expr(NewBoolConstantExpr(true))
	srcState.Each(func(v Value, val ValTy) {
		if _, ok := v.(Instr); !ok || !strings.HasPrefix(v.Name(), "%") {
			return
		}
		other, ok := tgtVals[v.Name()]
		if !ok || other.Val.Bits() != val.Val.Bits() {
			return
		}
		checkRefinement(s, errs, qvars, tru, val, tru, other)
	})
}

// checkRefinement issues the three refinement obligations in order:
// definedness, poison, value. A satisfiable query is a counterexample and
// appends its diagnostic; Unknown is treated as verified.
func checkRefinement(s Solver, errs *Errors, globalQuant []*VarExpr, domA Expr, a ValTy, domB Expr, b ValTy) {
	qvars := mergeQuantVars(globalQuant, a.Quant)

	s.CheckEach(
		Query{
			Expr: NewForallExpr(qvars, NewNotImpliesExpr(domA, domB)),
			OnSat: func(m *Model) {
				errs.Add(ErrSourceMoreDefined)
			},
		},
		Query{
			Expr: NewForallExpr(qvars, NewBinaryExpr(AND, domA,
				NewNotImpliesExpr(a.Val.NonPoison, b.Val.NonPoison))),
			OnSat: func(m *Model) {
				errs.Add(ErrTargetMorePoison)
			},
		},
		Query{
			Expr: NewForallExpr(qvars, NewBinaryExpr(AND, domA,
				NewBinaryExpr(AND, a.Val.NonPoison,
					NewBinaryExpr(NE, a.Val.Value, b.Val.Value)))),
			OnSat: func(m *Model) {
				errs.Add(ErrValueMismatch)
			},
		},
	)
}

// mergeQuantVars unions two quantified-variable sets, deduplicated by name
// and ordered by name.
func mergeQuantVars(a, b []*VarExpr) []*VarExpr {
	merged := dedupVars(append(append([]*VarExpr{}, a...), b...))
	sort.Slice(merged, func(i, j int) bool { return merged[i].VarName < merged[j].VarName })
	return merged
}
