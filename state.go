package alive

import (
	"fmt"

	"github.com/benbjohnson/immutable"
)

// VarIDs allocates identifiers for the fresh variables a verification
// introduces. Both executions of a transformation share one allocator so
// their fresh variables never collide.
type VarIDs struct {
	seq int
}

func (ids *VarIDs) next() int {
	id := ids.seq
	ids.seq++
	return id
}

// ValTy pairs a state value with the quantified variables it depends on.
type ValTy struct {
	Val   StateValue
	Quant []*VarExpr
}

type stateEntry struct {
	value Value
	val   ValTy
}

// State is the symbolic execution state of a single function: a binding per
// value (keyed by identity, in binding order), the quantified variables
// introduced so far, the path-domain and UB predicates, and the captured
// return, if any.
type State struct {
	fn      *Function
	idx     map[Value]int
	entries []stateEntry

	quant   *immutable.SortedMap
	pending []*VarExpr

	path Expr
	ub   Expr

	returned  bool
	retDomain Expr
	ret       ValTy

	ids *VarIDs
}

// NewState returns a fresh state for fn drawing fresh variables from ids.
func NewState(fn *Function, ids *VarIDs) *State {
	assert(fn != nil, "state requires a function")
	assert(ids != nil, "state requires a variable allocator")
	return &State{
		fn:    fn,
		idx:   make(map[Value]int),
		quant: immutable.NewSortedMap(&stringComparer{}),
		path:  NewBoolConstantExpr(true),
		ub:    NewBoolConstantExpr(true),
		ids:   ids,
	}
}

// Function returns the function under execution.
func (s *State) Function() *Function { return s.fn }

// Exec symbolically executes the function: inputs, constants and undefs
// first, then every block's instructions in order. Bindings after an
// unreachable instruction are not produced. Exec never calls the solver.
func (s *State) Exec() {
	for _, v := range s.fn.Inputs() {
		s.bind(v)
	}
	for _, v := range s.fn.Constants() {
		s.bind(v)
	}
	for _, v := range s.fn.Undefs() {
		s.bind(v)
	}
	for _, bb := range s.fn.Blocks() {
		for _, instr := range bb.Instrs() {
			s.bind(instr)
			if _, ok := instr.(*Unreachable); ok {
				return
			}
		}
	}
}

// bind evaluates a value and records its binding together with the
// quantified variables it depends on.
func (s *State) bind(v Value) {
	s.pending = nil
	val := v.ToSMT(s)
	if !val.IsValid() {
		return
	}
	s.idx[v] = len(s.entries)
	s.entries = append(s.entries, stateEntry{value: v, val: ValTy{Val: val, Quant: dedupVars(s.pending)}})
}

// Eval returns the binding of an already-executed value. The looked-up
// value's quantified variables propagate to the binding in progress.
func (s *State) Eval(v Value) StateValue {
	i, ok := s.idx[v]
	assert(ok, "operand not bound: %s", v.Name())
	e := s.entries[i]
	s.pending = append(s.pending, e.val.Quant...)
	return e.val.Val
}

// At returns the binding recorded for a value.
func (s *State) At(v Value) (ValTy, bool) {
	i, ok := s.idx[v]
	if !ok {
		return ValTy{}, false
	}
	return s.entries[i].val, true
}

// Each calls fn for every binding in binding order.
func (s *State) Each(fn func(v Value, val ValTy)) {
	for _, e := range s.entries {
		fn(e.value, e.val)
	}
}

// FreshQuantVar introduces a fresh universally-quantified variable.
func (s *State) FreshQuantVar(width uint) *VarExpr {
	v := NewVarExpr(fmt.Sprintf("undef!%d", s.ids.next()), width)
	s.quant = s.quant.Set(v.VarName, v)
	s.pending = append(s.pending, v)
	return v
}

// QuantVars returns the quantified variables introduced so far, ordered by
// name.
func (s *State) QuantVars() []*VarExpr {
	vars := make([]*VarExpr, 0, s.quant.Len())
	itr := s.quant.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		vars = append(vars, v.(*VarExpr))
	}
	return vars
}

// AddUB conjoins a predicate into the execution's UB predicate.
func (s *State) AddUB(e Expr) {
	s.ub = NewBinaryExpr(AND, s.ub, e)
}

// Domain returns the predicate under which execution is inside the
// semantics at the current point.
func (s *State) Domain() Expr {
	return NewBinaryExpr(AND, s.path, s.ub)
}

// AddReturn captures the function's return value under the current domain.
func (s *State) AddReturn(val StateValue) {
	assert(!s.returned, "function already returned")
	s.returned = true
	s.retDomain = s.Domain()
	s.ret = ValTy{Val: val, Quant: dedupVars(s.pending)}
}

// FnReturned returns true if execution reached a return instruction.
func (s *State) FnReturned() bool { return s.returned }

// ReturnDomain returns the domain captured at the return instruction.
func (s *State) ReturnDomain() Expr {
	assert(s.returned, "function did not return")
	return s.retDomain
}

// ReturnVal returns the value captured at the return instruction.
func (s *State) ReturnVal() ValTy {
	assert(s.returned, "function did not return")
	return s.ret
}

// dedupVars returns the variables deduplicated by name, preserving order.
func dedupVars(vars []*VarExpr) []*VarExpr {
	if len(vars) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(vars))
	out := make([]*VarExpr, 0, len(vars))
	for _, v := range vars {
		if _, ok := seen[v.VarName]; ok {
			continue
		}
		seen[v.VarName] = struct{}{}
		out = append(out, v)
	}
	return out
}

// stringComparer compares two strings. Implements immutable.Comparer.
type stringComparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b,
// and returns 0 if a is equal to b. Panic if a or b is not a string.
func (c *stringComparer) Compare(a, b interface{}) int {
	if i, j := a.(string), b.(string); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
