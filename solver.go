package alive

import (
	"bytes"
	"fmt"
	"sort"
)

// Answer is the solver's verdict for a check query.
type Answer int

// Possible answers.
const (
	Unsat Answer = iota
	Sat
	Invalid
	Unknown
)

// String returns the string representation of the answer.
func (a Answer) String() string {
	switch a {
	case Unsat:
		return "unsat"
	case Sat:
		return "sat"
	case Invalid:
		return "invalid"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("Answer<%d>", int(a))
	}
}

// Result is the outcome of a single check query.
type Result struct {
	answer Answer
	model  *Model
}

// NewResult returns a result with the given answer and no model.
func NewResult(answer Answer) Result {
	assert(answer != Sat, "sat result requires a model")
	return Result{answer: answer}
}

// NewSatResult returns a satisfiable result carrying its model.
func NewSatResult(model *Model) Result {
	assert(model != nil, "sat result requires a model")
	return Result{answer: Sat, model: model}
}

// Answer returns the verdict.
func (r Result) Answer() Answer { return r.answer }

// IsSat returns true if the query was satisfiable.
func (r Result) IsSat() bool { return r.answer == Sat }

// IsUnsat returns true if the query was unsatisfiable.
func (r Result) IsUnsat() bool { return r.answer == Unsat }

// IsInvalid returns true if a malformed term was observed.
func (r Result) IsInvalid() bool { return r.answer == Invalid }

// IsUnknown returns true if the solver could not decide the query.
func (r Result) IsUnknown() bool { return r.answer == Unknown }

// Model returns the satisfying model. Panics unless the result is Sat.
func (r Result) Model() *Model {
	assert(r.IsSat(), "model requested from %s result", r.answer)
	return r.model
}

// Model is an immutable snapshot of a satisfying assignment. Snapshots are
// detached from the solver frame that produced them and stay valid after the
// frame is popped.
type Model struct {
	names  []string
	values map[string]*ConstantExpr
}

// NewModel returns a model over a copy of the given variable assignment.
func NewModel(values map[string]*ConstantExpr) *Model {
	m := &Model{
		names:  make([]string, 0, len(values)),
		values: make(map[string]*ConstantExpr, len(values)),
	}
	for name, value := range values {
		assert(value != nil, "model value cannot be nil: %s", name)
		m.names = append(m.names, name)
		m.values[name] = value
	}
	sort.Strings(m.names)
	return m
}

// Len returns the number of variables in the model.
func (m *Model) Len() int { return len(m.names) }

// Names returns the model's variable names in sorted order.
func (m *Model) Names() []string {
	names := make([]string, len(m.names))
	copy(names, m.names)
	return names
}

// Value returns the assignment for a variable name, or nil if absent.
func (m *Model) Value(name string) *ConstantExpr {
	return m.values[name]
}

// Eval returns the value bound to v. If the model does not constrain v and
// complete is true, a zero constant of v's width is returned; otherwise nil.
func (m *Model) Eval(v *VarExpr, complete bool) Expr {
	if value, ok := m.values[v.VarName]; ok {
		return value
	}
	if complete {
		return NewConstantExpr(0, v.Width)
	}
	return nil
}

// GetUint returns the model value of v as an unsigned integer.
func (m *Model) GetUint(v *VarExpr) uint64 {
	value := m.Eval(v, true).(*ConstantExpr)
	assert(value.Width <= Width64, "model value too wide: %s: %d", v.VarName, value.Width)
	return value.Value
}

// GetInt returns the model value of v as a signed integer.
func (m *Model) GetInt(v *VarExpr) int64 {
	value := m.Eval(v, true).(*ConstantExpr)
	assert(value.Width <= Width64, "model value too wide: %s: %d", v.VarName, value.Width)
	return value.Int()
}

// String returns the string representation of the model.
func (m *Model) String() string {
	var buf bytes.Buffer
	for i, name := range m.names {
		if i > 0 {
			buf.WriteRune(' ')
		}
		fmt.Fprintf(&buf, "%s=%s", name, m.values[name])
	}
	return buf.String()
}

// Query pairs an expression with a callback invoked if it is satisfiable.
type Query struct {
	Expr  Expr
	OnSat func(m *Model)
}

// Scope is a handle to a pushed solver frame. Closing the handle pops exactly
// one frame; scopes must be closed in reverse order of acquisition.
type Scope interface {
	Close()
}

// Solver represents an incremental SMT solver holding an assertion stack.
type Solver interface {
	// Add asserts an expression into the current frame.
	Add(e Expr)

	// Push begins a scoped frame.
	Push() Scope

	// Reset discards all assertions.
	Reset()

	// Check reports whether the current assertions are satisfiable.
	Check() Result

	// CheckEach runs each query in its own frame, invoking its callback on
	// Sat. Trivially-false queries skip the underlying engine.
	CheckEach(queries ...Query)

	// Block asserts that at least one variable of the model takes a
	// different value, excluding the model from future checks.
	Block(m *Model)

	// Close releases the solver.
	Close() error
}

// Session constructs solvers against a shared engine context.
type Session interface {
	NewSolver() Solver
	Close() error
}

// session is the process-global solver session.
var session Session

// Init installs the process-wide solver session. It must be called before any
// solver is requested and is not re-entrant.
func Init(s Session) {
	assert(session == nil, "solver session already initialized")
	assert(s != nil, "solver session cannot be nil")
	session = s
}

// Destroy tears down the process-wide solver session.
func Destroy() {
	assert(session != nil, "solver session not initialized")
	session.Close()
	session = nil
}

// NewSolver returns a fresh solver from the process-wide session.
func NewSolver() Solver {
	assert(session != nil, "solver session not initialized")
	return session.NewSolver()
}

// smtQueries controls whether solvers issue real queries. When disabled,
// Check returns Unknown without calling the underlying engine.
var smtQueries = true

// SMTQueriesEnabled reports whether solver queries are currently enabled.
func SMTQueriesEnabled() bool { return smtQueries }

// SetSMTQueries sets the query toggle and returns a function restoring the
// previous value, so overrides nest like a stack.
func SetSMTQueries(enabled bool) (restore func()) {
	old := smtQueries
	smtQueries = enabled
	return func() { smtQueries = old }
}
