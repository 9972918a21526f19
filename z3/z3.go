// Package z3 implements the solver facade on top of an embedded Z3 solver.
package z3

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"time"
	"unsafe"

	alive "github.com/AbigailBuccaneer/alive2"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// Ensure the facade implements the interfaces.
var (
	_ alive.Session = (*Session)(nil)
	_ alive.Solver  = (*Solver)(nil)
	_ alive.Scope   = (*Scope)(nil)
)

// Stats aggregates counters across every solver of the process.
type Stats struct {
	QueryN    int
	SatN      int
	UnsatN    int
	UnknownN  int
	InvalidN  int
	TrivialN  int
	SolveTime time.Duration
}

var stats Stats

// ResetStats clears the aggregate counters.
func ResetStats() {
	stats = Stats{}
}

// PrintStats writes the aggregate counters to w.
func PrintStats(w io.Writer) {
	fmt.Fprintf(w, "queries: %d (sat: %d, unsat: %d, unknown: %d, invalid: %d, trivial: %d)\n",
		stats.QueryN, stats.SatN, stats.UnsatN, stats.UnknownN, stats.InvalidN, stats.TrivialN)
	fmt.Fprintf(w, "solve time: %s\n", stats.SolveTime)
}

var printQueries bool

// PrintQueries toggles logging of every checked query.
func PrintQueries(yes bool) {
	printQueries = yes
}

// TacticVerbose toggles verbose output from the underlying solver tactics.
func TacticVerbose(yes bool) {
	value := "0"
	if yes {
		value = "10"
	}
	key := C.CString("verbose")
	defer C.free(unsafe.Pointer(key))
	cvalue := C.CString(value)
	defer C.free(unsafe.Pointer(cvalue))
	C.Z3_global_param_set(key, cvalue)
}

// Session owns a Z3 context and constructs solvers against it.
type Session struct {
	ctx *Context
}

// NewSession returns a new instance of Session.
func NewSession() *Session {
	return &Session{ctx: NewContext()}
}

// NewSolver returns a fresh solver sharing the session's context.
func (s *Session) NewSolver() alive.Solver {
	raw := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		panic(err)
	}
	C.Z3_solver_inc_ref(s.ctx.raw, raw)
	return &Solver{ctx: s.ctx, raw: raw}
}

// Close deletes the underlying Z3 context.
func (s *Session) Close() error {
	return s.ctx.Close()
}

// Solver implements the assertion-stack facade over a Z3 solver.
type Solver struct {
	ctx   *Context
	raw   C.Z3_solver
	depth int

	// invalid latches once a malformed term is observed; every later
	// check returns Invalid without consulting the engine.
	invalid bool
}

// Add asserts an expression into the current frame.
func (s *Solver) Add(e alive.Expr) {
	if s.invalid {
		return
	}
	ast, err := s.ctx.toAST(e)
	if err != nil {
		log.Printf("z3: invalid term: %s", err)
		s.invalid = true
		return
	}
	C.Z3_solver_assert(s.ctx.raw, s.raw, ast)
	if err := s.ctx.err("Z3_solver_assert"); err != nil {
		log.Printf("z3: invalid term: %s", err)
		s.invalid = true
	}
}

// Push begins a scoped frame. Closing the returned scope pops exactly one
// frame; scopes must close in reverse order of acquisition.
func (s *Solver) Push() alive.Scope {
	C.Z3_solver_push(s.ctx.raw, s.raw)
	s.depth++
	return &Scope{s: s, depth: s.depth}
}

// Scope is a handle to a pushed solver frame.
type Scope struct {
	s     *Solver
	depth int
}

// Close pops the scope's frame.
func (sc *Scope) Close() {
	if sc.s.depth != sc.depth {
		panic(fmt.Sprintf("z3: out-of-order scope close: depth=%d, expected %d", sc.s.depth, sc.depth))
	}
	C.Z3_solver_pop(sc.s.ctx.raw, sc.s.raw, 1)
	sc.s.depth--
}

// Reset discards all assertions.
func (s *Solver) Reset() {
	C.Z3_solver_reset(s.ctx.raw, s.raw)
	s.depth = 0
}

// Check reports whether the current assertions are satisfiable. When solver
// queries are disabled the engine is not consulted and Unknown is returned.
func (s *Solver) Check() alive.Result {
	if s.invalid {
		stats.InvalidN++
		return alive.NewResult(alive.Invalid)
	}
	if !alive.SMTQueriesEnabled() {
		return alive.NewResult(alive.Unknown)
	}

	t := time.Now()
	defer func() {
		stats.QueryN++
		stats.SolveTime += time.Since(t)
	}()

	switch ret := C.Z3_solver_check(s.ctx.raw, s.raw); ret {
	case C.Z3_L_FALSE:
		stats.UnsatN++
		return alive.NewResult(alive.Unsat)
	case C.Z3_L_UNDEF:
		stats.UnknownN++
		return alive.NewResult(alive.Unknown)
	default:
		stats.SatN++
		raw := C.Z3_solver_get_model(s.ctx.raw, s.raw)
		if err := s.ctx.err("Z3_solver_get_model"); err != nil {
			panic(err)
		}
		C.Z3_model_inc_ref(s.ctx.raw, raw)
		defer C.Z3_model_dec_ref(s.ctx.raw, raw)
		return alive.NewSatResult(s.ctx.snapshotModel(raw))
	}
}

// CheckEach runs each query in its own frame, invoking its callback on Sat.
// Trivially-false queries skip the engine; trivially-true queries invoke the
// callback with an empty model.
func (s *Solver) CheckEach(queries ...alive.Query) {
	for _, q := range queries {
		if alive.IsConstantFalse(q.Expr) {
			stats.TrivialN++
			continue
		}
		if alive.IsConstantTrue(q.Expr) {
			stats.TrivialN++
			if q.OnSat != nil {
				q.OnSat(alive.NewModel(nil))
			}
			continue
		}

		func() {
			sc := s.Push()
			defer sc.Close()
			s.Add(q.Expr)
			if printQueries {
				log.Printf("z3: query: %s", q.Expr)
			}
			if r := s.Check(); r.IsSat() && q.OnSat != nil {
				q.OnSat(r.Model())
			}
		}()
	}
}

// Block asserts that at least one variable of the model takes a different
// value. Blocking an empty model makes the assertions unsatisfiable.
func (s *Solver) Block(m *alive.Model) {
	e := alive.Expr(alive.NewBoolConstantExpr(false))
	for _, name := range m.Names() {
		value := m.Value(name)
		e = alive.NewBinaryExpr(alive.OR, e,
			alive.NewBinaryExpr(alive.NE, alive.NewVarExpr(name, value.Width), value))
	}
	s.Add(e)
}

// Close releases the solver.
func (s *Solver) Close() error {
	C.Z3_solver_dec_ref(s.ctx.raw, s.raw)
	return s.ctx.err("Z3_solver_dec_ref")
}

// Context represents a Z3 context object that is used for constructing
// expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// snapshotModel eagerly copies the model's variable assignments so the
// returned model stays valid after its solver frame is popped.
func (ctx *Context) snapshotModel(m C.Z3_model) *alive.Model {
	values := make(map[string]*alive.ConstantExpr)

	n := uint(C.Z3_model_get_num_consts(ctx.raw, m))
	for i := uint(0); i < n; i++ {
		decl := C.Z3_model_get_const_decl(ctx.raw, m, C.uint(i))
		if err := ctx.err("Z3_model_get_const_decl"); err != nil {
			panic(err)
		}

		symbol := C.Z3_get_decl_name(ctx.raw, decl)
		if C.Z3_get_symbol_kind(ctx.raw, symbol) != C.Z3_STRING_SYMBOL {
			continue
		}
		name := C.GoString(C.Z3_get_symbol_string(ctx.raw, symbol))

		value := C.Z3_model_get_const_interp(ctx.raw, m, decl)
		if value == nil {
			continue
		}

		sort := C.Z3_get_sort(ctx.raw, value)
		switch C.Z3_get_sort_kind(ctx.raw, sort) {
		case C.Z3_BOOL_SORT:
			values[name] = alive.NewBoolConstantExpr(C.Z3_get_bool_value(ctx.raw, value) == C.Z3_L_TRUE)
		case C.Z3_BV_SORT:
			width := uint(C.Z3_get_bv_sort_size(ctx.raw, sort))
			if width > alive.Width64 {
				continue
			}
			str := C.GoString(C.Z3_get_numeral_string(ctx.raw, value))
			if err := ctx.err("Z3_get_numeral_string"); err != nil {
				panic(err)
			}
			num, err := strconv.ParseUint(str, 10, 64)
			if err != nil {
				panic(fmt.Sprintf("z3: malformed numeral %q: %s", str, err))
			}
			values[name] = alive.NewConstantExpr(num, width)
		}
	}

	return alive.NewModel(values)
}

// toAST returns a new Z3_ast from an expression. Width-1 expressions use the
// boolean sort.
func (ctx *Context) toAST(expr alive.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *alive.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *alive.VarExpr:
		return ctx.toVarAST(expr)
	case *alive.ConcatExpr:
		return ctx.toConcatAST(expr)
	case *alive.ExtractExpr:
		return ctx.toExtractAST(expr)
	case *alive.CastExpr:
		return ctx.toCastAST(expr)
	case *alive.NotExpr:
		return ctx.toNotAST(expr)
	case *alive.IteExpr:
		return ctx.toIteAST(expr)
	case *alive.ForallExpr:
		return ctx.toForallAST(expr)
	case *alive.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression type: %T", expr)
	}
}

func (ctx *Context) toConstantAST(expr *alive.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == alive.WidthBool {
		if expr.IsTrue() {
			return ctx.makeTrue()
		}
		return ctx.makeFalse()
	} else if expr.Width <= alive.Width64 {
		return ctx.makeUint64(expr.Width, expr.Value)
	}
	return nil, fmt.Errorf("z3.Context.toConstantAST: invalid expression width: %d", expr.Width)
}

func (ctx *Context) toVarAST(expr *alive.VarExpr) (C.Z3_ast, error) {
	var sort C.Z3_sort
	var err error
	if expr.Width == alive.WidthBool {
		sort = C.Z3_mk_bool_sort(ctx.raw)
		if err = ctx.err("Z3_mk_bool_sort"); err != nil {
			return nil, err
		}
	} else {
		sort, err = ctx.makeBVSort(expr.Width)
		if err != nil {
			return nil, err
		}
	}

	cname := C.CString(expr.VarName)
	defer C.free(unsafe.Pointer(cname))
	symbol := C.Z3_mk_string_symbol(ctx.raw, cname)
	return C.Z3_mk_const(ctx.raw, symbol, sort), ctx.err("Z3_mk_const")
}

func (ctx *Context) toConcatAST(expr *alive.ConcatExpr) (C.Z3_ast, error) {
	msb, err := ctx.toBVAST(expr.MSB)
	if err != nil {
		return nil, err
	}
	lsb, err := ctx.toBVAST(expr.LSB)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_concat(ctx.raw, msb, lsb), ctx.err("Z3_mk_concat")
}

// toBVAST converts an expression, coercing width-1 booleans into one-bit
// vectors so they compose with bit-vector operations.
func (ctx *Context) toBVAST(expr alive.Expr) (C.Z3_ast, error) {
	ast, err := ctx.toAST(expr)
	if err != nil {
		return nil, err
	}
	if alive.ExprWidth(expr) != alive.WidthBool {
		return ast, nil
	}

	one, err := ctx.makeUint64(1, 1)
	if err != nil {
		return nil, err
	}
	zero, err := ctx.makeUint64(1, 0)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, ast, one, zero), ctx.err("Z3_mk_ite")
}

func (ctx *Context) toExtractAST(expr *alive.ExtractExpr) (C.Z3_ast, error) {
	src, err := ctx.toBVAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If extracting a single bit, use an EQ expression to convert to bool sort.
	if expr.Width == 1 {
		extractExpr := C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset), C.uint(expr.Offset), src)
		if err := ctx.err("Z3_mk_extract[bool]"); err != nil {
			return nil, err
		}
		one, err := ctx.makeUint64(1, 1)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_eq(ctx.raw, extractExpr, one), ctx.err("Z3_mk_eq")
	}

	return C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset+expr.Width-1), C.uint(expr.Offset), src), ctx.err("Z3_mk_extract")
}

func (ctx *Context) toCastAST(expr *alive.CastExpr) (C.Z3_ast, error) {
	if expr.Signed {
		return ctx.toSignedCastAST(expr)
	}
	return ctx.toUnsignedCastAST(expr)
}

func (ctx *Context) toSignedCastAST(expr *alive.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	// Convert boolean cast to if-then-else expression.
	if alive.ExprWidth(expr.Src) == alive.WidthBool {
		minusOne := int64(-1)
		whenTrue, err := ctx.makeUint64(expr.Width, uint64(minusOne))
		if err != nil {
			return nil, err
		}
		whenFalse, err := ctx.makeUint64(expr.Width, 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, src, whenTrue, whenFalse), ctx.err("Z3_mk_ite")
	}

	// Otherwise return sign-extension.
	return C.Z3_mk_sign_ext(ctx.raw, C.uint(expr.Width-uint(ctx.bvSize(src))), src), ctx.err("Z3_mk_sign_ext")
}

func (ctx *Context) toUnsignedCastAST(expr *alive.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	// Convert boolean cast to if-then-else expression.
	if alive.ExprWidth(expr.Src) == alive.WidthBool {
		whenTrue, err := ctx.makeUint64(expr.Width, 1)
		if err != nil {
			return nil, err
		}
		whenFalse, err := ctx.makeUint64(expr.Width, 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, src, whenTrue, whenFalse), ctx.err("Z3_mk_ite")
	}

	// Otherwise return zero-padding bit vector.
	padding, err := ctx.makeUint64(expr.Width-ctx.bvSize(src), 0)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_concat(ctx.raw, padding, src), ctx.err("Z3_mk_concat")
}

func (ctx *Context) toNotAST(expr *alive.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If boolean, use boolean NOT operation.
	if alive.ExprWidth(expr.Expr) == alive.WidthBool {
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
}

func (ctx *Context) toIteAST(expr *alive.IteExpr) (C.Z3_ast, error) {
	cond, err := ctx.toAST(expr.Cond)
	if err != nil {
		return nil, err
	}
	then, err := ctx.toAST(expr.Then)
	if err != nil {
		return nil, err
	}
	els, err := ctx.toAST(expr.Else)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
}

func (ctx *Context) toForallAST(expr *alive.ForallExpr) (C.Z3_ast, error) {
	bound := make([]C.Z3_app, len(expr.Vars))
	for i, v := range expr.Vars {
		ast, err := ctx.toVarAST(v)
		if err != nil {
			return nil, err
		}
		bound[i] = C.Z3_to_app(ctx.raw, ast)
		if err := ctx.err("Z3_to_app"); err != nil {
			return nil, err
		}
	}

	body, err := ctx.toAST(expr.Body)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_forall_const(ctx.raw, 0, C.uint(len(bound)), &bound[0], 0, nil, body), ctx.err("Z3_mk_forall_const")
}

func (ctx *Context) toBinaryAST(expr *alive.BinaryExpr) (C.Z3_ast, error) {
	// AND, OR, XOR and EQ have boolean forms at width 1; the remaining
	// operators only ever see bit-vector operands because the expression
	// constructors rewrite their boolean cases.
	boolOperands := alive.ExprWidth(expr.LHS) == alive.WidthBool

	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case alive.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case alive.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case alive.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case alive.UDIV:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case alive.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case alive.UREM:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case alive.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case alive.AND:
		if boolOperands {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		}
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case alive.OR:
		if boolOperands {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
		}
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case alive.XOR:
		if boolOperands {
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		}
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case alive.SHL:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case alive.LSHR:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case alive.ASHR:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case alive.EQ:
		if boolOperands {
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		}
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case alive.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case alive.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case alive.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case alive.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
}

func (ctx *Context) makeTrue() (C.Z3_ast, error) {
	return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
}

func (ctx *Context) makeFalse() (C.Z3_ast, error) {
	return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
}

func (ctx *Context) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), t), ctx.err("Z3_mk_unsigned_int64")
}

func (ctx *Context) bvSize(expr C.Z3_ast) uint {
	t := C.Z3_get_sort(ctx.raw, expr)
	if err := ctx.err("Z3_get_sort"); err != nil {
		panic(err)
	}
	sz := uint(C.Z3_get_bv_sort_size(ctx.raw, t))
	if err := ctx.err("Z3_get_bv_sort_size"); err != nil {
		panic(err)
	}
	return sz
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}
