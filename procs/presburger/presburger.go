// Package presburger decides conjunctions of linear integer constraints.
// It is sound but deliberately incomplete: verdicts are SAT (with a
// witness), UNSAT (by GCD or interval infeasibility), or UNKNOWN when the
// bounded model search is exhausted. It never guesses.
package presburger

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/snow-ghost/fusion/core"
)

type op int

const (
	opEq op = iota
	opNeq
	opLt
	opLe
	opGt
	opGe
)

// constraint is sum(coeffs[v] * v) op rhs.
type constraint struct {
	coeffs map[string]int64
	op     op
	rhs    int64
}

// interval is an inclusive integer range used by the infeasibility check.
type interval struct{ lo, hi int64 }

var (
	varMulRe = regexp.MustCompile(`[a-z]\s*\*\s*[a-z]`)
	powerRe  = regexp.MustCompile(`\^|\*\*|\bpow\b`)
	arithRe  = regexp.MustCompile(`[+\-=<>]`)
	varRe    = regexp.MustCompile(`\b[a-z][a-z0-9_]*\b`)
	termRe   = regexp.MustCompile(`^\s*([+-]?)\s*(\d+)?\s*\*?\s*([a-z][a-z0-9_]*)?\s*`)
)

// Procedure implements core.Procedure for linear integer arithmetic.
// Stateless, safe for concurrent use.
type Procedure struct {
	priority    int
	searchBound int64
	maxVars     int
}

func New(priority int) *Procedure {
	return &Procedure{priority: priority, searchBound: 50, maxVars: 4}
}

func (p *Procedure) Name() string { return "presburger" }

func (p *Procedure) Categories() []core.Category {
	return []core.Category{core.CategoryPresburger, core.CategoryLinearArithmetic}
}

func (p *Procedure) Priority() int { return p.priority }

// CanHandle accepts linear-looking arithmetic over variables without
// variable multiplication or powers. Cheap pattern checks only.
func (p *Procedure) CanHandle(prob core.Problem, hint core.Category) bool {
	for _, c := range p.Categories() {
		if hint == c {
			return true
		}
	}
	if hint != "" && hint != core.CategoryUnknown && hint != core.CategoryGeneral {
		return false
	}
	lower := strings.ToLower(prob.Text)
	return arithRe.MatchString(lower) && varRe.MatchString(lower) &&
		!varMulRe.MatchString(lower) && !powerRe.MatchString(lower)
}

func (p *Procedure) Decide(ctx context.Context, prob core.Problem, b core.Budget) (core.SolverResult, error) {
	start := time.Now()

	constraints, vars, err := parse(prob.Text)
	if err != nil {
		return core.SolverResult{
			Verdict:     core.VerdictUnknown,
			Explanation: fmt.Sprintf("cannot parse as linear integer constraints: %v", err),
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	if reason, infeasible := checkInfeasible(constraints); infeasible {
		return core.SolverResult{
			Verdict:     core.VerdictUNSAT,
			Explanation: reason,
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	if len(vars) == 0 {
		return p.decideGround(constraints, start)
	}
	if len(vars) > p.maxVars {
		return core.SolverResult{
			Verdict:     core.VerdictUnknown,
			Explanation: fmt.Sprintf("%d variables exceed the %d-variable search limit", len(vars), p.maxVars),
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	model, found, err := p.search(ctx, constraints, vars)
	if err != nil {
		return core.SolverResult{}, err
	}
	if found {
		return core.SolverResult{
			Verdict:     core.VerdictSAT,
			Model:       model,
			Explanation: "found satisfying integer assignment by bounded search",
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	return core.SolverResult{
		Verdict:     core.VerdictUnknown,
		Explanation: fmt.Sprintf("no solution with all variables in [%d, %d]; cannot conclude unsatisfiability", -p.searchBound, p.searchBound),
		SolverName:  p.Name(),
		Elapsed:     time.Since(start),
	}, nil
}

func (p *Procedure) Explain(r core.SolverResult) string {
	switch r.Verdict {
	case core.VerdictSAT:
		if len(r.Model) > 0 {
			parts := make([]string, 0, len(r.Model))
			for _, k := range sortedKeys(r.Model) {
				parts = append(parts, fmt.Sprintf("%s=%v", k, r.Model[k]))
			}
			return "the constraints are satisfiable with " + strings.Join(parts, ", ")
		}
		return "the constraints are satisfiable"
	case core.VerdictUNSAT:
		return "the constraints are unsatisfiable: " + r.Explanation
	default:
		if r.Explanation != "" {
			return r.Explanation
		}
		return "unable to determine satisfiability"
	}
}

// decideGround evaluates constraints with no variables at all.
func (p *Procedure) decideGround(cs []constraint, start time.Time) (core.SolverResult, error) {
	for _, c := range cs {
		if !holds(c.op, 0, c.rhs) {
			return core.SolverResult{
				Verdict:     core.VerdictUNSAT,
				Explanation: "a ground constraint is false",
				SolverName:  p.Name(),
				Elapsed:     time.Since(start),
			}, nil
		}
	}
	return core.SolverResult{
		Verdict:     core.VerdictSAT,
		Explanation: "all ground constraints hold",
		SolverName:  p.Name(),
		Elapsed:     time.Since(start),
	}, nil
}

// search enumerates assignments with every variable in [-bound, bound],
// checking the context every few thousand candidates so the sandbox deadline
// is honored.
func (p *Procedure) search(ctx context.Context, cs []constraint, vars []string) (map[string]any, bool, error) {
	assignment := make(map[string]int64, len(vars))
	var steps int

	var rec func(i int) (bool, error)
	rec = func(i int) (bool, error) {
		if i == len(vars) {
			return satisfiesAll(cs, assignment), nil
		}
		for v := -p.searchBound; v <= p.searchBound; v++ {
			steps++
			if steps%4096 == 0 {
				select {
				case <-ctx.Done():
					return false, ctx.Err()
				default:
				}
			}
			assignment[vars[i]] = v
			ok, err := rec(i + 1)
			if err != nil || ok {
				return ok, err
			}
		}
		delete(assignment, vars[i])
		return false, nil
	}

	found, err := rec(0)
	if err != nil || !found {
		return nil, false, err
	}
	model := make(map[string]any, len(assignment))
	for k, v := range assignment {
		model[k] = v
	}
	return model, true, nil
}

func satisfiesAll(cs []constraint, assignment map[string]int64) bool {
	for _, c := range cs {
		var sum int64
		for v, coeff := range c.coeffs {
			sum += coeff * assignment[v]
		}
		if !holds(c.op, sum, c.rhs) {
			return false
		}
	}
	return true
}

func holds(o op, lhs, rhs int64) bool {
	switch o {
	case opEq:
		return lhs == rhs
	case opNeq:
		return lhs != rhs
	case opLt:
		return lhs < rhs
	case opLe:
		return lhs <= rhs
	case opGt:
		return lhs > rhs
	default:
		return lhs >= rhs
	}
}

// checkInfeasible applies two cheap UNSAT proofs: the GCD divisibility test
// on equalities, and integer interval analysis on single-variable bounds.
func checkInfeasible(cs []constraint) (string, bool) {
	for _, c := range cs {
		if c.op != opEq || len(c.coeffs) == 0 {
			continue
		}
		g := int64(0)
		for _, coeff := range c.coeffs {
			g = gcd(g, abs(coeff))
		}
		if g != 0 && c.rhs%g != 0 {
			return fmt.Sprintf("gcd of coefficients (%d) does not divide %d", g, c.rhs), true
		}
	}

	const inf = int64(1) << 40
	bounds := make(map[string]*interval)
	for _, c := range cs {
		if len(c.coeffs) != 1 {
			continue
		}
		var name string
		var coeff int64
		for v, k := range c.coeffs {
			name, coeff = v, k
		}
		if coeff == 0 {
			continue
		}
		iv, ok := bounds[name]
		if !ok {
			iv = &interval{lo: -inf, hi: inf}
			bounds[name] = iv
		}
		applyBound(iv, coeff, c.op, c.rhs)
		if iv.lo > iv.hi {
			return fmt.Sprintf("bounds on %s are contradictory", name), true
		}
	}
	return "", false
}

// applyBound tightens iv given coeff*x op rhs.
func applyBound(iv *interval, coeff int64, o op, rhs int64) {
	// normalize to x op' bound using integer division toward the safe side
	switch o {
	case opEq:
		if rhs%coeff == 0 {
			v := rhs / coeff
			if v > iv.lo {
				iv.lo = v
			}
			if v < iv.hi {
				iv.hi = v
			}
		} else {
			iv.lo, iv.hi = 1, 0 // no integer solution
		}
	case opLt:
		tightenUpper(iv, coeff, rhs, true)
	case opLe:
		tightenUpper(iv, coeff, rhs, false)
	case opGt:
		tightenLower(iv, coeff, rhs, true)
	case opGe:
		tightenLower(iv, coeff, rhs, false)
	}
}

func tightenUpper(iv *interval, coeff, rhs int64, strict bool) {
	if coeff < 0 {
		tightenLowerRaw(iv, -rhs, -coeff, strict)
		return
	}
	tightenUpperRaw(iv, rhs, coeff, strict)
}

func tightenLower(iv *interval, coeff, rhs int64, strict bool) {
	if coeff < 0 {
		tightenUpperRaw(iv, -rhs, -coeff, strict)
		return
	}
	tightenLowerRaw(iv, rhs, coeff, strict)
}

// tightenUpperRaw: coeff*x <(=) rhs with coeff > 0.
func tightenUpperRaw(iv *interval, rhs, coeff int64, strict bool) {
	bound := floorDiv(rhs, coeff)
	if strict && rhs%coeff == 0 {
		bound--
	}
	if bound < iv.hi {
		iv.hi = bound
	}
}

// tightenLowerRaw: coeff*x >(=) rhs with coeff > 0.
func tightenLowerRaw(iv *interval, rhs, coeff int64, strict bool) {
	bound := ceilDiv(rhs, coeff)
	if strict && rhs%coeff == 0 {
		bound++
	}
	if bound > iv.lo {
		iv.lo = bound
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
