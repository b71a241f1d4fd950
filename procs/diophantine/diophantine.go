// Package diophantine decides linear Diophantine equations a*x + b*y = c by
// the GCD criterion, producing a concrete witness via the extended Euclidean
// algorithm. Higher-degree equations are accepted by CanHandle but answered
// UNKNOWN: solvability there is a property this plugin does not claim.
package diophantine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/snow-ghost/fusion/core"
)

var (
	powerRe = regexp.MustCompile(`\^|\*\*|[a-z]\s*\*\s*[a-z]`)
	// a*x + b*y = c with optional "*" and optional coefficients
	linearRe = regexp.MustCompile(`^\s*(-?\d*)\s*\*?\s*([a-z][a-z0-9_]*)\s*([+-])\s*(\d*)\s*\*?\s*([a-z][a-z0-9_]*)\s*=\s*(-?\d+)\s*$`)
	// a*x = c
	singleRe  = regexp.MustCompile(`^\s*(-?\d*)\s*\*?\s*([a-z][a-z0-9_]*)\s*=\s*(-?\d+)\s*$`)
	intHintRe = regexp.MustCompile(`\bint(?:eger)?s?\b`)
)

type Procedure struct {
	priority int
}

func New(priority int) *Procedure {
	return &Procedure{priority: priority}
}

func (p *Procedure) Name() string { return "diophantine" }

func (p *Procedure) Categories() []core.Category {
	return []core.Category{core.CategoryDiophantine, core.CategoryNonlinearArithmetic}
}

func (p *Procedure) Priority() int { return p.priority }

// CanHandle looks for an equation with either polynomial terms or an
// explicit integer hint, mirroring the category it declares.
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
	hasEquals := strings.Contains(lower, "=") && !strings.Contains(lower, "!=")
	return hasEquals && (powerRe.MatchString(lower) || intHintRe.MatchString(lower) || linearRe.MatchString(lower))
}

func (p *Procedure) Decide(ctx context.Context, prob core.Problem, b core.Budget) (core.SolverResult, error) {
	start := time.Now()
	text := strings.ToLower(strings.TrimSpace(prob.Text))

	if m := linearRe.FindStringSubmatch(text); m != nil {
		return p.decideLinear(m, start)
	}
	if m := singleRe.FindStringSubmatch(text); m != nil {
		return p.decideSingle(m, start)
	}

	return core.SolverResult{
		Verdict:     core.VerdictUnknown,
		Explanation: "equation is beyond the linear Diophantine fragment this procedure decides",
		SolverName:  p.Name(),
		Elapsed:     time.Since(start),
	}, nil
}

// decideLinear handles a*x + b*y = c: solvable iff gcd(a,b) divides c, with
// a witness scaled from the extended Euclidean coefficients.
func (p *Procedure) decideLinear(m []string, start time.Time) (core.SolverResult, error) {
	a := parseCoeff(m[1])
	xVar := m[2]
	b := parseCoeff(m[4])
	if m[3] == "-" {
		b = -b
	}
	yVar := m[5]
	c, _ := strconv.ParseInt(m[6], 10, 64)

	if xVar == yVar {
		return core.SolverResult{
			Verdict:     core.VerdictUnknown,
			Explanation: "repeated variable on the left-hand side",
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	if a == 0 && b == 0 {
		verdict := core.VerdictUNSAT
		explanation := fmt.Sprintf("0 = %d has no solutions", c)
		if c == 0 {
			verdict = core.VerdictSAT
			explanation = "trivially satisfied"
		}
		return core.SolverResult{
			Verdict:     verdict,
			Explanation: explanation,
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	g, x0, y0 := extendedGCD(a, b)
	if c%g != 0 {
		return core.SolverResult{
			Verdict:     core.VerdictUNSAT,
			Explanation: fmt.Sprintf("no integer solutions: gcd(%d, %d) = %d does not divide %d", a, b, g, c),
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	scale := c / g
	witness := map[string]any{xVar: x0 * scale, yVar: y0 * scale}
	return core.SolverResult{
		Verdict:     core.VerdictSAT,
		Model:       witness,
		Explanation: fmt.Sprintf("%d*%s + %d*%s = %d has integer solutions (gcd %d divides %d)", a, xVar, b, yVar, c, g, c),
		SolverName:  p.Name(),
		Elapsed:     time.Since(start),
	}, nil
}

// decideSingle handles a*x = c.
func (p *Procedure) decideSingle(m []string, start time.Time) (core.SolverResult, error) {
	a := parseCoeff(m[1])
	xVar := m[2]
	c, _ := strconv.ParseInt(m[3], 10, 64)

	if a == 0 {
		verdict := core.VerdictUNSAT
		if c == 0 {
			verdict = core.VerdictSAT
		}
		return core.SolverResult{
			Verdict:    verdict,
			SolverName: p.Name(),
			Elapsed:    time.Since(start),
		}, nil
	}
	if c%a != 0 {
		return core.SolverResult{
			Verdict:     core.VerdictUNSAT,
			Explanation: fmt.Sprintf("%d does not divide %d", a, c),
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}
	return core.SolverResult{
		Verdict:     core.VerdictSAT,
		Model:       map[string]any{xVar: c / a},
		Explanation: fmt.Sprintf("%s = %d", xVar, c/a),
		SolverName:  p.Name(),
		Elapsed:     time.Since(start),
	}, nil
}

func (p *Procedure) Explain(r core.SolverResult) string {
	switch r.Verdict {
	case core.VerdictSAT:
		return "the equation has integer solutions. " + r.Explanation
	case core.VerdictUNSAT:
		return "the equation has no integer solutions. " + r.Explanation
	default:
		if r.Explanation != "" {
			return r.Explanation
		}
		return "unable to determine whether integer solutions exist"
	}
}

func parseCoeff(s string) int64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "+":
		return 1
	case "-":
		return -1
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// extendedGCD returns g = gcd(a, b) and x, y with a*x + b*y = g. The
// returned g is positive for nonzero inputs.
func extendedGCD(a, b int64) (g, x, y int64) {
	if b == 0 {
		if a < 0 {
			return -a, -1, 0
		}
		return a, 1, 0
	}
	g, x1, y1 := extendedGCD(b, a%b)
	return g, y1, x1 - (a/b)*y1
}
