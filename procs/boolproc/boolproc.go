// Package boolproc decides propositional formulas by truth-table
// enumeration. Complete for formulas with a small variable count; larger
// formulas get UNKNOWN rather than a partial search verdict.
package boolproc

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/snow-ghost/fusion/core"
)

const maxVariables = 16

var (
	arithmeticRe = regexp.MustCompile(`[+\-*/^<>]|\d`)
	connectiveRe = regexp.MustCompile(`\b(?:and|or|not|implies)\b`)
)

type Procedure struct {
	priority int
}

func New(priority int) *Procedure {
	return &Procedure{priority: priority}
}

func (p *Procedure) Name() string { return "boolsat" }

func (p *Procedure) Categories() []core.Category {
	return []core.Category{core.CategoryBooleanLogic}
}

func (p *Procedure) Priority() int { return p.priority }

// CanHandle accepts formulas with boolean connectives and no arithmetic.
func (p *Procedure) CanHandle(prob core.Problem, hint core.Category) bool {
	if hint == core.CategoryBooleanLogic {
		return true
	}
	if hint != "" && hint != core.CategoryUnknown && hint != core.CategoryGeneral {
		return false
	}
	lower := strings.ToLower(prob.Text)
	return connectiveRe.MatchString(lower) && !arithmeticRe.MatchString(lower)
}

func (p *Procedure) Decide(ctx context.Context, prob core.Problem, b core.Budget) (core.SolverResult, error) {
	start := time.Now()

	expr, vars, err := parseFormula(prob.Text)
	if err != nil {
		return core.SolverResult{
			Verdict:     core.VerdictUnknown,
			Explanation: fmt.Sprintf("cannot parse propositional formula: %v", err),
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}
	if len(vars) > maxVariables {
		return core.SolverResult{
			Verdict:     core.VerdictUnknown,
			Explanation: fmt.Sprintf("%d variables exceed the %d-variable enumeration limit", len(vars), maxVariables),
			SolverName:  p.Name(),
			Elapsed:     time.Since(start),
		}, nil
	}

	assignment := make(map[string]bool, len(vars))
	total := 1 << len(vars)
	for mask := 0; mask < total; mask++ {
		if mask%1024 == 0 {
			select {
			case <-ctx.Done():
				return core.SolverResult{}, ctx.Err()
			default:
			}
		}
		for i, v := range vars {
			assignment[v] = mask&(1<<i) != 0
		}
		if expr.eval(assignment) {
			model := make(map[string]any, len(vars))
			for _, v := range vars {
				model[v] = assignment[v]
			}
			return core.SolverResult{
				Verdict:     core.VerdictSAT,
				Model:       model,
				Explanation: "found satisfying truth assignment",
				SolverName:  p.Name(),
				Elapsed:     time.Since(start),
			}, nil
		}
	}

	return core.SolverResult{
		Verdict:     core.VerdictUNSAT,
		Explanation: fmt.Sprintf("all %d truth assignments falsify the formula", total),
		SolverName:  p.Name(),
		Elapsed:     time.Since(start),
	}, nil
}

func (p *Procedure) Explain(r core.SolverResult) string {
	switch r.Verdict {
	case core.VerdictSAT:
		if len(r.Model) > 0 {
			keys := make([]string, 0, len(r.Model))
			for k := range r.Model {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, r.Model[k]))
			}
			return "the formula is satisfiable with " + strings.Join(parts, ", ")
		}
		return "the formula is satisfiable"
	case core.VerdictUNSAT:
		return "the formula is unsatisfiable: " + r.Explanation
	default:
		if r.Explanation != "" {
			return r.Explanation
		}
		return "unable to determine satisfiability"
	}
}
