package presburger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// reserved words that may appear between constraints but are not variables.
var reserved = map[string]bool{"and": true}

// parse turns "2*x + 3 <= y - 1 and x > 0" into canonical constraints.
// Only conjunctions are supported; "or", quantifiers, or anything nonlinear
// is a parse error (the caller maps that to UNKNOWN, never a wrong verdict).
func parse(text string) ([]constraint, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil, nil, fmt.Errorf("empty input")
	}
	if strings.Contains(lower, " or ") || strings.Contains(lower, "forall") || strings.Contains(lower, "exists") {
		return nil, nil, fmt.Errorf("disjunctions and quantifiers are not supported")
	}

	lower = strings.ReplaceAll(lower, "&&", " and ")
	parts := strings.Split(lower, " and ")

	varSet := make(map[string]bool)
	constraints := make([]constraint, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseConstraint(part, varSet)
		if err != nil {
			return nil, nil, err
		}
		constraints = append(constraints, c)
	}
	if len(constraints) == 0 {
		return nil, nil, fmt.Errorf("no constraints found")
	}

	vars := make([]string, 0, len(varSet))
	for v := range varSet {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return constraints, vars, nil
}

func parseConstraint(text string, varSet map[string]bool) (constraint, error) {
	operator, symbol, err := splitComparison(text)
	if err != nil {
		return constraint{}, err
	}
	sides := strings.SplitN(text, symbol, 2)
	if len(sides) != 2 {
		return constraint{}, fmt.Errorf("malformed constraint %q", text)
	}

	lhsCoeffs, lhsConst, err := parseLinear(sides[0], varSet)
	if err != nil {
		return constraint{}, err
	}
	rhsCoeffs, rhsConst, err := parseLinear(sides[1], varSet)
	if err != nil {
		return constraint{}, err
	}

	// move everything to the left: lhs - rhs op rhsConst - lhsConst
	coeffs := make(map[string]int64, len(lhsCoeffs)+len(rhsCoeffs))
	for v, k := range lhsCoeffs {
		coeffs[v] += k
	}
	for v, k := range rhsCoeffs {
		coeffs[v] -= k
	}
	for v, k := range coeffs {
		if k == 0 {
			delete(coeffs, v)
		}
	}
	return constraint{coeffs: coeffs, op: operator, rhs: rhsConst - lhsConst}, nil
}

// splitComparison finds the (single) comparison operator, longest first.
func splitComparison(text string) (op, string, error) {
	for _, cand := range []struct {
		symbol string
		op     op
	}{
		{"<=", opLe}, {">=", opGe}, {"!=", opNeq}, {"==", opEq},
		{"<", opLt}, {">", opGt}, {"=", opEq},
	} {
		if strings.Contains(text, cand.symbol) {
			if strings.Count(text, cand.symbol) > 1 {
				return 0, "", fmt.Errorf("chained comparisons in %q are not supported", text)
			}
			return cand.op, cand.symbol, nil
		}
	}
	return 0, "", fmt.Errorf("no comparison operator in %q", text)
}

// parseLinear parses one side of a comparison into variable coefficients and
// a constant. Accepts "2x", "2*x", "x", and bare integers, joined by + or -.
func parseLinear(text string, varSet map[string]bool) (map[string]int64, int64, error) {
	coeffs := make(map[string]int64)
	var constant int64

	rest := strings.TrimSpace(text)
	if rest == "" {
		return nil, 0, fmt.Errorf("empty expression")
	}
	first := true
	for rest != "" {
		m := termRe.FindStringSubmatch(rest)
		if m == nil || m[0] == "" || (m[2] == "" && m[3] == "") {
			return nil, 0, fmt.Errorf("cannot parse term near %q", rest)
		}
		if !first && m[1] == "" {
			return nil, 0, fmt.Errorf("missing operator before %q", rest)
		}
		first = false

		sign := int64(1)
		if m[1] == "-" {
			sign = -1
		}
		coeff := int64(1)
		if m[2] != "" {
			n, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				return nil, 0, fmt.Errorf("bad coefficient %q: %w", m[2], err)
			}
			coeff = n
		}

		switch {
		case m[3] == "":
			constant += sign * coeff
		case reserved[m[3]]:
			return nil, 0, fmt.Errorf("unexpected keyword %q", m[3])
		default:
			coeffs[m[3]] += sign * coeff
			varSet[m[3]] = true
		}

		rest = strings.TrimSpace(rest[len(m[0]):])
	}
	return coeffs, constant, nil
}
