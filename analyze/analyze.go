// Package analyze classifies decision problems with rule-based heuristics
// and recommends an ordered procedure strategy.
package analyze

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snow-ghost/fusion/core"
)

var (
	powerRe      = regexp.MustCompile(`\^|\*\*|\bpow\b`)
	varMulRe     = regexp.MustCompile(`[a-z]\s*\*\s*[a-z]`)
	addSubRe     = regexp.MustCompile(`[+\-]`)
	compareRe    = regexp.MustCompile(`[<>]=?|!=|=`)
	arithmeticRe = regexp.MustCompile(`[+\-*/]`)
	variableRe   = regexp.MustCompile(`\b[a-z]\b`)
	intHintRe    = regexp.MustCompile(`\bint(?:eger)?s?\b`)
	boolWordRe   = regexp.MustCompile(`\b(?:and|or|not|implies|true|false)\b`)
)

// Analyzer implements core.Analyzer. Classification is deterministic: the
// category checks below run in a fixed precedence order (diophantine,
// presburger, nonlinear, linear, boolean, unknown), so equally plausible
// inputs always resolve the same way across runs.
type Analyzer struct {
	fallback string
	cache    *lru.Cache[string, core.AnalysisResult]
	reporter CacheReporter
}

// CacheReporter receives cache hit/miss notifications; satisfied by
// pkg/metrics.PrometheusMetrics.
type CacheReporter interface {
	RecordCacheHit()
	RecordCacheMiss()
}

type Option func(*Analyzer)

// WithCache memoizes analysis results keyed by problem text. Off unless
// explicitly configured; Analyze is cheap enough for most callers.
func WithCache(size int) Option {
	return func(a *Analyzer) {
		if c, err := lru.New[string, core.AnalysisResult](size); err == nil {
			a.cache = c
		}
	}
}

// WithFallbackProcedure sets the name of the general-purpose procedure
// appended to every recommendation list.
func WithFallbackProcedure(name string) Option {
	return func(a *Analyzer) { a.fallback = name }
}

// WithCacheMetrics reports cache hits and misses. Only meaningful together
// with WithCache.
func WithCacheMetrics(r CacheReporter) Option {
	return func(a *Analyzer) { a.reporter = r }
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{fallback: "smt"}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Analyzer) Analyze(p core.Problem) core.AnalysisResult {
	if a.cache != nil {
		if res, ok := a.cache.Get(p.Text); ok {
			if a.reporter != nil {
				a.reporter.RecordCacheHit()
			}
			return res
		}
		if a.reporter != nil {
			a.reporter.RecordCacheMiss()
		}
	}
	res := a.classify(p.Text)
	if a.cache != nil {
		a.cache.Add(p.Text, res)
	}
	return res
}

func (a *Analyzer) classify(text string) core.AnalysisResult {
	lower := strings.ToLower(text)

	hasPower := powerRe.MatchString(lower)
	hasVarMul := varMulRe.MatchString(lower)
	hasAddSub := addSubRe.MatchString(text)
	hasCompare := compareRe.MatchString(text)
	hasEquals := strings.Contains(text, "=") && !strings.Contains(text, "!=")
	hasArith := arithmeticRe.MatchString(text)
	hasVars := variableRe.MatchString(lower)
	hasIntHint := intHintRe.MatchString(lower)
	hasBoolWords := boolWordRe.MatchString(lower)

	var (
		category  core.Category
		cues      int
		rationale string
	)

	switch {
	case (hasPower || hasVarMul || hasIntHint) && hasEquals && hasVars:
		category = core.CategoryDiophantine
		cues = countTrue(hasPower, hasVarMul, hasEquals, hasIntHint)
		rationale = "polynomial equation over integer variables"
	case hasAddSub && hasCompare && hasVars && !hasVarMul && !hasPower:
		category = core.CategoryPresburger
		cues = countTrue(hasAddSub, hasCompare, hasVars, hasEquals)
		rationale = "linear integer arithmetic without variable multiplication"
	case hasPower || hasVarMul:
		category = core.CategoryNonlinearArithmetic
		cues = countTrue(hasPower, hasVarMul, hasCompare)
		rationale = "nonlinear arithmetic terms present"
	case hasArith && hasCompare && hasVars:
		category = core.CategoryLinearArithmetic
		cues = countTrue(hasArith, hasCompare, hasVars)
		rationale = "linear arithmetic with comparisons"
	case hasBoolWords && !hasArith:
		category = core.CategoryBooleanLogic
		cues = countTrue(hasBoolWords, hasVars, strings.Contains(lower, "implies"))
		rationale = "boolean connectives without arithmetic"
	default:
		category = core.CategoryUnknown
		cues = 0
		rationale = "no category heuristic matched"
	}

	return core.AnalysisResult{
		Category:    category,
		Confidence:  confidence(category, cues),
		Complexity:  complexity(text, hasPower || hasVarMul),
		Recommended: a.recommend(category),
		Rationale:   fmt.Sprintf("%s (%d agreeing cues)", rationale, cues),
	}
}

// confidence grows with the number of independently agreeing cues, capped
// below 1.0. Unrecognized problems get a deliberately low score.
func confidence(cat core.Category, cues int) float64 {
	if cat == core.CategoryUnknown {
		return 0.3
	}
	c := 0.5 + 0.1*float64(cues)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// complexity scores [1,10] from input length, operator count, nesting depth
// and nonlinearity. Higher means costlier and more likely to need fallback.
func complexity(text string, nonlinear bool) int {
	score := 1

	switch {
	case len(text) > 100:
		score += 2
	case len(text) > 50:
		score++
	}

	vars := make(map[string]bool)
	for _, v := range variableRe.FindAllString(strings.ToLower(text), -1) {
		vars[v] = true
	}
	score += min(len(vars), 3)

	score += min(len(arithmeticRe.FindAllString(text, -1))/4, 2)
	score += min(nestingDepth(text)/2, 2)

	if nonlinear {
		score += 2
	}
	return min(score, 10)
}

func (a *Analyzer) recommend(cat core.Category) []string {
	var names []string
	switch cat {
	case core.CategoryDiophantine, core.CategoryNonlinearArithmetic:
		names = []string{"diophantine"}
	case core.CategoryPresburger, core.CategoryLinearArithmetic:
		names = []string{"presburger"}
	case core.CategoryBooleanLogic:
		names = []string{"boolsat"}
	}
	return append(names, a.fallback)
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func nestingDepth(text string) int {
	depth, maxDepth := 0, 0
	for _, r := range text {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return maxDepth
}
