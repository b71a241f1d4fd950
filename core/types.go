package core

import (
	"time"
)

// Category classifies a decision problem. The set is closed: new categories
// are added here in a release, never registered at runtime.
type Category string

const (
	CategoryPresburger          Category = "presburger"
	CategoryDiophantine         Category = "diophantine"
	CategoryLinearArithmetic    Category = "linear_arithmetic"
	CategoryNonlinearArithmetic Category = "nonlinear_arithmetic"
	CategoryBooleanLogic        Category = "boolean_logic"
	CategoryGeneral             Category = "general"
	CategoryUnknown             Category = "unknown"
)

// Problem is an immutable decision problem: the constraint text plus an
// optional category hint declared by the caller.
type Problem struct {
	ID   string
	Text string
	Hint Category
}

func NewProblem(text string, hint Category) Problem {
	return Problem{Text: text, Hint: hint}
}

// Verdict is the tri-state satisfiability answer.
type Verdict string

const (
	VerdictSAT     Verdict = "sat"
	VerdictUNSAT   Verdict = "unsat"
	VerdictUnknown Verdict = "unknown"
)

// Definite reports whether the verdict settles the problem.
func (v Verdict) Definite() bool {
	return v == VerdictSAT || v == VerdictUNSAT
}

// Satisfiable maps the verdict to the wire representation used by the API
// layer: true, false, or nil for unknown.
func (v Verdict) Satisfiable() *bool {
	switch v {
	case VerdictSAT:
		t := true
		return &t
	case VerdictUNSAT:
		f := false
		return &f
	default:
		return nil
	}
}

// Budget bounds one solving attempt. Timeout is the hard wall-clock ceiling
// enforced by the sandbox; CPUMillis and MemMB are advisory except where a
// runtime (e.g. WASM) can enforce them directly.
type Budget struct {
	Timeout   time.Duration `json:"timeout"`
	CPUMillis int           `json:"cpu_millis"`
	MemMB     int           `json:"mem_mb"`
}

// SolverResult is a procedure's answer to one problem.
type SolverResult struct {
	Verdict     Verdict        `json:"verdict"`
	Model       map[string]any `json:"model,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
	SolverName  string         `json:"solver"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// ExecutionOutcome records one attempted procedure invocation: either a
// SolverResult or the failure that replaced it. The registry keeps the full
// ordered attempt list for auditability.
type ExecutionOutcome struct {
	Procedure string        `json:"procedure"`
	Result    *SolverResult `json:"result,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Failed reports whether the attempt produced no SolverResult.
func (o ExecutionOutcome) Failed() bool {
	return o.Err != nil
}

// AnalysisResult is the classifier's read on a problem.
type AnalysisResult struct {
	Category    Category `json:"category"`
	Confidence  float64  `json:"confidence"`  // [0.0, 1.0]
	Complexity  int      `json:"complexity"`  // [1, 10]
	Recommended []string `json:"recommended"` // procedure names, best first
	Rationale   string   `json:"rationale"`
}
