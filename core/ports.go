package core

import "context"

// Procedure is a pluggable decision procedure. Implementations must be safe
// for concurrent use: one instance is shared by all in-flight solves.
type Procedure interface {
	Name() string
	Categories() []Category
	// Priority orders candidates: lower runs first. General-purpose
	// fallbacks declare themselves highest-numbered by convention.
	Priority() int
	// CanHandle is a cheap rejection filter; it must not parse or solve.
	CanHandle(p Problem, hint Category) bool
	// Decide may consume up to the budget but the sandbox enforces the
	// ceiling externally; procedures are not trusted to self-limit.
	Decide(ctx context.Context, p Problem, b Budget) (SolverResult, error)
	// Explain renders a human-readable justification for a result this
	// procedure produced.
	Explain(r SolverResult) string
}

// Analyzer classifies a problem. Deterministic and side-effect-free; it
// never fails, an unrecognized problem yields CategoryUnknown.
type Analyzer interface {
	Analyze(p Problem) AnalysisResult
}

// Validator checks raw text before it reaches any procedure and returns a
// sanitized copy. Pure: it must not execute or interpret the input.
type Validator interface {
	Validate(text string) (string, error)
}

// Executor runs one procedure attempt under enforced resource ceilings and
// guarantees the caller is never blocked past the deadline, even if the
// procedure never returns.
type Executor interface {
	Run(ctx context.Context, proc Procedure, p Problem, b Budget) ExecutionOutcome
}
