package core

import (
	"fmt"
	"time"
)

// ValidationError rejects input before any solving happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// PluginError covers registry misuse: duplicate registration, registration
// after freeze, or a classified problem that no registered procedure can
// attempt. The zero-candidate case is distinct from "tried and got UNKNOWN".
type PluginError struct {
	Procedure string
	Reason    string
}

func (e *PluginError) Error() string {
	if e.Procedure != "" {
		return fmt.Sprintf("plugin %q: %s", e.Procedure, e.Reason)
	}
	return fmt.Sprintf("plugin error: %s", e.Reason)
}

// TimeoutError marks an attempt (or a whole shared budget) that hit its
// wall-clock ceiling.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution exceeded %v budget", e.Budget)
}

// ResourceLimitError marks an attempt that breached a memory or CPU ceiling.
type ResourceLimitError struct {
	Resource string // "memory" | "cpu"
	Limit    string
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded (%s)", e.Resource, e.Limit)
}

// SolverError wraps an internal procedure failure (error return or panic).
// It is always caught at the sandbox boundary and recorded as a failed
// outcome, never propagated as a crash.
type SolverError struct {
	Procedure string
	Err       error
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("procedure %q failed: %v", e.Procedure, e.Err)
}

func (e *SolverError) Unwrap() error { return e.Err }
