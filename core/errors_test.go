package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	var verr *ValidationError
	err := fmt.Errorf("engine: %w", &ValidationError{Reason: "too long"})
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Error(), "too long")

	var perr *PluginError
	err = fmt.Errorf("registry: %w", &PluginError{Procedure: "presburger", Reason: "already registered"})
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "presburger", perr.Procedure)

	var terr *TimeoutError
	err = &SolverError{Procedure: "slow", Err: &TimeoutError{Budget: 100 * time.Millisecond}}
	require.True(t, errors.As(err, &terr))
	require.Equal(t, 100*time.Millisecond, terr.Budget)
}

func TestSolverErrorUnwrap(t *testing.T) {
	inner := errors.New("bad witness")
	err := &SolverError{Procedure: "p", Err: inner}
	require.True(t, errors.Is(err, inner))
	require.Contains(t, err.Error(), "bad witness")
}
