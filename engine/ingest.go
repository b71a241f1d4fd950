package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/snow-ghost/fusion/batch"
	"github.com/snow-ghost/fusion/core"
)

// SolveRequest is the JSON body of POST /solve.
type SolveRequest struct {
	Problem   string `json:"problem"`
	Hint      string `json:"hint,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// BatchRequest is the JSON body of POST /batch.
type BatchRequest struct {
	Problems []batch.Item `json:"problems"`
}

// SolveHandler handles POST /solve with a JSON SolveRequest and returns the
// terminal Result. Pipeline failures still carry a Result body so callers
// see the diagnosis, with the HTTP status mapped from the error type.
func (e *Engine) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := SolveOptions{Hint: core.Category(req.Hint)}
	if req.TimeoutMS > 0 {
		opts.Budget = &core.Budget{Timeout: time.Duration(req.TimeoutMS) * time.Millisecond}
	}

	res, err := e.Solve(r.Context(), req.Problem, opts)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(res)
}

// BatchHandler handles POST /batch and returns per-item outcomes in input
// order.
func (e *Engine) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := e.ProcessBatch(r.Context(), req.Problems)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// ProceduresHandler handles GET /procedures.
func (e *Engine) ProceduresHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"procedures": e.Procedures()})
}

// InfoHandler handles GET /info.
func (e *Engine) InfoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(e.Info())
}

func statusFor(err error) int {
	var verr *core.ValidationError
	var perr *core.PluginError
	var terr *core.TimeoutError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &terr):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
