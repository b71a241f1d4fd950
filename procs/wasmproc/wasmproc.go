// Package wasmproc adapts an external decision procedure compiled to WASM
// into the core.Procedure contract. The module is opaque to the engine: by
// convention it registers as the lowest-priority general fallback, receives
// the problem as JSON, and answers with a tri-state verdict. The wazero
// runtime enforces the memory ceiling that the in-process sandbox can only
// treat as advisory, and closes execution when the context deadline fires.
package wasmproc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/snow-ghost/fusion/core"
)

const wasmPageSize = 64 * 1024

// Config describes the hosted module.
type Config struct {
	// Name the procedure registers under, e.g. "smt".
	Name string
	// Priority; external fallbacks should be the highest number in the
	// registry so specialized procedures run first.
	Priority int
	// Module is the compiled WASM bytecode exporting decide(ptr, len) ->
	// (ptr, len) over JSON payloads.
	Module []byte
	// MemMB caps the module's linear memory. Enforced by the runtime.
	MemMB int
}

type request struct {
	Problem string        `json:"problem"`
	Hint    core.Category `json:"hint,omitempty"`
	Timeout int64         `json:"timeout_ms"`
}

type response struct {
	Satisfiable *bool          `json:"satisfiable"`
	Model       map[string]any `json:"model,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
}

// Procedure implements core.Procedure on top of a wazero runtime. Each
// Decide instantiates a fresh module instance, so concurrent attempts never
// share linear memory; discarding a timed-out instance leaks nothing.
type Procedure struct {
	name     string
	priority int
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

func New(ctx context.Context, cfg Config) (*Procedure, error) {
	if len(cfg.Module) == 0 {
		return nil, fmt.Errorf("wasmproc: no module bytes")
	}
	if cfg.Name == "" {
		cfg.Name = "smt"
	}
	memMB := cfg.MemMB
	if memMB <= 0 {
		memMB = 16
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(uint32(memMB * 1024 * 1024 / wasmPageSize)).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	compiled, err := runtime.CompileModule(ctx, cfg.Module)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmproc: compile failed: %w", err)
	}

	return &Procedure{
		name:     cfg.Name,
		priority: cfg.Priority,
		runtime:  runtime,
		compiled: compiled,
	}, nil
}

func (p *Procedure) Name() string { return p.name }

func (p *Procedure) Categories() []core.Category {
	return []core.Category{core.CategoryGeneral}
}

func (p *Procedure) Priority() int { return p.priority }

// CanHandle always accepts: the hosted solver is the general-purpose last
// resort and decides for itself whether to answer UNKNOWN.
func (p *Procedure) CanHandle(core.Problem, core.Category) bool { return true }

func (p *Procedure) Decide(ctx context.Context, prob core.Problem, b core.Budget) (core.SolverResult, error) {
	start := time.Now()

	input, err := json.Marshal(request{
		Problem: prob.Text,
		Hint:    prob.Hint,
		Timeout: b.Timeout.Milliseconds(),
	})
	if err != nil {
		return core.SolverResult{}, fmt.Errorf("marshal request: %w", err)
	}

	instance, err := p.runtime.InstantiateModule(ctx, p.compiled,
		wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return core.SolverResult{}, fmt.Errorf("instantiate module: %w", err)
	}
	defer instance.Close(ctx)

	decideFn := instance.ExportedFunction("decide")
	if decideFn == nil {
		return core.SolverResult{}, fmt.Errorf("module does not export 'decide'")
	}

	mem := instance.Memory()
	if mem == nil {
		return core.SolverResult{}, fmt.Errorf("module has no memory")
	}

	// Ask the module where to place the request. Modules without an
	// exported alloc must keep the low region of linear memory free for
	// host input.
	var inputPtr uint32
	if allocFn := instance.ExportedFunction("alloc"); allocFn != nil {
		ptrs, err := allocFn.Call(ctx, uint64(len(input)))
		if err != nil {
			return core.SolverResult{}, fmt.Errorf("alloc call: %w", err)
		}
		if len(ptrs) != 1 {
			return core.SolverResult{}, fmt.Errorf("alloc returned %d values, want ptr", len(ptrs))
		}
		inputPtr = uint32(ptrs[0])
	}
	if !mem.Write(inputPtr, input) {
		return core.SolverResult{}, &core.ResourceLimitError{
			Resource: "memory",
			Limit:    fmt.Sprintf("%d bytes of module memory", mem.Size()),
		}
	}

	rets, err := decideFn.Call(ctx, uint64(inputPtr), uint64(len(input)))
	if err != nil {
		return core.SolverResult{}, fmt.Errorf("decide call: %w", err)
	}
	if len(rets) != 2 {
		return core.SolverResult{}, fmt.Errorf("decide returned %d values, want (ptr, len)", len(rets))
	}

	output, ok := mem.Read(uint32(rets[0]), uint32(rets[1]))
	if !ok {
		return core.SolverResult{}, fmt.Errorf("output pointer out of range")
	}

	var resp response
	if err := json.Unmarshal(output, &resp); err != nil {
		return core.SolverResult{}, fmt.Errorf("malformed response: %w", err)
	}

	verdict := core.VerdictUnknown
	switch {
	case resp.Satisfiable == nil:
	case *resp.Satisfiable:
		verdict = core.VerdictSAT
	default:
		verdict = core.VerdictUNSAT
	}

	return core.SolverResult{
		Verdict:     verdict,
		Model:       resp.Model,
		Explanation: resp.Explanation,
		SolverName:  p.name,
		Elapsed:     time.Since(start),
	}, nil
}

func (p *Procedure) Explain(r core.SolverResult) string {
	if r.Explanation != "" {
		return r.Explanation
	}
	switch r.Verdict {
	case core.VerdictSAT:
		return "the external solver found the problem satisfiable"
	case core.VerdictUNSAT:
		return "the external solver proved the problem unsatisfiable"
	default:
		return "the external solver could not decide the problem"
	}
}

// Close releases the runtime and all compiled code.
func (p *Procedure) Close(ctx context.Context) error {
	return p.runtime.Close(ctx)
}
