package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snow-ghost/fusion/analyze"
	"github.com/snow-ghost/fusion/config"
	"github.com/snow-ghost/fusion/core"
	"github.com/snow-ghost/fusion/engine"
	"github.com/snow-ghost/fusion/pkg/logging"
	"github.com/snow-ghost/fusion/pkg/metrics"
	"github.com/snow-ghost/fusion/pkg/tracing"
	"github.com/snow-ghost/fusion/procs/boolproc"
	"github.com/snow-ghost/fusion/procs/diophantine"
	"github.com/snow-ghost/fusion/procs/presburger"
	"github.com/snow-ghost/fusion/procs/wasmproc"
	"github.com/snow-ghost/fusion/registry"
	"github.com/snow-ghost/fusion/sandbox"
	"github.com/snow-ghost/fusion/telemetry"
	"github.com/snow-ghost/fusion/validate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Setup structured logging
	lg, err := logging.NewLogger(logging.Config{
		Level:  cfg.LogLevel,
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Close()
	logger := lg.GetSlog()
	slog.SetDefault(logger)

	// Wire components
	validator, err := validate.New(validate.Config{
		MaxInputLength:  cfg.MaxInputLength,
		MaxNestingDepth: cfg.MaxNestingDepth,
		DenyPatterns:    cfg.DenyPatterns,
	})
	if err != nil {
		log.Fatal(err)
	}

	tel := telemetry.New(logger)
	pm := metrics.NewPrometheusMetrics()

	analyzerOpts := []analyze.Option{}
	if cfg.AnalysisCacheSize > 0 {
		analyzerOpts = append(analyzerOpts,
			analyze.WithCache(cfg.AnalysisCacheSize),
			analyze.WithCacheMetrics(pm),
		)
	}
	analyzer := analyze.New(analyzerOpts...)

	exec := sandbox.NewExecutor(sandbox.Limits{
		MaxTimeout:   30 * time.Second,
		MaxMemMB:     cfg.SandboxMemMB,
		MaxCPUMillis: cfg.SandboxCPUMs,
	}, logger)

	reg := registry.New(exec, registry.WithBreakers(), registry.WithLogger(logger))
	mustRegister(reg, presburger.New(10))
	mustRegister(reg, boolproc.New(10))
	mustRegister(reg, diophantine.New(20))

	// Optional external fallback solver, lowest priority
	if cfg.WASMModulePath != "" {
		module, err := os.ReadFile(cfg.WASMModulePath)
		if err != nil {
			log.Fatal(err)
		}
		proc, err := wasmproc.New(context.Background(), wasmproc.Config{
			Module:   module,
			Priority: 100,
			MemMB:    cfg.SandboxMemMB,
		})
		if err != nil {
			log.Fatal(err)
		}
		defer proc.Close(context.Background())
		mustRegister(reg, proc)
	}

	engineOpts := []engine.Option{
		engine.WithTelemetry(tel),
		engine.WithPrometheus(pm),
		engine.WithAccessLog(lg),
	}
	if cfg.JaegerEndpoint != "" {
		tracer, err := tracing.NewTracer(tracing.Config{
			ServiceName:    "fusion",
			ServiceVersion: "dev",
			JaegerEndpoint: cfg.JaegerEndpoint,
			Environment:    "production",
		})
		if err != nil {
			log.Fatal(err)
		}
		defer func() { _ = tracer.Shutdown(context.Background()) }()
		engineOpts = append(engineOpts, engine.WithTracer(tracer))
	}

	engineOpts = append(engineOpts,
		engine.WithBudget(core.Budget{
			Timeout:   cfg.DefaultTimeout,
			CPUMillis: cfg.SandboxCPUMs,
			MemMB:     cfg.SandboxMemMB,
		}),
		engine.WithMaxConcurrency(cfg.MaxConcurrency),
	)
	eng := engine.New(validator, analyzer, reg, engineOpts...)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.Handle("/solve", http.HandlerFunc(eng.SolveHandler))
	mux.Handle("/batch", http.HandlerFunc(eng.BatchHandler))
	mux.Handle("/procedures", http.HandlerFunc(eng.ProceduresHandler))
	mux.Handle("/info", http.HandlerFunc(eng.InfoHandler))
	mux.Handle("/health", http.HandlerFunc(tel.HealthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", http.HandlerFunc(tel.MetricsHandler))

	logger.Info("fusion starting", "port", cfg.HTTPPort, "procedures", eng.Procedures())
	log.Fatal(http.ListenAndServe(":"+cfg.HTTPPort, requestLogger(lg, mux)))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestLogger(lg *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		lg.LogRequest(r.Context(), r.Method, r.URL.Path, sw.status, time.Since(start), uuid.NewString())
	})
}

func mustRegister(reg *registry.Registry, p core.Procedure) {
	if err := reg.Register(p); err != nil {
		log.Fatal(err)
	}
}
