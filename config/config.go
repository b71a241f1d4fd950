// Package config supplies the static configuration object the engine is
// built from. Values come from defaults, an optional YAML file, and
// environment variable overrides, resolved once before construction.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MaxInputLength  int      `yaml:"max_input_length"`
	MaxNestingDepth int      `yaml:"max_nesting_depth"`
	DenyPatterns    []string `yaml:"deny_patterns"`

	// DefaultTimeoutMS is the YAML/wire representation; DefaultTimeout is
	// derived from it on load and is what the rest of the code consumes.
	DefaultTimeoutMS int           `yaml:"default_timeout_ms"`
	DefaultTimeout   time.Duration `yaml:"-"`

	MaxConcurrency int `yaml:"max_concurrency"`
	SandboxMemMB   int `yaml:"sandbox_mem_mb"`
	SandboxCPUMs   int `yaml:"sandbox_cpu_ms"`

	// AnalysisCacheSize > 0 enables the classifier's LRU cache.
	AnalysisCacheSize int `yaml:"analysis_cache_size"`

	// WASMModulePath points at an optional external fallback solver.
	WASMModulePath string `yaml:"wasm_module_path"`

	// JaegerEndpoint enables distributed tracing when set.
	JaegerEndpoint string `yaml:"jaeger_endpoint"`

	LogLevel string `yaml:"log_level"`
	HTTPPort string `yaml:"http_port"`
}

func Default() Config {
	return Config{
		MaxInputLength:   10000,
		MaxNestingDepth:  50,
		DefaultTimeoutMS: 5000,
		DefaultTimeout:   5 * time.Second,
		MaxConcurrency:   4,
		SandboxMemMB:     512,
		SandboxCPUMs:     30000,
		LogLevel:         "info",
		HTTPPort:         "8082",
	}
}

// Load resolves configuration: defaults, then the YAML file named by
// FUSION_CONFIG (if any), then individual environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("FUSION_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	cfg.MaxInputLength = getEnvInt("FUSION_MAX_INPUT_LENGTH", cfg.MaxInputLength)
	cfg.MaxNestingDepth = getEnvInt("FUSION_MAX_NESTING_DEPTH", cfg.MaxNestingDepth)
	cfg.DefaultTimeout = getEnvDuration("FUSION_DEFAULT_TIMEOUT", cfg.DefaultTimeout)
	cfg.MaxConcurrency = getEnvInt("FUSION_MAX_CONCURRENCY", cfg.MaxConcurrency)
	cfg.SandboxMemMB = getEnvInt("FUSION_SANDBOX_MEM_MB", cfg.SandboxMemMB)
	cfg.SandboxCPUMs = getEnvInt("FUSION_SANDBOX_CPU_MS", cfg.SandboxCPUMs)
	cfg.AnalysisCacheSize = getEnvInt("FUSION_ANALYSIS_CACHE", cfg.AnalysisCacheSize)
	cfg.WASMModulePath = getEnv("FUSION_WASM_MODULE", cfg.WASMModulePath)
	cfg.JaegerEndpoint = getEnv("FUSION_JAEGER_ENDPOINT", cfg.JaegerEndpoint)
	cfg.LogLevel = getEnv("FUSION_LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPPort = getEnv("FUSION_HTTP_PORT", cfg.HTTPPort)

	cfg.DefaultTimeoutMS = int(cfg.DefaultTimeout / time.Millisecond)
	return cfg, nil
}

// LoadFile reads a YAML config, applying defaults for absent fields.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DefaultTimeoutMS > 0 {
		cfg.DefaultTimeout = time.Duration(cfg.DefaultTimeoutMS) * time.Millisecond
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
