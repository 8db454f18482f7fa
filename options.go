package rhi

import (
	"go.opentelemetry.io/otel/trace"
)

// Option configures an Executor during creation.
//
// Example:
//
//	exec, err := rhi.NewExecutor(dev,
//	    rhi.WithParallelTranslate(true),
//	    rhi.WithMinParallelCommands(128),
//	)
type Option func(*executorOptions)

type executorOptions struct {
	cfg            Config
	tracerProvider trace.TracerProvider
}

func defaultExecutorOptions() executorOptions {
	return executorOptions{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration, typically with the result of
// ConfigFromEnv. Options after it still apply on top.
func WithConfig(cfg Config) Option {
	return func(o *executorOptions) {
		o.cfg = cfg
	}
}

// WithBypass enables or disables bypass mode.
func WithBypass(enabled bool) Option {
	return func(o *executorOptions) {
		o.cfg.Bypass = enabled
	}
}

// WithParallelTranslate enables or disables parallel translation.
func WithParallelTranslate(enabled bool) Option {
	return func(o *executorOptions) {
		o.cfg.ParallelTranslate = enabled
	}
}

// WithMinParallelCommands sets the smallest buffer eligible for parallel
// translation.
func WithMinParallelCommands(n int) Option {
	return func(o *executorOptions) {
		o.cfg.MinParallelCommands = n
	}
}

// WithChunkCommands sets the number of commands per parallel translate task.
func WithChunkCommands(n int) Option {
	return func(o *executorOptions) {
		o.cfg.ParallelChunkCommands = n
	}
}

// WithWorkers sets the translate pool size.
func WithWorkers(n int) Option {
	return func(o *executorOptions) {
		o.cfg.TranslateWorkers = n
	}
}

// WithArenaLimit caps the bytes each buffer may allocate.
func WithArenaLimit(limit int64) Option {
	return func(o *executorOptions) {
		o.cfg.ArenaLimit = limit
	}
}

// WithTracerProvider sets the OpenTelemetry provider for submission and
// translate spans. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *executorOptions) {
		o.tracerProvider = tp
	}
}
