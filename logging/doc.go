// Package logging provides a minimal logging interface and adapters for medguard.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the pipeline and its stages use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - PipelineLogger with request and component scoped fields
//   - ZapAdapter for deployments that standardise on zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orch := pipeline.New(provider, func(o *pipeline.Options) { o.Logger = logger })
package logging
