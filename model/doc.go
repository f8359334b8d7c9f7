// Package model defines the provider-agnostic abstraction for a single call to
// an external generative model, plus the helpers every provider adapter shares.
//
// Core goals:
//   - Text in, text out: a Provider turns a Prompt into a completion
//   - Uniform failure classification into core.TransportError so the retry
//     controller never inspects vendor error types
//   - Per-kind instruction rendering and correction prompts
//   - Lightweight scripted mocking for tests (MockProvider)
//
// Vendor adapters (openai, anthropic, gemini, ollama) live in sub-packages so
// the pipeline stays decoupled from vendor SDKs.
package model
