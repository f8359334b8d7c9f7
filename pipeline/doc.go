// Package pipeline implements the Orchestrator: the per-request state machine
// that ties the rate limiter, cache, retry controller, model provider, Guard
// Agent and audit sink together.
//
// Every request moves through
//
//	Pending → CacheCheck → Generating → Validating → (Correcting → Generating)* → Approved | Blocked | Failed
//
// with Throttled as an additional terminal state reachable from Pending.
// Exactly one outcome is produced per Submit call. A request is corrected at
// most once, and every Blocked outcome is preceded by a durable audit entry.
//
// Requests are independent. The Orchestrator holds no pipeline-wide lock and
// Submit is safe for concurrent use; in-flight requests can be aborted by id
// with Cancel.
package pipeline
