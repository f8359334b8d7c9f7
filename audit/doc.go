// Package audit provides core.AuditSink implementations. Every Guard Agent
// decision is appended exactly once per request; entries are never updated
// or deleted.
//
// Sinks:
//
//   - InMemorySink for tests and local runs
//   - PostgresSink writing to an append-only table through pgx
//   - RabbitMQSink publishing persistent messages in confirm mode
//   - MultiSink fanning one entry out to several sinks
//
// Append returns only once the entry is durable (committed or acknowledged by
// the broker). The pipeline relies on this before releasing a Blocked outcome.
package audit
