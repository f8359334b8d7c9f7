// Package core provides the domain types, errors and collaborator interfaces
// shared by every stage of the medguard generation-and-validation pipeline.
// It defines:
//
//   - Requests (immutable generation requests and their cache fingerprints)
//   - Attempts, validation results and terminal outcomes
//   - The per-request provider call budget
//   - Collaborator interfaces for the cache, the audit sink and the document
//     context provider
//
// Concrete stores, providers and the orchestrator live in their own packages
// so this package stays free of third-party transports.
package core
