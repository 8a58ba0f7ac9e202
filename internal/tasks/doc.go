// Package tasks orchestrates VOD uploads with real-time progress reporting.
//
// # Core Operations
//
// [UploadEngine] exposes two operations:
//
//  1. [UploadEngine.Run] : one orchestration run over scanned candidates
//     - Refuses to start while the quota cooldown is active
//     - Skips identifiers already in the ledger or seen earlier in the run
//     - Resolves (or creates) the owner's playlist, synthesizes metadata and uploads
//     - Records each confirmed upload in the ledger before moving on
//
//  2. [UploadEngine.Plan] : dry-run of the same admission rules
//     - Assumes every upload succeeds and makes no remote calls
//     - Reports the synthesized metadata and which owners still need a playlist
//
// # Per-candidate state machine
//
// Each candidate moves through [models.AttemptState] values in an explicit loop.
// Uploader outcomes are classified by a [services.Classifier]:
//
//   - Quota exceeded: the [QuotaGate] is tripped and the run stops
//   - Auth expired: the run stops, or in wait mode blocks on a [RenewalWaiter] and retries
//   - Validation rejected: one degraded retry with reduced metadata
//   - Anything else fails the candidate and the run continues
//
// # Admission control
//
// MaxPerRun caps successful uploads per run. With the owner cap policy an owner's
// contiguous backlog is allowed to finish past the cap.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data.
// Updates use select with default to prevent blocking.
//
// # Journal
//
// The optional [Journal] receives every attempt and the run summary.
// Journal failures are logged and never disrupt a run.
package tasks
