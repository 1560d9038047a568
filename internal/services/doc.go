// Package services defines shared utilities consumed by the pipeline stages
// and the remote inference adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, media IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Kind, which folds any
//     stage error into the failure categories observers see (unreachable,
//     rejected_input, quota_exceeded, unknown).
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across the pipeline.
package services
