// Package services defines shared utilities consumed by the stage handlers and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp file IDs, queue and stage names, delivery
//     attempts, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. The workflow consume loop
//     classifies a wrapped marker into ack, requeue, or drop.
//
// External clients wrap every failure with a marker so retry behaviour stays
// uniform across the pipeline.
package services
