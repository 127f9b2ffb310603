// Package workflow drives the stage handlers from their broker queues.
//
// The Manager runs one consume loop per handler. Deliveries are handled
// concurrently up to the broker prefetch, and each handler's stage.Outcome is
// translated into an acknowledgement: Ack settles the job, NackDrop discards
// it with an operator alert, and NackRequeue either retries it (bounded by
// workflow.max_attempts, then moved to the queue's dead-letter queue) or,
// for not-ready outcomes, requeues it after a short delay with no ceiling.
// Handler panics are recovered and treated as bounded retries.
//
// The Reclaimer covers ingestions whose creation job was never published or
// was lost, and removes staged files that no longer have a record.
package workflow
