// Package pipeline implements the stage handlers behind each work queue:
// file creation, image moderation, audio transcription and dependent message
// notification.
//
// Handlers decode their job, call external collaborators through narrow
// interfaces, announce partial state to the realtime fanout and persist it
// through the store method that owns the field. They never ack or nack; the
// workflow runner settles each delivery from the returned stage.Outcome.
// Every handler tolerates redelivery: replays of completed work are acked.
package pipeline
