// Package moderation drives the image moderation workflow, an AWS Step
// Functions state machine that runs explicit-content detection.
//
// Submit starts one execution per file, named after the file id so replays
// resolve to the same execution. Verdict polls it: a running execution is
// services.ErrNotReady, a finished execution is safe when its output carries
// an empty ModerationLabels list. Failed, timed out or aborted executions and
// unexpected outputs are ErrTransient; they never settle a file as unsafe.
package moderation
