// Package preflight provides readiness checks for the filesystem paths and
// external services the media pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to start when a required
//     check fails.
//   - The CLI "mediapipe preflight" command renders every result as a table.
//
// Optional checks, such as the summarizer, report failures without blocking
// startup. An unreachable summarizer fails transcription jobs with bounded
// retries until it recovers.
package preflight
