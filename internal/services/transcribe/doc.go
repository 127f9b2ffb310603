// Package transcribe calls an OpenAI-compatible speech-to-text endpoint and
// returns the transcript with the detected language.
package transcribe
