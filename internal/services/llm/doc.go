// Package llm shortens voice message transcripts into one-line notification
// bodies using an OpenAI-compatible chat completion endpoint.
//
// Requests that fail with 408, 429, 5xx, a network timeout or an empty
// completion are retried with doubling delays (1s up to 10s, two attempts by
// default); a Retry-After header overrides the computed delay. Callers see
// services.ErrTransient for retryable failures and services.ErrExternalTool
// for rejected requests.
package llm
