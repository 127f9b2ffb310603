// Package config loads, normalizes, and validates mediapipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AMQP_URL, CLOUDINARY_URL and OPENAI_API_KEY. The Config type centralizes
// every knob the daemon and CLI need, so broker, object storage, moderation,
// transcription, summarization and push credentials are discovered in one pass.
//
// Validation is strict: a missing credential is a startup error, never a
// per-job failure.
package config
