// Package daemon coordinates the long-running mediapiped process.
//
// It ties the file store, the broker, the workflow manager and the HTTP
// server into a single lifecycle with flock-based locking to prevent
// multiple instances. Start declares every work queue before the consume
// loops begin; Stop drains in-flight jobs before the socket hub and lock
// are released.
//
// Keep orchestration logic here: stage behavior lives in internal/pipeline
// while the daemon focuses on startup, shutdown and status reporting.
package daemon
