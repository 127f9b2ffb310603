// Command mediapipe is the operator CLI for the media pipeline: it inspects
// file records, runs preflight checks, manages configuration, requeues
// dead-lettered jobs and can run the daemon in the foreground.
package main
