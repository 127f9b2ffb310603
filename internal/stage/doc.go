// Package stage holds the contract between stage workers and the workflow
// runner: the Handler interface, the three-way Result with its Outcome, and
// the error classification that turns marker errors into outcomes.
package stage
