// Package jobs defines the queue names and the immutable job payloads that
// travel between pipeline stages. Jobs reference file records by id and
// never carry record state.
package jobs
