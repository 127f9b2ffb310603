// Package notifications sends operator alerts to an ntfy topic when a job is
// dead-lettered or dropped. Without a topic the service is a noop.
package notifications
