// Package metrics registers the Prometheus collectors for job processing,
// HTTP traffic, realtime clients, push delivery and the device-token cache.
package metrics
