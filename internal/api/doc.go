// Package api exposes the HTTP surface of the media pipeline: uploads, file
// reads, resource listing, deletion, message announcements, device-token
// registration, health and status, plus the realtime socket and metrics
// endpoints.
//
// # Key Types
//
// Router: chi router built from narrow collaborator interfaces so handlers can
// be tested with fakes.
//
// FileService: read-only record queries returning client-facing views.
//
// DaemonStatus, WorkflowStatus, HealthResponse: status payloads for operators
// and the CLI.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Errors are returned as {"error": "..."} with a
// status derived from the error marker: validation is 400 (413 for oversized
// uploads), not-found is 404, not-ready is 409, and everything else is 500.
// When server.api_token is set every route except /api/health and /metrics
// requires "Authorization: Bearer <token>".
package api
