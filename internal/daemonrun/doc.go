// Package daemonrun assembles and runs the mediapiped process: logging,
// preflight checks, service clients, the stage handlers and the HTTP API.
package daemonrun
