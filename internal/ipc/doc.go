// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// client the CLI uses.
//
// Wire types alias the HTTP API DTOs where they overlap so both surfaces
// render jobs, events and status identically. Lifecycle calls block until the
// facade settles, so the client takes a context for its deadline.
package ipc
