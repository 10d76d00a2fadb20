// Package daemon hosts the long-running golemfacade process.
//
// It wires configuration, the job journal, notifications and the Golem
// facade into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon also serves the optional HTTP API and
// exposes the operations the IPC layer forwards.
//
// Keep orchestration logic here: supervising yagna and ya-provider belongs to
// the golem package while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
