// Package journal keeps a SQLite record of observed jobs and Start sessions.
//
// The daemon REST API remains the source of truth. The journal lets the CLI
// list jobs while the daemons are down and tells a fresh daemon process
// whether the previous one stopped cleanly.
package journal
