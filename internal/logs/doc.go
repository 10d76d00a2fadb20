// Package logs reads the daemon's log file directly.
//
// The CLI falls back to it when the daemon is not reachable over IPC, for
// example to find out why the last run exited. Lines written by the JSON
// handler are decoded into api.LogEvent values so they render and filter the
// same way as events from the in-memory stream; any other line is passed
// through as a bare message.
package logs
