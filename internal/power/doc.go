// Package power reports host suspend/resume cycles.
//
// On a systemd host the Logind watcher follows logind's PrepareForSleep
// signal on the system bus and holds a delay inhibitor lock, so the suspend
// hook runs before the host actually sleeps. Without a reachable system bus,
// NewWatcher falls back to Monitor, which infers a resume from a wall-clock
// jump between ticker samples and never sees the suspend itself.
package power
