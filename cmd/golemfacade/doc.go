// Command golemfacade supervises yagna and ya-provider from a background
// daemon and inspects the jobs they run.
//
// `start`, `stop`, `restart` and `status` manage the daemon process; `golem
// start|stop` drive the daemons it supervises. `jobs`, `job show`, `events`
// and `logs` read state over the daemon's Unix socket, and `jobs --offline`
// falls back to the job journal when the daemon is down.
package main
