// Package golem is the lifecycle orchestrator of the facade.
//
// A Golem starts yagna, waits for its REST API, resolves the app key, runs
// ya-provider and then the activity and invoice reconciliation loops that
// feed the job registry. Status moves through Off, Starting, Ready,
// Stopping and Error. An unexpected daemon exit stops the peer daemon and
// leaves the facade in Error until the next Start; a host resume restarts
// both daemons.
//
// Start, Stop, crash handling and resume restarts are serialized on one
// lock, so a crash racing a Stop converges on a single terminal state.
// Observers receive status, current job, job and event updates in order.
package golem
