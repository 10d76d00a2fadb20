// Package procexec runs the external daemons and their command-line tools.
//
// Long-running daemons are started by a Launcher in their own process group
// so a stop reaches every child they spawned. Stop sends SIGTERM, waits the
// caller's grace period and then SIGKILLs the group. The exit handler passed
// to Start is attached before the process runs and fires exactly once.
//
// One-shot commands (`yagna --json id show` and friends) go through an
// Executor, which returns stdout and folds stderr into the error.
package procexec
