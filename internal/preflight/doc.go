// Package preflight provides readiness checks for the binaries, directories
// and endpoints the facade depends on.
//
// The daemon logs RunAll and CheckSystemDeps at startup. The CLI "status"
// command uses the individual checks to display health, including
// CheckYagnaAPI which only passes while yagna is up.
package preflight
