package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement is something the facade needs from the host.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Probe replaces the default PATH lookup of Command. It returns whether
	// the requirement is met and a short detail for the operator.
	Probe func(command string) (ok bool, detail string)
}

// Status is the outcome of checking one Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check evaluates reqs in order.
func Check(reqs ...Requirement) []Status {
	out := make([]Status, len(reqs))
	for i, req := range reqs {
		command := strings.TrimSpace(req.Command)
		probe := req.Probe
		if probe == nil {
			probe = lookupBinary
		}
		ok, detail := probe(command)
		out[i] = Status{
			Name:        req.Name,
			Command:     command,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
			Available:   ok,
			Detail:      detail,
		}
	}
	return out
}

// MissingRequired returns the names of unavailable, non-optional entries.
func MissingRequired(statuses []Status) []string {
	var names []string
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			names = append(names, s.Name)
		}
	}
	return names
}

func lookupBinary(command string) (bool, string) {
	if command == "" {
		return false, "command not configured"
	}
	if _, err := exec.LookPath(command); err != nil {
		return false, fmt.Sprintf("binary %q not found", command)
	}
	return true, ""
}
