package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golemfacade/internal/api"
	"golemfacade/internal/config"
	"golemfacade/internal/ipc"
	"golemfacade/internal/journal"
	"golemfacade/internal/preflight"
)

// StatusSnapshot is the daemon status enriched with client-side checks. It
// is filled from the journal when the daemon is not reachable.
type StatusSnapshot struct {
	api.DaemonStatus
	Reachable         bool                  `json:"reachable"`
	SystemChecks      []api.StatusLine      `json:"systemChecks"`
	DependencySummary api.DependencySummary `json:"dependencySummary"`
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for job counts and dependencies.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		resp, statusErr := client.Status(statusCtx)
		cancel()
		if statusErr == nil && resp != nil {
			snapshot.DaemonStatus = *resp
			snapshot.Reachable = true
		}
	}

	if !snapshot.Reachable {
		snapshot.Golem.Status = "off"
		snapshot.JobCounts = offlineJobCounts(ctx, cfg)
		if cfg.Journal.Enabled {
			snapshot.JournalPath = cfg.JournalPath()
		}
	}
	if snapshot.JobCounts == nil {
		snapshot.JobCounts = map[string]int{}
	}

	if len(snapshot.Dependencies) == 0 {
		snapshot.Dependencies = ResolveDependencies(cfg)
	}
	for i := range snapshot.Dependencies {
		if strings.TrimSpace(snapshot.Dependencies[i].Severity) == "" {
			snapshot.Dependencies[i].Severity = dependencySeverity(snapshot.Dependencies[i])
		}
	}

	snapshot.SystemChecks = BuildSystemChecks(ctx, cfg, snapshot.Running, snapshot.Golem)
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Dependencies)
	return snapshot, nil
}

// offlineJobCounts reads job counts straight from the journal. It never
// creates a journal that does not exist yet.
func offlineJobCounts(ctx context.Context, cfg *config.Config) map[string]int {
	if !cfg.Journal.Enabled {
		return nil
	}
	if _, err := os.Stat(cfg.JournalPath()); err != nil {
		return nil
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	store, err := journal.Open(cfg)
	if err != nil {
		return nil
	}
	defer store.Close()
	stats, err := store.Stats(queryCtx)
	if err != nil {
		return nil
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	return counts
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []api.DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]api.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		dep := api.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		}
		dep.Severity = dependencySeverity(dep)
		statuses = append(statuses, dep)
	}
	return statuses
}

func dependencySeverity(dep api.DependencyStatus) string {
	switch {
	case dep.Available:
		return "ok"
	case dep.Optional:
		return "warn"
	default:
		return "error"
	}
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, daemonRunning bool, golem api.GolemStatus) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 8)
	if daemonRunning {
		lines = append(lines, api.StatusLine{Label: "Daemon", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Daemon", Severity: "warn", Detail: "Not running (run `golemfacade start`)"})
	}

	lines = append(lines, golemStatusLine(golem))
	if golem.NodeID != "" {
		lines = append(lines, api.StatusLine{Label: "Node", Severity: "info", Detail: golem.NodeID})
	}
	if golem.Current != nil {
		lines = append(lines, api.StatusLine{
			Label:    "Current Job",
			Severity: "ok",
			Detail:   fmt.Sprintf("%s (%s)", golem.Current.ID, golem.Current.Status),
		})
	} else if golem.Status == "ready" {
		lines = append(lines, api.StatusLine{Label: "Current Job", Severity: "info", Detail: "Idle"})
	}

	if golem.Status == "ready" {
		lines = append(lines, yagnaAPILine(ctx, cfg))
	}

	for _, dir := range []struct {
		label string
		path  string
	}{
		{label: "Data Dir", path: cfg.Paths.DataDir},
		{label: "Log Dir", path: cfg.Paths.LogDir},
	} {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{Label: dir.label, Severity: severity, Detail: result.Detail})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	}
	return lines
}

func golemStatusLine(golem api.GolemStatus) api.StatusLine {
	line := api.StatusLine{Label: "Golem", Detail: golem.Status}
	switch golem.Status {
	case "ready":
		line.Severity = "ok"
	case "starting", "stopping":
		line.Severity = "warn"
	case "error":
		line.Severity = "error"
		if golem.LastError != "" {
			line.Detail = "error: " + golem.LastError
		}
	default:
		line.Severity = "info"
		line.Detail = "off"
	}
	return line
}

// yagnaAPILine probes the REST API directly. Without a configured app key
// the daemon resolved one itself, so the probe is skipped.
func yagnaAPILine(ctx context.Context, cfg *config.Config) api.StatusLine {
	if strings.TrimSpace(cfg.Yagna.AppKey) == "" {
		return api.StatusLine{Label: "Yagna API", Severity: "info", Detail: "App key managed by daemon"}
	}
	result := preflight.CheckYagnaAPI(ctx, cfg.Yagna.APIURL, cfg.Yagna.AppKey)
	severity := "warn"
	if result.Passed {
		severity = "ok"
	}
	return api.StatusLine{Label: "Yagna API", Severity: severity, Detail: result.Detail}
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []api.DependencyStatus) api.DependencySummary {
	if len(deps) == 0 {
		return api.DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return api.DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
