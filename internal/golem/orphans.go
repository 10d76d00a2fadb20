package golem

import (
	"context"
	"fmt"
	"time"

	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/yagna"
)

// OrphanLookback bounds how far back orphan cleanup searches for agreements.
const OrphanLookback = 24 * time.Hour

// orphanReason is sent when terminating agreements left behind by a crash.
var orphanReason = yagna.Reason{
	Message: "provider restarted after an unclean shutdown",
	Code:    "Interrupted",
}

// cleanupOrphans terminates agreements that still have a live activity but
// that no running provider serves, then destroys those activities. It runs before ya-provider launches, so
// every such agreement belongs to a previous run, except those the registry
// still tracks as computing. Failures are reported and skipped.
func (g *Golem) cleanupOrphans(ctx context.Context) {
	infos, err := g.api.AgreementsSince(ctx, g.clock.Now().Add(-OrphanLookback))
	if err != nil {
		logging.WarnWithContext(g.logger, "orphan cleanup could not list agreements", "orphan_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "agreements from the previous run may stay open until they expire"),
		)
		g.publish(SeverityWarning, EventOrphanCleanupFailed, "could not list agreements for orphan cleanup", err, "")
		return
	}

	terminated := 0
	for _, info := range infos {
		if ctx.Err() != nil {
			return
		}
		if job, ok := g.registry.Get(info.ID); ok && computing(job) {
			continue
		}
		open, err := g.openActivities(ctx, info.ID)
		if err != nil {
			g.logger.Debug("orphan check skipped agreement",
				logging.String(logging.FieldAgreementID, info.ID),
				logging.Error(err),
			)
			continue
		}
		if len(open) == 0 {
			continue
		}
		if err := g.api.TerminateAgreement(ctx, info.ID, orphanReason); err != nil {
			logging.WarnWithContext(g.logger, "failed to terminate orphaned agreement", "orphan_terminate_failed",
				logging.String(logging.FieldAgreementID, info.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "agreement stays open until the requestor or expiry ends it"),
			)
			g.publish(SeverityWarning, EventOrphanCleanupFailed,
				fmt.Sprintf("could not terminate orphaned agreement %s", info.ID), err, info.ID)
			continue
		}
		terminated++
		g.destroyActivities(ctx, info.ID, open)
		g.logger.Info("terminated orphaned agreement",
			logging.String(logging.FieldEventType, "orphan_terminated"),
			logging.String(logging.FieldAgreementID, info.ID),
		)
		g.publish(SeverityInfo, EventOrphanTerminated,
			fmt.Sprintf("terminated orphaned agreement %s", info.ID), nil, info.ID)
	}
	g.logger.Info("orphan cleanup finished",
		logging.String(logging.FieldEventType, "orphan_cleanup_done"),
		logging.Int("checked", len(infos)),
		logging.Int("terminated", terminated),
	)
}

func computing(job jobs.Job) bool {
	return job.Status == jobs.StatusComputing || job.Status == jobs.StatusDownloadingModel
}

// openActivities lists the agreement's activities that are not terminated.
func (g *Golem) openActivities(ctx context.Context, agreementID string) ([]string, error) {
	activities, err := g.api.ActivitiesForAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	var open []string
	for _, id := range activities {
		state, err := g.api.ActivityState(ctx, id)
		if err != nil {
			return nil, err
		}
		if state.Current != yagna.StateTerminated {
			open = append(open, id)
		}
	}
	return open, nil
}

// destroyActivities is best effort: yagna usually tears activities down with
// the agreement, and a failure here leaves nothing billable behind.
func (g *Golem) destroyActivities(ctx context.Context, agreementID string, ids []string) {
	for _, id := range ids {
		if err := g.api.DestroyActivity(ctx, id); err != nil {
			g.logger.Debug("orphaned activity not destroyed",
				logging.String(logging.FieldAgreementID, agreementID),
				logging.String(logging.FieldActivityID, id),
				logging.Error(err),
			)
		}
	}
}
