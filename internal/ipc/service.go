package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golemfacade/internal/api"
	"golemfacade/internal/daemon"
	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
)

// service holds the exported RPC methods. Domain failures travel in the
// response body; a returned error means the request itself was bad.
type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ GolemStartRequest, resp *GolemResponse) error {
	s.logger.Debug("golem start requested")
	snap, err := s.daemon.StartGolem(s.ctx)
	s.answer(resp, snap, err, "golem started via IPC", "ipc_golem_start")
	return nil
}

func (s *service) Stop(_ GolemStopRequest, resp *GolemResponse) error {
	s.logger.Debug("golem stop requested")
	snap, err := s.daemon.StopGolem(s.ctx)
	s.answer(resp, snap, err, "golem stopped via IPC", "ipc_golem_stop")
	return nil
}

func (s *service) answer(resp *GolemResponse, snap golem.Snapshot, err error, msg, event string) {
	*resp = GolemResponse{Ok: err == nil, Golem: api.FromSnapshot(snap)}
	if err != nil {
		resp.Message = err.Error()
		return
	}
	s.logger.Info(msg, logging.String(logging.FieldEventType, event))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx).DTO()
	return nil
}

func (s *service) ListJobs(req JobListRequest, resp *JobListResponse) error {
	since, err := parseSince(req.Since)
	if err != nil {
		return err
	}
	list, err := s.daemon.ListJobs(s.ctx, since)
	if err != nil {
		return err
	}
	resp.Jobs = api.FromJobs(list)
	return nil
}

func parseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since %q: %w", raw, err)
	}
	return t, nil
}

// DescribeJob looks up req.ID, or the current job when the id is blank.
func (s *service) DescribeJob(req JobDescribeRequest, resp *JobDescribeResponse) error {
	var job *jobs.Job
	if id := strings.TrimSpace(req.ID); id != "" {
		found, err := s.daemon.Job(s.ctx, id)
		if err != nil {
			return err
		}
		job = found
	} else if current, ok := s.daemon.CurrentJob(); ok {
		job = &current
	}
	if job != nil {
		resp.Found, resp.Job = true, api.FromJob(*job)
	}
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	resp.Events = api.FromEvents(s.daemon.Events(req.Limit))
	return nil
}

// LogTail long-polls for at most req.WaitMillis (one second by default)
// when following.
func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 {
			wait = time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	result, err := daemon.QueryLogs(ctx, s.daemon.LogStream(), daemon.LogQuery{
		Since:     req.Since,
		Limit:     req.Limit,
		Follow:    req.Follow,
		Tail:      !req.Follow && req.Since == 0,
		Component: req.Component,
		Agreement: req.Agreement,
	})
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	if resp.Accepted = s.daemon.RequestShutdown(); resp.Accepted {
		s.logger.Info("shutdown requested via IPC", logging.String(logging.FieldEventType, "ipc_shutdown"))
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Sent, resp.Message = true, "test notification sent"
	return nil
}
