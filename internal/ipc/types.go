package ipc

import "golemfacade/internal/api"

// GolemStartRequest starts yagna and ya-provider.
type GolemStartRequest struct{}

// GolemStopRequest stops yagna and ya-provider.
type GolemStopRequest struct{}

// GolemStatus mirrors the HTTP API facade snapshot.
type GolemStatus = api.GolemStatus

// GolemResponse reports the facade state after a lifecycle request. Message
// carries the failure when Ok is false.
type GolemResponse struct {
	Ok      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Golem   GolemStatus `json:"golem"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and facade status.
type StatusResponse = api.DaemonStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// Job mirrors the HTTP API job DTO.
type Job = api.Job

// JobListRequest limits the listing to jobs updated at or after Since
// (RFC3339). An empty Since lists everything.
type JobListRequest struct {
	Since string `json:"since"`
}

// JobListResponse contains jobs, newest first.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobDescribeRequest fetches one job by agreement id. An empty ID selects
// the current job.
type JobDescribeRequest struct {
	ID string `json:"id"`
}

// JobDescribeResponse contains a single job.
type JobDescribeResponse struct {
	Found bool `json:"found"`
	Job   Job  `json:"job"`
}

// EventsRequest fetches recent application events.
type EventsRequest struct {
	Limit int `json:"limit"`
}

// EventsResponse lists events oldest first.
type EventsResponse struct {
	Events []api.Event `json:"events"`
}

// LogTailRequest fetches log events after Since. With Follow the call waits
// up to WaitMillis for new events.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component"`
	Agreement  string `json:"agreement"`
}

// LogTailResponse returns log events and the sequence to resume from.
type LogTailResponse = api.LogStreamResponse

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse reports whether the request was accepted.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
