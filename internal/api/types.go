package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Rates mirrors a price or usage vector. Values are decimal strings so no
// precision is lost in transit.
type Rates struct {
	Start    string `json:"start"`
	GPU      string `json:"gpuSec"`
	Duration string `json:"durationSec"`
	Requests string `json:"requests"`
}

// Payment is one confirmed partial payment.
type Payment struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Timestamp string `json:"timestamp,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// Job describes an agreement in a transport-friendly format.
type Job struct {
	ID              string    `json:"id"`
	RequestorID     string    `json:"requestorId"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"paymentStatus,omitempty"`
	Price           Rates     `json:"price"`
	Usage           Rates     `json:"usage"`
	Reward          string    `json:"reward"`
	Confirmed       string    `json:"confirmed"`
	Payments        []Payment `json:"payments,omitempty"`
	Terminated      bool      `json:"terminated"`
	TerminationCode string    `json:"terminationCode,omitempty"`
	CreatedAt       string    `json:"createdAt,omitempty"`
	UpdatedAt       string    `json:"updatedAt,omitempty"`
}

// GolemStatus summarizes the facade state.
type GolemStatus struct {
	Status    string `json:"status"`
	NodeID    string `json:"nodeId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`
	LastError string `json:"lastError,omitempty"`
	Current   *Job   `json:"currentJob,omitempty"`
}

// Event is an application event.
type Event struct {
	ID          string `json:"id"`
	Time        string `json:"time"`
	Severity    string `json:"severity"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Error       string `json:"error,omitempty"`
	AgreementID string `json:"agreementId,omitempty"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// StatusLine is one labelled row of a status report.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	JournalPath  string             `json:"journalPath,omitempty"`
	LockFilePath string             `json:"lockFilePath"`
	Golem        GolemStatus        `json:"golem"`
	JobCounts    map[string]int     `json:"jobCounts"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// EventListResponse wraps recent application events.
type EventListResponse struct {
	Events []Event `json:"events"`
}

// LogEvent is one structured log line.
type LogEvent struct {
	Sequence    uint64            `json:"seq"`
	Time        string            `json:"time"`
	Level       string            `json:"level"`
	Message     string            `json:"msg"`
	Component   string            `json:"component,omitempty"`
	AgreementID string            `json:"agreementId,omitempty"`
	Daemon      string            `json:"daemon,omitempty"`
	EventType   string            `json:"eventType,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse carries log lines and the sequence to resume from.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
