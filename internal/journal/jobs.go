package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golemfacade/internal/jobs"
)

// SaveJob upserts the latest snapshot of job. sessionID records which Start
// attempt last observed it and may be empty.
func (s *Store) SaveJob(ctx context.Context, job jobs.Job, sessionID string) error {
	if job.ID == "" {
		return errors.New("job has no agreement id")
	}
	snapshot, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	created := job.Timestamp
	if created.IsZero() {
		created = updated
	}
	err = s.exec(ctx,
		`INSERT INTO jobs (
            agreement_id, requestor_id, status, payment_status, reward,
            snapshot_json, created_at, updated_at, session_id
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(agreement_id) DO UPDATE SET
            requestor_id = excluded.requestor_id,
            status = excluded.status,
            payment_status = excluded.payment_status,
            reward = excluded.reward,
            snapshot_json = excluded.snapshot_json,
            updated_at = excluded.updated_at,
            session_id = COALESCE(excluded.session_id, jobs.session_id)`,
		job.ID,
		job.RequestorID,
		string(job.Status),
		nullableString(string(job.PaymentStatus)),
		job.CurrentReward().String(),
		string(snapshot),
		formatTime(created),
		formatTime(updated),
		nullableString(sessionID),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Job returns the stored snapshot for agreementID, or nil when unknown.
func (s *Store) Job(ctx context.Context, agreementID string) (*jobs.Job, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM jobs WHERE agreement_id = ?`, agreementID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	job, err := decodeJob(raw)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns snapshots updated at or after since, oldest agreement
// first. A zero since returns everything.
func (s *Store) ListJobs(ctx context.Context, since time.Time) ([]jobs.Job, error) {
	query := `SELECT snapshot_json FROM jobs`
	var args []any
	if !since.IsZero() {
		query += ` WHERE updated_at >= ?`
		args = append(args, formatTime(since))
	}
	query += ` ORDER BY created_at, agreement_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var list []jobs.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		job, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// Stats counts stored jobs by status.
func (s *Store) Stats(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[jobs.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[jobs.Status(status)] = count
	}
	return stats, rows.Err()
}

func decodeJob(raw string) (jobs.Job, error) {
	var job jobs.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return jobs.Job{}, fmt.Errorf("decode job snapshot: %w", err)
	}
	return job, nil
}
