/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package jobstore implements C6: the exclusive owner of WorkItem and
// ExecutionRecord rows, backed by Postgres via sqlx/lib/pq.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

const callTimeout = 5 * time.Second

// jobRow is the durable shape of a WorkItem row in the `jobs` table.
type jobRow struct {
	ID               uuid.UUID `db:"id"`
	SubmitterKey     string    `db:"submitter_key"`
	DockerImage      string    `db:"docker_image"`
	Argv             string    `db:"argv"`
	SubmittedAt      time.Time `db:"submitted_at"`
	Deadline         time.Time `db:"deadline"`
	EstimatedRuntime int64     `db:"estimated_runtime_seconds"`
	Region           string    `db:"region"`
	ScheduledStart   time.Time `db:"scheduled_start"`
	Status           string    `db:"status"`
	CreatedAt        time.Time `db:"created_at"`
	StartedAt        *time.Time `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	Metadata         string    `db:"metadata"`
}

func (r jobRow) toWorkItem() (karbos.WorkItem, error) {
	var argv []string
	if err := json.Unmarshal([]byte(r.Argv), &argv); err != nil {
		return karbos.WorkItem{}, fmt.Errorf("%w: argv: %v", karbos.ErrStoreWriteFailed, err)
	}
	meta := map[string]string{}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return karbos.WorkItem{}, fmt.Errorf("%w: metadata: %v", karbos.ErrStoreWriteFailed, err)
		}
	}
	return karbos.WorkItem{
		ID:               r.ID,
		SubmitterKey:     r.SubmitterKey,
		DockerImage:      r.DockerImage,
		Argv:             argv,
		SubmittedAt:      r.SubmittedAt,
		Deadline:         r.Deadline,
		EstimatedRuntime: time.Duration(r.EstimatedRuntime) * time.Second,
		Region:           r.Region,
		ScheduledStart:   r.ScheduledStart,
		Status:           karbos.JobStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Metadata:         meta,
	}, nil
}

func fromWorkItem(w karbos.WorkItem) (jobRow, error) {
	argv, err := json.Marshal(w.Argv)
	if err != nil {
		return jobRow{}, err
	}
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return jobRow{}, err
	}
	return jobRow{
		ID:               w.ID,
		SubmitterKey:     w.SubmitterKey,
		DockerImage:      w.DockerImage,
		Argv:             string(argv),
		SubmittedAt:      w.SubmittedAt,
		Deadline:         w.Deadline,
		EstimatedRuntime: int64(w.EstimatedRuntime / time.Second),
		Region:           w.Region,
		ScheduledStart:   w.ScheduledStart,
		Status:           string(w.Status),
		CreatedAt:        w.CreatedAt,
		StartedAt:        w.StartedAt,
		CompletedAt:      w.CompletedAt,
		Metadata:         string(meta),
	}, nil
}

// executionRow is the durable shape of an ExecutionRecord row in the
// `execution_logs` table.
type executionRow struct {
	ID             uuid.UUID  `db:"id"`
	WorkItemID     uuid.UUID  `db:"work_item_id"`
	StartedAt      time.Time  `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
	ExitCode       int        `db:"exit_code"`
	CapturedOutput string     `db:"captured_output"`
	ErrorMessage   string     `db:"error_message"`
	RuntimeSeconds float64    `db:"runtime_seconds"`
	WorkerNodeID   string     `db:"worker_node_id"`
}

func (r executionRow) toExecutionRecord() karbos.ExecutionRecord {
	return karbos.ExecutionRecord{
		ID:             r.ID,
		WorkItemID:     r.WorkItemID,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		ExitCode:       r.ExitCode,
		CapturedOutput: r.CapturedOutput,
		ErrorMessage:   r.ErrorMessage,
		RuntimeSeconds: r.RuntimeSeconds,
		WorkerNodeID:   r.WorkerNodeID,
	}
}

// Store is C6.
type Store struct {
	db *sqlx.DB
}

// New constructs a Store. Schema management is goose's job
// (internal/migrations), not this package's.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create assigns an identifier if unset, defaults status to Pending and
// created-at to now, and persists atomically.
func (s *Store) Create(ctx context.Context, item karbos.WorkItem) (karbos.WorkItem, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = karbos.StatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}

	row, err := fromWorkItem(item)
	if err != nil {
		return karbos.WorkItem{}, fmt.Errorf("%w: %v", karbos.ErrStoreWriteFailed, err)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, submitter_key, docker_image, argv, submitted_at, deadline,
		                   estimated_runtime_seconds, region, scheduled_start, status,
		                   created_at, started_at, completed_at, metadata)
		VALUES (:id, :submitter_key, :docker_image, :argv, :submitted_at, :deadline,
		        :estimated_runtime_seconds, :region, :scheduled_start, :status,
		        :created_at, :started_at, :completed_at, :metadata)
	`, row)
	if err != nil {
		return karbos.WorkItem{}, serrors.Wrap(fmt.Errorf("%w: %v", karbos.ErrStoreWriteFailed, err), "work-item-id", item.ID)
	}
	return item, nil
}

// GetByID returns the item or a NotFound error.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (karbos.WorkItem, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return karbos.WorkItem{}, karbos.ErrNotFound
	}
	if err != nil {
		return karbos.WorkItem{}, err
	}
	return row.toWorkItem()
}

// UpdateStatus transitions id's status, refusing any edge not present in the
// WorkItem lifecycle graph. Entering Running sets started-at; entering
// Completed or Failed sets completed-at.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus karbos.JobStatus) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !karbos.CanTransition(current.Status, newStatus) {
		return serrors.Wrap(fmt.Errorf("%w: %s -> %s", karbos.ErrStoreTransitionRejected, current.Status, newStatus), "work-item-id", id)
	}

	now := time.Now()
	var res sql.Result
	switch newStatus {
	case karbos.StatusRunning:
		res, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4
		`, string(newStatus), now, id, string(current.Status))
	case karbos.StatusCompleted, karbos.StatusFailed:
		res, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4
		`, string(newStatus), now, id, string(current.Status))
	default:
		res, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET status = $1 WHERE id = $2 AND status = $3
		`, string(newStatus), id, string(current.Status))
	}
	if err != nil {
		return err
	}
	// Zero rows means another writer changed the status between the read and
	// the conditional update: the compare-and-set was lost.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return serrors.Wrap(fmt.Errorf("%w: %s -> %s", karbos.ErrStoreTransitionRejected, current.Status, newStatus), "work-item-id", id)
	}
	return nil
}

// ListByStatus returns up to limit items with the given status, newest first.
func (s *Store) ListByStatus(ctx context.Context, status karbos.JobStatus, limit int) ([]karbos.WorkItem, error) {
	return s.list(ctx, `SELECT * FROM jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, string(status), limit)
}

// ListByUser returns up to limit items submitted by submitterKey, newest
// first.
func (s *Store) ListByUser(ctx context.Context, submitterKey string, limit int) ([]karbos.WorkItem, error) {
	return s.list(ctx, `SELECT * FROM jobs WHERE submitter_key = $1 ORDER BY created_at DESC LIMIT $2`, submitterKey, limit)
}

// ListAll returns up to limit items, newest first.
func (s *Store) ListAll(ctx context.Context, limit int) ([]karbos.WorkItem, error) {
	return s.list(ctx, `SELECT * FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]karbos.WorkItem, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]karbos.WorkItem, 0, len(rows))
	for _, r := range rows {
		item, err := r.toWorkItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// WriteExecutionRecord persists record. The worker pool is the only caller
// (§4.6: "single-writer").
func (s *Store) WriteExecutionRecord(ctx context.Context, record karbos.ExecutionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	row := executionRow{
		ID:             record.ID,
		WorkItemID:     record.WorkItemID,
		StartedAt:      record.StartedAt,
		CompletedAt:    record.CompletedAt,
		ExitCode:       record.ExitCode,
		CapturedOutput: record.CapturedOutput,
		ErrorMessage:   record.ErrorMessage,
		RuntimeSeconds: record.RuntimeSeconds,
		WorkerNodeID:   record.WorkerNodeID,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO execution_logs (id, work_item_id, started_at, completed_at, exit_code,
		                             captured_output, error_message, runtime_seconds, worker_node_id)
		VALUES (:id, :work_item_id, :started_at, :completed_at, :exit_code,
		        :captured_output, :error_message, :runtime_seconds, :worker_node_id)
	`, row)
	if err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrStoreWriteFailed, err)
	}
	return nil
}
