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

package jobstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

var jobColumns = []string{
	"id", "submitter_key", "docker_image", "argv", "submitted_at", "deadline",
	"estimated_runtime_seconds", "region", "scheduled_start", "status",
	"created_at", "started_at", "completed_at", "metadata",
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")
	return New(db), mock
}

func TestCreateAssignsDefaults(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).WillReturnResult(sqlmock.NewResult(1, 1))

	item := karbos.WorkItem{
		DockerImage: "img",
		Deadline:    time.Now().Add(time.Hour),
	}
	created, err := store.Create(context.Background(), item)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("expected an ID to be assigned")
	}
	if created.Status != karbos.StatusPending {
		t.Errorf("Status = %v, want Pending default", created.Status)
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be defaulted")
	}
	if created.Metadata == nil {
		t.Error("expected Metadata to be defaulted to an empty map")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(jobColumns))

	_, err := store.GetByID(context.Background(), id)
	if err != karbos.ErrNotFound {
		t.Errorf("GetByID err = %v, want ErrNotFound", err)
	}
}

func TestGetByIDFound(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(jobColumns).AddRow(
		id, "user-1", "img", "[]", now, now.Add(time.Hour),
		600, "US-CAL-CISO", now, string(karbos.StatusPending),
		now, nil, nil, "{}",
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(rows)

	got, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != id || got.DockerImage != "img" {
		t.Errorf("GetByID() = %+v, want ID=%v DockerImage=img", got, id)
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(jobColumns).AddRow(
		id, "user-1", "img", "[]", now, now.Add(time.Hour),
		600, "US-CAL-CISO", now, string(karbos.StatusCompleted),
		now, &now, &now, "{}",
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(rows)

	err := store.UpdateStatus(context.Background(), id, karbos.StatusRunning)
	if err == nil {
		t.Error("expected rejection of Completed -> Running")
	}
}

func TestUpdateStatusToRunningSetsStartedAt(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(jobColumns).AddRow(
		id, "user-1", "img", "[]", now, now.Add(time.Hour),
		600, "US-CAL-CISO", now, string(karbos.StatusPending),
		now, nil, nil, "{}",
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateStatus(context.Background(), id, karbos.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWriteExecutionRecordAssignsID(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO execution_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	record := karbos.ExecutionRecord{WorkItemID: uuid.New(), ExitCode: 0}
	if err := store.WriteExecutionRecord(context.Background(), record); err != nil {
		t.Fatalf("WriteExecutionRecord: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
