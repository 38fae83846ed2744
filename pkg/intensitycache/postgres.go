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

package intensitycache

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore is the Store implementation against the logical
// `carbon_cache` table, unique on (region, timestamp, forecast_window).
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens (but does not migrate) a Postgres-backed Store.
// Schema management is goose's job (see internal/migrations), not this package's.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callTimeout = 5 * time.Second

func (s *PostgresStore) Upsert(ctx context.Context, r row) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO carbon_cache (region, timestamp, intensity_value, forecast_window, source, created_at, expires_at)
		VALUES (:region, :timestamp, :intensity_value, :forecast_window, :source, :created_at, :expires_at)
		ON CONFLICT (region, timestamp, forecast_window)
		DO UPDATE SET intensity_value = EXCLUDED.intensity_value,
		              source = EXCLUDED.source,
		              created_at = EXCLUDED.created_at,
		              expires_at = EXCLUDED.expires_at
	`, r)
	return err
}

func (s *PostgresStore) BulkUpsert(ctx context.Context, rs []row) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rs {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO carbon_cache (region, timestamp, intensity_value, forecast_window, source, created_at, expires_at)
			VALUES (:region, :timestamp, :intensity_value, :forecast_window, :source, :created_at, :expires_at)
			ON CONFLICT (region, timestamp, forecast_window)
			DO UPDATE SET intensity_value = EXCLUDED.intensity_value,
			              source = EXCLUDED.source,
			              created_at = EXCLUDED.created_at,
			              expires_at = EXCLUDED.expires_at
		`, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Range(ctx context.Context, region string, start, end time.Time) ([]row, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT region, timestamp, intensity_value, forecast_window, source, created_at, expires_at
		FROM carbon_cache
		WHERE region = $1 AND timestamp BETWEEN $2 AND $3 AND expires_at > now()
		ORDER BY timestamp ASC
	`, region, start, end)
	return rows, err
}

func (s *PostgresStore) Nearest(ctx context.Context, region string, instant time.Time, tolerance time.Duration) ([]row, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT region, timestamp, intensity_value, forecast_window, source, created_at, expires_at
		FROM carbon_cache
		WHERE region = $1 AND timestamp BETWEEN $2 AND $3 AND expires_at > now()
	`, region, instant.Add(-tolerance), instant.Add(tolerance))
	return rows, err
}

func (s *PostgresStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM carbon_cache WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
