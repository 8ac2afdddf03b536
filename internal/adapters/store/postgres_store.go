package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/database"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

// PostgresDatasetStore keeps one row per (dataset, date) with the value
// fields as JSONB. Save replaces the whole dataset inside a transaction so
// readers see either the old table or the new one, never a mix.
type PostgresDatasetStore struct {
	db     *database.DB
	logger *logger.Logger
}

// NewPostgresDatasetStore creates a Postgres-backed dataset store
func NewPostgresDatasetStore(db *database.DB, log *logger.Logger) ports.DatasetStore {
	return &PostgresDatasetStore{
		db:     db,
		logger: log.WithComponent("dataset_store"),
	}
}

func (s *PostgresDatasetStore) Load(ctx context.Context, key string) (*series.Table, error) {
	query := `
		SELECT date, fields
		FROM dataset_records
		WHERE dataset_key = $1
		ORDER BY date`

	rows, err := s.db.DB.QueryxContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", key, err)
	}
	defer rows.Close()

	table := series.New()
	for rows.Next() {
		var (
			date   time.Time
			fields []byte
		)
		if err := rows.Scan(&date, &fields); err != nil {
			s.logger.Warnw("Corrupt dataset row, treating dataset as absent", "dataset", key, "error", err.Error())
			return series.New(), nil
		}
		values := make(map[string]float64)
		if err := json.Unmarshal(fields, &values); err != nil {
			s.logger.Warnw("Corrupt dataset row, treating dataset as absent", "dataset", key, "error", err.Error())
			return series.New(), nil
		}
		table.Append(series.Record{Date: series.Day(date), Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", key, err)
	}

	return table.Normalize(), nil
}

func (s *PostgresDatasetStore) Save(ctx context.Context, key string, table *series.Table) error {
	normalized := table.Clone().Normalize()

	return s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_records WHERE dataset_key = $1`, key); err != nil {
			return fmt.Errorf("clear dataset %s: %w", key, err)
		}

		insert := `
			INSERT INTO dataset_records (dataset_key, date, fields)
			VALUES ($1, $2, $3)`

		for _, rec := range normalized.Records {
			fields, err := json.Marshal(rec.Values)
			if err != nil {
				return fmt.Errorf("encode record fields: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insert, key, rec.Date, fields); err != nil {
				return fmt.Errorf("insert dataset record: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresDatasetStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.DB.ExecContext(ctx, `DELETE FROM dataset_records WHERE dataset_key = $1`, key); err != nil {
		return fmt.Errorf("delete dataset %s: %w", key, err)
	}
	return nil
}

func (s *PostgresDatasetStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM dataset_records WHERE dataset_key = $1)`
	if err := s.db.DB.GetContext(ctx, &exists, query, key); err != nil {
		return false, fmt.Errorf("stat dataset %s: %w", key, err)
	}
	return exists, nil
}

// PostgresMetadataStore keeps one checkpoint row per dataset key.
type PostgresMetadataStore struct {
	db    *database.DB
	clock clockwork.Clock
}

// NewPostgresMetadataStore creates a Postgres-backed metadata store
func NewPostgresMetadataStore(db *database.DB, clock clockwork.Clock) ports.MetadataStore {
	return &PostgresMetadataStore{db: db, clock: clock}
}

func (s *PostgresMetadataStore) LastChecked(ctx context.Context, key string) (time.Time, error) {
	var last time.Time
	query := `SELECT last_checked FROM dataset_checkpoints WHERE dataset_key = $1`
	err := s.db.DB.GetContext(ctx, &last, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("load checkpoint %s: %w", key, err)
	}
	return last, nil
}

func (s *PostgresMetadataStore) Touch(ctx context.Context, key string) error {
	return s.SetLastChecked(ctx, key, s.clock.Now())
}

func (s *PostgresMetadataStore) SetLastChecked(ctx context.Context, key string, t time.Time) error {
	query := `
		INSERT INTO dataset_checkpoints (dataset_key, last_checked)
		VALUES ($1, $2)
		ON CONFLICT (dataset_key) DO UPDATE SET last_checked = EXCLUDED.last_checked`

	if _, err := s.db.DB.ExecContext(ctx, query, key, t); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *PostgresMetadataStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.DB.ExecContext(ctx, `DELETE FROM dataset_checkpoints WHERE dataset_key = $1`, key); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", key, err)
	}
	return nil
}
