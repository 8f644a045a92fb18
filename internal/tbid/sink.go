package tbid

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tbi-sim/tbi-core/pkg/logger"
)

// ResultSink persists finished training jobs to a MySQL table so results
// survive daemon restarts and can be queried offline.
type ResultSink struct {
	db    *sql.DB
	table string
}

func NewResultSink(dsn, table string) (*ResultSink, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	return &ResultSink{db: db, table: table}, nil
}

func (s *ResultSink) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the results table if it does not exist
func (s *ResultSink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		job_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		best_bitstring TEXT,
		best_energy DOUBLE,
		updates INT,
		distinct_solutions INT,
		energies JSON,
		created_at_unix_ms BIGINT,
		ended_at_unix_ms BIGINT,
		INDEX idx_job_id (job_id)
	)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure results schema: %w", err)
	}
	return nil
}

// Store inserts one finished training job
func (s *ResultSink) Store(ctx context.Context, rec *JobRecord) error {
	if rec == nil || rec.Job == nil || rec.TrainResult == nil {
		return fmt.Errorf("job record has no training result")
	}

	energiesJSON, err := json.Marshal(rec.TrainResult.Energies)
	if err != nil {
		return fmt.Errorf("failed to marshal energy histories: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(job_id, status, best_bitstring, best_energy, updates, distinct_solutions, energies, created_at_unix_ms, ended_at_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		rec.Job.ID,
		string(rec.Job.Status),
		rec.TrainResult.BestBitstring,
		rec.TrainResult.BestEnergy,
		rec.TrainResult.Updates,
		rec.TrainResult.DistinctSolutions,
		string(energiesJSON),
		rec.Job.CreatedAtUnixMs,
		rec.Job.EndedAtUnixMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job result: %w", err)
	}

	logger.Debug("job result persisted", "job_id", rec.Job.ID, "table", s.table)
	return nil
}
