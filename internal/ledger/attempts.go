package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
)

// Attempt is the persisted processing state for one (asset key, stage)
// pair. One row per pair; redeliveries update it in place.
type Attempt struct {
	ID        string
	AssetKey  string
	Stage     constants.StageName
	Status    constants.AttemptStatus
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// AttemptRepository tracks per-(asset, stage) processing state.
type AttemptRepository interface {
	// Record upserts the attempt row for (assetKey, stage).
	Record(ctx context.Context, assetKey string, stage constants.StageName, status constants.AttemptStatus, attempts int, lastError string) error

	// Get returns the attempt row, or nil when the pair was never seen.
	Get(ctx context.Context, assetKey string, stage constants.StageName) (*Attempt, error)

	// List returns attempts updated in [from, to], newest first. Nil
	// bounds are open. Audit/debug only.
	List(ctx context.Context, from, to *time.Time) ([]Attempt, error)
}

type attemptRepo struct {
	db  *sql.DB
	log *slog.Logger
}

// NewAttemptRepository returns a sqlite-backed AttemptRepository.
func NewAttemptRepository(db *sql.DB, log *slog.Logger) AttemptRepository {
	if log == nil {
		log = slog.Default()
	}
	return &attemptRepo{db: db, log: log}
}

func (r *attemptRepo) Record(ctx context.Context, assetKey string, stage constants.StageName, status constants.AttemptStatus, attempts int, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_attempts (id, asset_key, stage, status, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_key, stage) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		uuid.NewString(), assetKey, string(stage), string(status), attempts, lastError, time.Now().UTC(),
	)
	if err != nil {
		r.log.Error("ledger.attempt.record_failed", "asset_key", assetKey, "stage", stage, "error", err)
		return err
	}
	return nil
}

func (r *attemptRepo) Get(ctx context.Context, assetKey string, stage constants.StageName) (*Attempt, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, asset_key, stage, status, attempts, last_error, updated_at
		FROM processing_attempts
		WHERE asset_key = ? AND stage = ?`,
		assetKey, string(stage),
	)
	var a Attempt
	err := row.Scan(&a.ID, &a.AssetKey, &a.Stage, &a.Status, &a.Attempts, &a.LastError, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *attemptRepo) List(ctx context.Context, from, to *time.Time) ([]Attempt, error) {
	query := `
		SELECT id, asset_key, stage, status, attempts, last_error, updated_at
		FROM processing_attempts WHERE 1=1`
	var args []any
	if from != nil {
		query += " AND updated_at >= ?"
		args = append(args, *from)
	}
	if to != nil {
		query += " AND updated_at <= ?"
		args = append(args, *to)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.AssetKey, &a.Stage, &a.Status, &a.Attempts, &a.LastError, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
