package ledger

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
)

// DeadLetter is one failed attempt routed aside for operator inspection.
// The pipeline never consumes these automatically.
type DeadLetter struct {
	ID        string
	AssetKey  string
	Stage     constants.StageName
	Category  common.Category
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// DeadLetterRepository is the dead-letter channel: Publish is the pipeline's
// only write path, List is operator-facing.
type DeadLetterRepository interface {
	Publish(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context, from, to *time.Time) ([]DeadLetter, error)
}

type deadLetterRepo struct {
	db  *sql.DB
	log *slog.Logger
}

// NewDeadLetterRepository returns a sqlite-backed DeadLetterRepository.
func NewDeadLetterRepository(db *sql.DB, log *slog.Logger) DeadLetterRepository {
	if log == nil {
		log = slog.Default()
	}
	return &deadLetterRepo{db: db, log: log}
}

func (r *deadLetterRepo) Publish(ctx context.Context, dl DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, asset_key, stage, category, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dl.ID, dl.AssetKey, string(dl.Stage), string(dl.Category), dl.Attempts, dl.LastError, dl.CreatedAt,
	)
	if err != nil {
		r.log.Error("ledger.deadletter.publish_failed", "asset_key", dl.AssetKey, "stage", dl.Stage, "error", err)
		return err
	}
	r.log.Warn("ledger.deadletter.published",
		"asset_key", dl.AssetKey, "stage", dl.Stage,
		"category", dl.Category, "attempts", dl.Attempts, "last_error", dl.LastError,
	)
	return nil
}

func (r *deadLetterRepo) List(ctx context.Context, from, to *time.Time) ([]DeadLetter, error) {
	query := `
		SELECT id, asset_key, stage, category, attempts, last_error, created_at
		FROM dead_letters WHERE 1=1`
	var args []any
	if from != nil {
		query += " AND created_at >= ?"
		args = append(args, *from)
	}
	if to != nil {
		query += " AND created_at <= ?"
		args = append(args, *to)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.AssetKey, &dl.Stage, &dl.Category, &dl.Attempts, &dl.LastError, &dl.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}
