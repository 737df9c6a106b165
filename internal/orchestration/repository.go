package orchestration

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq" // Used for handling specific PostgreSQL errors
)

// ErrAlreadyRecorded is returned when a match already has an acquisition row.
var ErrAlreadyRecorded = errors.New("acquisition already recorded for match")

// Acquisition is one provisioning attempt for a match.
type Acquisition struct {
	MatchID      string
	Region       string
	SessionID    string
	Address      string
	Port         int
	Succeeded    bool
	ErrorMessage string
	Duration     time.Duration
}

// Repository persists acquisition outcomes.
type Repository interface {
	RecordAcquisition(ctx context.Context, a Acquisition) error
}

type postgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

// RecordAcquisition inserts the outcome of a provisioning attempt.
func (r *postgresRepository) RecordAcquisition(ctx context.Context, a Acquisition) error {
	query := `
		INSERT INTO server_acquisitions (match_id, region, session_id, address, port, succeeded, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := r.db.ExecContext(ctx, query,
		a.MatchID,
		nullable(a.Region),
		nullable(a.SessionID),
		nullable(a.Address),
		a.Port,
		a.Succeeded,
		nullable(a.ErrorMessage),
		a.Duration.Milliseconds(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			slog.Warn("Acquisition already recorded", "matchID", a.MatchID)
			return ErrAlreadyRecorded
		}
		slog.Error("Failed to record acquisition", "matchID", a.MatchID, "error", err)
		return err
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
