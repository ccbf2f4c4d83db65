package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lendfast/origination-engine/internal/domain"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

type applicationRepository struct {
	db *sqlx.DB
}

func NewApplicationRepository(db *sqlx.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

// applicationRow maps the applications table. Typed answers are stored as
// one JSONB document; the verification fields get their own columns so
// webhooks can update them without rewriting the whole snapshot.
type applicationRow struct {
	LoanID            string    `db:"loan_id"`
	Status            string    `db:"status"`
	Step              int       `db:"step"`
	Answers           []byte    `db:"answers"`
	PhoneNumber       string    `db:"phone_number"`
	PhoneStatus       string    `db:"phone_status"`
	IdentitySessionID string    `db:"identity_session_id"`
	IdentityStatus    string    `db:"identity_status"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r *applicationRepository) Get(ctx context.Context, loanID string) (*domain.ApplicationSnapshot, error) {
	query := `
		SELECT loan_id, status, step, answers, phone_number, phone_status, identity_session_id, identity_status, updated_at
		FROM applications
		WHERE loan_id = $1
	`

	var row applicationRow
	err := r.db.GetContext(ctx, &row, query, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.WrapApplicationNotFound(loanID)
	}
	if err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}

	snap := &domain.ApplicationSnapshot{
		LoanID: row.LoanID,
		Status: row.Status,
		Step:   domain.Step(row.Step),
		Phone: domain.PhoneDetails{
			Number: row.PhoneNumber,
			Status: domain.VerificationStatus(row.PhoneStatus),
		},
		Identity: domain.IdentityDetails{
			SessionID: row.IdentitySessionID,
			Status:    domain.VerificationStatus(row.IdentityStatus),
		},
		UpdatedAt: row.UpdatedAt,
	}

	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &snap.Answers); err != nil {
			return nil, apperrors.WrapDatabaseError(err)
		}
	}

	return snap, nil
}

func (r *applicationRepository) Upsert(ctx context.Context, snap *domain.ApplicationSnapshot) error {
	answers, err := json.Marshal(snap.Answers)
	if err != nil {
		return apperrors.WrapDatabaseError(err)
	}

	query := `
		INSERT INTO applications (loan_id, status, step, answers, phone_number, phone_status, identity_session_id, identity_status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (loan_id) DO UPDATE SET
			status = EXCLUDED.status,
			step = EXCLUDED.step,
			answers = EXCLUDED.answers,
			phone_number = EXCLUDED.phone_number,
			phone_status = EXCLUDED.phone_status,
			identity_session_id = EXCLUDED.identity_session_id,
			identity_status = EXCLUDED.identity_status,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		snap.LoanID,
		snap.Status,
		int(snap.Step),
		answers,
		snap.Phone.Number,
		string(snap.Phone.Status),
		snap.Identity.SessionID,
		string(snap.Identity.Status),
		time.Now(),
	)
	if err != nil {
		return apperrors.WrapDatabaseError(err)
	}

	return nil
}

func (r *applicationRepository) Complete(ctx context.Context, loanID string) error {
	query := `
		UPDATE applications
		SET status = $2, step = $3, updated_at = $4
		WHERE loan_id = $1 AND status <> $2
	`

	result, err := r.db.ExecContext(ctx, query,
		loanID,
		domain.ApplicationStatusCompleted,
		int(domain.StepSubmitted),
		time.Now(),
	)
	if err != nil {
		return apperrors.WrapDatabaseError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.WrapDatabaseError(err)
	}
	if affected > 0 {
		return nil
	}

	// No row changed: either already completed or missing entirely.
	if _, err := r.Get(ctx, loanID); err != nil {
		return err
	}
	return apperrors.WrapAlreadyCompleted(loanID)
}
