package verification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"idvault/internal/decision"
	"idvault/internal/schema"
	"idvault/pkg/sentinel"
)

// PostgresStore persists verification records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed verification store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	stages, err := json.Marshal(record.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	var decisionVal, reasonVal sql.NullString
	if record.Decision != nil {
		decisionVal = sql.NullString{String: string(record.Decision.Outcome), Valid: true}
		reasonVal = sql.NullString{String: record.Decision.Reason, Valid: true}
	}
	var provenance []byte
	if record.Provenance != nil {
		if provenance, err = json.Marshal(record.Provenance); err != nil {
			return fmt.Errorf("marshal provenance: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_records
			(id, wallet_id, credential_type, overall_status, progress, stages, error, decision, reason, provenance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			overall_status = EXCLUDED.overall_status,
			progress = EXCLUDED.progress,
			stages = EXCLUDED.stages,
			error = EXCLUDED.error,
			decision = EXCLUDED.decision,
			reason = EXCLUDED.reason,
			provenance = EXCLUDED.provenance,
			updated_at = EXCLUDED.updated_at`,
		record.ID, record.WalletID, string(record.CredentialType), string(record.OverallStatus),
		record.Progress, stages, record.Error, decisionVal, reasonVal, provenance,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, wallet_id, credential_type, overall_status, progress, stages,
		       COALESCE(error, ''), decision, reason, provenance, created_at, updated_at
		FROM verification_records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification record not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find verification record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByWallet(ctx context.Context, walletID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_id, credential_type, overall_status, progress, stages,
		       COALESCE(error, ''), decision, reason, provenance, created_at, updated_at
		FROM verification_records WHERE wallet_id = $1
		ORDER BY created_at DESC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list verification records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r          Record
		credType   string
		status     string
		stages     []byte
		decisionV  sql.NullString
		reasonV    sql.NullString
		provenance []byte
	)
	if err := row.Scan(&r.ID, &r.WalletID, &credType, &status, &r.Progress, &stages,
		&r.Error, &decisionV, &reasonV, &provenance, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	r.CredentialType = schema.CredentialType(credType)
	r.OverallStatus = OverallStatus(status)
	if err := json.Unmarshal(stages, &r.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	if decisionV.Valid {
		r.Decision = &decision.Decision{
			Outcome: decision.Outcome(decisionV.String),
			Reason:  reasonV.String,
		}
	}
	if len(provenance) > 0 {
		var p decision.Provenance
		if err := json.Unmarshal(provenance, &p); err != nil {
			return nil, fmt.Errorf("unmarshal provenance: %w", err)
		}
		r.Provenance = &p
	}
	return &r, nil
}
