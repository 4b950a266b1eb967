package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"idvault/pkg/sentinel"
)

// PostgresStore persists grants in PostgreSQL. The CAS semantics of
// MarkRevoked/MarkArchived ride on conditional UPDATEs, so concurrent
// revokes and sweeps serialize at the row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed grant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const grantColumns = `address, credential_address, grantor_wallet_id, grantee_wallet_id, purpose,
       field_mask, salt, expires_at, revoked, archived, created_at`

func (s *PostgresStore) Create(ctx context.Context, grant *Grant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_grants
			(address, credential_address, grantor_wallet_id, grantee_wallet_id, purpose, field_mask, salt, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		grant.Address, grant.CredentialAddress, grant.GrantorWalletID, grant.GranteeWalletID,
		grant.Purpose, int64(grant.FieldMask), int16(grant.Salt), grant.ExpiresAt, grant.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("grant %s already exists: %w", grant.Address, sentinel.ErrConflict)
		}
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address string) (*Grant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM access_grants WHERE address = $1`, address)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("grant %s not found: %w", address, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find grant: %w", err)
	}
	return grant, nil
}

func (s *PostgresStore) ListByCredential(ctx context.Context, credentialAddress string) ([]*Grant, error) {
	return s.list(ctx, `credential_address = $1`, credentialAddress)
}

func (s *PostgresStore) ListByGrantor(ctx context.Context, grantorWalletID string) ([]*Grant, error) {
	return s.list(ctx, `grantor_wallet_id = $1`, grantorWalletID)
}

func (s *PostgresStore) ListByGrantee(ctx context.Context, granteeWalletID string) ([]*Grant, error) {
	return s.list(ctx, `grantee_wallet_id = $1`, granteeWalletID)
}

func (s *PostgresStore) list(ctx context.Context, where string, arg any) ([]*Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM access_grants WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []*Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, grant)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, address string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE access_grants SET revoked = TRUE WHERE address = $1 AND NOT revoked`, address)
	if err != nil {
		return false, fmt.Errorf("revoke grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke grant: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Unchanged: distinguish already-revoked from missing.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_grants WHERE address = $1)`, address).Scan(&exists); err != nil {
		return false, fmt.Errorf("revoke grant: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("grant %s not found: %w", address, sentinel.ErrNotFound)
	}
	return false, nil
}

func (s *PostgresStore) ExpiredCandidates(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address FROM access_grants
		WHERE NOT revoked AND NOT archived AND expires_at <= $1
		ORDER BY expires_at`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired grants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan expired grant: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkArchived(ctx context.Context, address string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_grants SET archived = TRUE
		WHERE address = $1 AND NOT revoked AND NOT archived AND expires_at <= $2`,
		address, now)
	if err != nil {
		return false, fmt.Errorf("archive grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive grant: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*Grant, error) {
	var (
		g    Grant
		mask int64
		salt int16
	)
	if err := row.Scan(&g.Address, &g.CredentialAddress, &g.GrantorWalletID, &g.GranteeWalletID,
		&g.Purpose, &mask, &salt, &g.ExpiresAt, &g.Revoked, &g.Archived, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.FieldMask = uint64(mask)
	g.Salt = byte(salt)
	return &g, nil
}
