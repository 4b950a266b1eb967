package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"idvault/internal/schema"
	"idvault/pkg/sentinel"
)

// PostgresStore persists credentials in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed credential store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const credentialColumns = `address, owner_wallet_id, credential_type, claims_hash, issuer_id, salt,
       issued_at, expiry, revoked, COALESCE(revocation_reason, '')`

func (s *PostgresStore) Create(ctx context.Context, credential *Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials
			(address, owner_wallet_id, credential_type, claims_hash, issuer_id, salt, issued_at, expiry, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		credential.Address, credential.OwnerWalletID, string(credential.CredentialType),
		credential.ClaimsHash, credential.IssuerID, int16(credential.Salt),
		credential.IssuedAt, credential.Expiry,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("credential %s already exists: %w", credential.Address, sentinel.ErrConflict)
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE address = $1`, address)
	credential, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s not found: %w", address, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return credential, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerWalletID string) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE owner_wallet_id = $1 ORDER BY issued_at DESC`,
		ownerWalletID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, credential)
	}
	return out, rows.Err()
}

// MarkRevoked flips the revoked flag exactly once; the reason of the first
// revocation wins.
func (s *PostgresStore) MarkRevoked(ctx context.Context, address, reason string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE credentials
		SET revoked = TRUE,
		    revocation_reason = CASE WHEN revoked THEN revocation_reason ELSE $2 END
		WHERE address = $1
		RETURNING `+credentialColumns,
		address, reason)
	credential, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s not found: %w", address, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("revoke credential: %w", err)
	}
	return credential, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var (
		c        Credential
		credType string
		salt     int16
		expiry   sql.NullTime
	)
	if err := row.Scan(&c.Address, &c.OwnerWalletID, &credType, &c.ClaimsHash, &c.IssuerID,
		&salt, &c.IssuedAt, &expiry, &c.Revoked, &c.RevocationReason); err != nil {
		return nil, err
	}
	c.CredentialType = schema.CredentialType(credType)
	c.Salt = byte(salt)
	if expiry.Valid {
		t := expiry.Time
		c.Expiry = &t
	}
	return &c, nil
}
