package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"idvault/pkg/sentinel"
)

// PostgresStore persists identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, identity *Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities
			(wallet_id, address, salt, commitment, verification_bits, recovery_counter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		identity.WalletID, identity.Address, int16(identity.Salt), identity.Commitment,
		int64(identity.VerificationBits), int64(identity.RecoveryCounter),
		identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("identity %s already exists: %w", identity.WalletID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByWallet(ctx context.Context, walletID string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wallet_id, address, salt, commitment, verification_bits, recovery_counter, created_at, updated_at
		FROM identities WHERE wallet_id = $1`, walletID)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %s not found: %w", walletID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return identity, nil
}

// Update runs mutate against the row locked FOR UPDATE so concurrent bitmap
// and counter changes serialize at the database.
func (s *PostgresStore) Update(ctx context.Context, walletID string, mutate func(*Identity) error) (*Identity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin identity update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT wallet_id, address, salt, commitment, verification_bits, recovery_counter, created_at, updated_at
		FROM identities WHERE wallet_id = $1 FOR UPDATE`, walletID)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %s not found: %w", walletID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock identity: %w", err)
	}

	if err := mutate(identity); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE identities
		SET commitment = $2, verification_bits = $3, recovery_counter = $4, updated_at = $5
		WHERE wallet_id = $1`,
		identity.WalletID, identity.Commitment,
		int64(identity.VerificationBits), int64(identity.RecoveryCounter), identity.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update identity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit identity update: %w", err)
	}
	return identity, nil
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var (
		i       Identity
		salt    int16
		bits    int64
		counter int64
	)
	if err := row.Scan(&i.WalletID, &i.Address, &salt, &i.Commitment,
		&bits, &counter, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	i.Salt = byte(salt)
	i.VerificationBits = uint32(bits)
	i.RecoveryCounter = uint64(counter)
	return &i, nil
}
