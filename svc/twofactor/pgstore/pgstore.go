// Package pgstore implements twofactor.Store on PostgreSQL with pgx.
//
// Profile writes are conditional on the version the caller read, so at most one
// concurrent transition per account commits. Backup codes are consumed with a
// single UPDATE ... WHERE NOT used statement.
//
// The schema ships as goose migrations:
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, log); err != nil {
//		return err
//	}
//	store := pgstore.New(pool)
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/twofactor/pkg/pg"
	"github.com/dmitrymomot/twofactor/svc/twofactor"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the goose migrations of the schema used by Store.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a twofactor.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ twofactor.Store = (*Store)(nil)

func (s *Store) GetProfile(ctx context.Context, accountID uuid.UUID) (*twofactor.Profile, error) {
	const query = `
		SELECT account_id, secret_encrypted, status, confirmed_at, last_used_step, version, updated_at
		FROM twofactor_profiles
		WHERE account_id = $1`

	var (
		p      twofactor.Profile
		status string
	)
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&p.AccountID, &p.SecretEncrypted, &status, &p.ConfirmedAt, &p.LastUsedStep, &p.Version, &p.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, twofactor.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Status = twofactor.Status(status)
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p *twofactor.Profile, expectedVersion int64) error {
	if err := saveProfile(ctx, s.pool, p, expectedVersion); err != nil {
		return err
	}
	p.Version = expectedVersion + 1
	return nil
}

func (s *Store) SaveProfileWithBackupCodes(ctx context.Context, p *twofactor.Profile, expectedVersion int64, codes []twofactor.BackupCode) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := saveProfile(ctx, tx, p, expectedVersion); err != nil {
			return err
		}
		return replaceCodes(ctx, tx, p.AccountID, codes)
	})
	if err != nil {
		return err
	}
	p.Version = expectedVersion + 1
	return nil
}

func (s *Store) DisableProfile(ctx context.Context, p *twofactor.Profile, expectedVersion int64, at time.Time) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := saveProfile(ctx, tx, p, expectedVersion); err != nil {
			return err
		}
		return revokeCodes(ctx, tx, p.AccountID, at)
	})
	if err != nil {
		return err
	}
	p.Version = expectedVersion + 1
	return nil
}

// DisableProfileWithBackupCode spends the code first: when it is already used the
// transaction writes nothing and fails with twofactor.ErrInvalidCode. A lost
// version check rolls the spent code back.
func (s *Store) DisableProfileWithBackupCode(ctx context.Context, p *twofactor.Profile, expectedVersion int64, codeHash string, at time.Time) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ok, err := consumeCode(ctx, tx, p.AccountID, codeHash, at)
		if err != nil {
			return err
		}
		if !ok {
			return twofactor.ErrInvalidCode
		}
		if err := saveProfile(ctx, tx, p, expectedVersion); err != nil {
			return err
		}
		return revokeCodes(ctx, tx, p.AccountID, at)
	})
	if err != nil {
		return err
	}
	p.Version = expectedVersion + 1
	return nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID uuid.UUID, codes []twofactor.BackupCode) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return replaceCodes(ctx, tx, accountID, codes)
	})
}

func (s *Store) ConsumeBackupCode(ctx context.Context, accountID uuid.UUID, codeHash string, at time.Time) (bool, error) {
	return consumeCode(ctx, s.pool, accountID, codeHash, at)
}

func (s *Store) RevokeBackupCodes(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	return revokeCodes(ctx, s.pool, accountID, at)
}

func (s *Store) CountRemainingBackupCodes(ctx context.Context, accountID uuid.UUID) (int, error) {
	const query = `SELECT COUNT(*) FROM twofactor_backup_codes WHERE account_id = $1 AND NOT used`

	var n int
	if err := s.pool.QueryRow(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}

// saveProfile inserts the first version of a profile or updates the row still
// at expectedVersion. Zero affected rows means another writer got there first.
func saveProfile(ctx context.Context, db dbtx, p *twofactor.Profile, expectedVersion int64) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expectedVersion == 0 {
		const insert = `
			INSERT INTO twofactor_profiles
				(account_id, secret_encrypted, status, confirmed_at, last_used_step, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, 1, $6)
			ON CONFLICT (account_id) DO NOTHING`
		tag, err = db.Exec(ctx, insert,
			p.AccountID, p.SecretEncrypted, string(p.Status), p.ConfirmedAt, p.LastUsedStep, p.UpdatedAt,
		)
	} else {
		const update = `
			UPDATE twofactor_profiles
			SET secret_encrypted = $2, status = $3, confirmed_at = $4, last_used_step = $5,
				version = version + 1, updated_at = $6
			WHERE account_id = $1 AND version = $7`
		tag, err = db.Exec(ctx, update,
			p.AccountID, p.SecretEncrypted, string(p.Status), p.ConfirmedAt, p.LastUsedStep, p.UpdatedAt, expectedVersion,
		)
	}
	switch {
	case pg.IsSerializationError(err):
		return errors.Join(twofactor.ErrConcurrentUpdate, err)
	case err != nil:
		return fmt.Errorf("save profile: %w", err)
	case tag.RowsAffected() == 0:
		return twofactor.ErrConcurrentUpdate
	}
	return nil
}

func replaceCodes(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, codes []twofactor.BackupCode) error {
	if _, err := tx.Exec(ctx, `DELETE FROM twofactor_backup_codes WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}
	if len(codes) == 0 {
		return nil
	}

	rows := make([][]any, len(codes))
	for i, c := range codes {
		rows[i] = []any{c.ID, accountID, c.CodeHash, c.Used, c.UsedAt, c.CreatedAt}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"twofactor_backup_codes"},
		[]string{"id", "account_id", "code_hash", "used", "used_at", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}
	return nil
}

func consumeCode(ctx context.Context, db dbtx, accountID uuid.UUID, codeHash string, at time.Time) (bool, error) {
	const query = `
		UPDATE twofactor_backup_codes
		SET used = TRUE, used_at = $3
		WHERE account_id = $1 AND code_hash = $2 AND NOT used`

	tag, err := db.Exec(ctx, query, accountID, codeHash, at)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func revokeCodes(ctx context.Context, db dbtx, accountID uuid.UUID, at time.Time) error {
	const query = `
		UPDATE twofactor_backup_codes
		SET used = TRUE, used_at = $2
		WHERE account_id = $1 AND NOT used`

	if _, err := db.Exec(ctx, query, accountID, at); err != nil {
		return fmt.Errorf("revoke backup codes: %w", err)
	}
	return nil
}
