package twofactor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountDirectory looks up accounts owned by the external user store.
// GetAccountByID returns ErrAccountNotFound for unknown ids.
type AccountDirectory interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

// ProfileStore persists profiles with optimistic concurrency. Every write succeeds
// only while the stored version equals expectedVersion (0 means "no row yet"),
// sets p.Version to expectedVersion+1 and fails with ErrConcurrentUpdate otherwise.
type ProfileStore interface {
	// GetProfile returns ErrProfileNotFound when the account never enrolled.
	GetProfile(ctx context.Context, accountID uuid.UUID) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile, expectedVersion int64) error
	// SaveProfileWithBackupCodes writes p and replaces the account's whole backup
	// code batch in one transaction.
	SaveProfileWithBackupCodes(ctx context.Context, p *Profile, expectedVersion int64, codes []BackupCode) error
	// DisableProfile writes p and marks every outstanding backup code used in one
	// transaction.
	DisableProfile(ctx context.Context, p *Profile, expectedVersion int64, at time.Time) error
	// DisableProfileWithBackupCode spends the unused code with codeHash, writes p
	// and revokes the rest of the batch in one transaction. It fails with
	// ErrInvalidCode, writing nothing, when no unused code matches.
	DisableProfileWithBackupCode(ctx context.Context, p *Profile, expectedVersion int64, codeHash string, at time.Time) error
}

// BackupCodeStore holds hashed backup codes.
type BackupCodeStore interface {
	// ReplaceBackupCodes deletes the current batch and inserts codes atomically.
	ReplaceBackupCodes(ctx context.Context, accountID uuid.UUID, codes []BackupCode) error
	// ConsumeBackupCode flips used on the matching unused code in a single
	// conditional update and reports whether this call won.
	ConsumeBackupCode(ctx context.Context, accountID uuid.UUID, codeHash string, at time.Time) (bool, error)
	RevokeBackupCodes(ctx context.Context, accountID uuid.UUID, at time.Time) error
	CountRemainingBackupCodes(ctx context.Context, accountID uuid.UUID) (int, error)
}

// Store is implemented by the Postgres and in-memory backends.
type Store interface {
	ProfileStore
	BackupCodeStore
}
