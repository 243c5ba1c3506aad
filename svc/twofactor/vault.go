package twofactor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/pkg/totp"
)

// Vault issues, consumes and revokes backup codes. Plaintext codes leave the vault
// exactly once, from NewBatch; only keyed hashes reach the store.
type Vault struct {
	store  BackupCodeStore
	pepper []byte
	count  int
}

func NewVault(store BackupCodeStore, pepper []byte, count int) *Vault {
	return &Vault{store: store, pepper: pepper, count: count}
}

// NewBatch generates a fresh batch without persisting it. The caller stores the
// returned records together with the profile change that invalidates the old batch.
func (v *Vault) NewBatch(accountID uuid.UUID, now time.Time) ([]string, []BackupCode, error) {
	plain, err := totp.GenerateRecoveryCodes(v.count)
	if err != nil {
		return nil, nil, errors.Join(ErrEntropy, err)
	}

	records := make([]BackupCode, 0, len(plain))
	for _, code := range plain {
		hash, err := totp.HashRecoveryCode(v.pepper, code)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, BackupCode{
			ID:        uuid.New(),
			AccountID: accountID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}
	return plain, records, nil
}

// IssueBatch generates a batch and replaces the stored one.
func (v *Vault) IssueBatch(ctx context.Context, accountID uuid.UUID, now time.Time) ([]string, error) {
	plain, records, err := v.NewBatch(accountID, now)
	if err != nil {
		return nil, err
	}
	if err := v.store.ReplaceBackupCodes(ctx, accountID, records); err != nil {
		return nil, err
	}
	return plain, nil
}

// Consume marks the matching unused code as used. It returns ErrInvalidCodeFormat
// for input that cannot be a backup code and ErrInvalidCode when nothing matched
// or another request consumed the code first.
func (v *Vault) Consume(ctx context.Context, accountID uuid.UUID, code string, now time.Time) error {
	hash, err := v.Hash(code)
	if err != nil {
		return err
	}
	ok, err := v.store.ConsumeBackupCode(ctx, accountID, hash, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// Hash returns the stored form of code, for callers that spend it inside their
// own store transaction.
func (v *Vault) Hash(code string) (string, error) {
	if !totp.ValidRecoveryCodeFormat(code) {
		return "", ErrInvalidCodeFormat
	}
	hash, err := totp.HashRecoveryCode(v.pepper, code)
	if err != nil {
		return "", errors.Join(ErrInvalidCodeFormat, err)
	}
	return hash, nil
}

func (v *Vault) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	return v.store.RevokeBackupCodes(ctx, accountID, now)
}

func (v *Vault) Remaining(ctx context.Context, accountID uuid.UUID) (int, error) {
	return v.store.CountRemainingBackupCodes(ctx, accountID)
}
