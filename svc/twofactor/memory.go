package twofactor

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store for tests and single-node development. One mutex
// serialises every write, which gives the same per-account atomicity as the
// transactional Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]Profile
	codes    map[uuid.UUID][]BackupCode
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[uuid.UUID]Profile),
		codes:    make(map[uuid.UUID][]BackupCode),
	}
}

func (s *MemoryStore) GetProfile(_ context.Context, accountID uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return copyProfile(p), nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, p *Profile, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(p, expectedVersion)
}

func (s *MemoryStore) SaveProfileWithBackupCodes(_ context.Context, p *Profile, expectedVersion int64, codes []BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(p, expectedVersion); err != nil {
		return err
	}
	s.codes[p.AccountID] = cloneCodes(codes)
	return nil
}

func (s *MemoryStore) DisableProfile(_ context.Context, p *Profile, expectedVersion int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(p, expectedVersion); err != nil {
		return err
	}
	s.revokeLocked(p.AccountID, at)
	return nil
}

func (s *MemoryStore) DisableProfileWithBackupCode(_ context.Context, p *Profile, expectedVersion int64, codeHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.unusedCodeLocked(p.AccountID, codeHash)
	if i < 0 {
		return ErrInvalidCode
	}
	if err := s.saveLocked(p, expectedVersion); err != nil {
		return err
	}
	s.revokeLocked(p.AccountID, at)
	return nil
}

func (s *MemoryStore) ReplaceBackupCodes(_ context.Context, accountID uuid.UUID, codes []BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[accountID] = cloneCodes(codes)
	return nil
}

func (s *MemoryStore) ConsumeBackupCode(_ context.Context, accountID uuid.UUID, codeHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.unusedCodeLocked(accountID, codeHash)
	if i < 0 {
		return false, nil
	}
	usedAt := at
	s.codes[accountID][i].Used = true
	s.codes[accountID][i].UsedAt = &usedAt
	return true, nil
}

func (s *MemoryStore) RevokeBackupCodes(_ context.Context, accountID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeLocked(accountID, at)
	return nil
}

func (s *MemoryStore) CountRemainingBackupCodes(_ context.Context, accountID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.codes[accountID] {
		if !c.Used {
			n++
		}
	}
	return n, nil
}

// BackupCodes returns a copy of the stored batch.
func (s *MemoryStore) BackupCodes(accountID uuid.UUID) []BackupCode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneCodes(s.codes[accountID])
}

func (s *MemoryStore) saveLocked(p *Profile, expectedVersion int64) error {
	current, ok := s.profiles[p.AccountID]
	switch {
	case !ok && expectedVersion != 0:
		return ErrConcurrentUpdate
	case ok && current.Version != expectedVersion:
		return ErrConcurrentUpdate
	}
	p.Version = expectedVersion + 1
	s.profiles[p.AccountID] = *copyProfile(*p)
	return nil
}

// unusedCodeLocked returns the index of the unused code with codeHash, or -1.
func (s *MemoryStore) unusedCodeLocked(accountID uuid.UUID, codeHash string) int {
	for i, c := range s.codes[accountID] {
		if !c.Used && subtle.ConstantTimeCompare([]byte(c.CodeHash), []byte(codeHash)) == 1 {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) revokeLocked(accountID uuid.UUID, at time.Time) {
	codes := s.codes[accountID]
	for i := range codes {
		if !codes[i].Used {
			usedAt := at
			codes[i].Used = true
			codes[i].UsedAt = &usedAt
		}
	}
}

func copyProfile(p Profile) *Profile {
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		p.ConfirmedAt = &t
	}
	return &p
}

func cloneCodes(codes []BackupCode) []BackupCode {
	out := make([]BackupCode, len(codes))
	for i, c := range codes {
		if c.UsedAt != nil {
			t := *c.UsedAt
			c.UsedAt = &t
		}
		out[i] = c
	}
	return out
}

// MemoryDirectory is an AccountDirectory backed by a map.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

func NewMemoryDirectory(accounts ...Account) *MemoryDirectory {
	d := &MemoryDirectory{accounts: make(map[uuid.UUID]Account, len(accounts))}
	for _, a := range accounts {
		d.accounts[a.ID] = a
	}
	return d
}

func (d *MemoryDirectory) Add(a Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[a.ID] = a
}

func (d *MemoryDirectory) GetAccountByID(_ context.Context, id uuid.UUID) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}
