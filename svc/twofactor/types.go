package twofactor

import (
	"time"

	"github.com/google/uuid"
)

// Status is the two-factor state of an account.
type Status string

const (
	StatusUnset    Status = "unset"
	StatusPending  Status = "pending"
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// Event drives a Status transition.
type Event string

const (
	EventStart      Event = "start"
	EventConfirm    Event = "confirm"
	EventDisable    Event = "disable"
	EventRegenerate Event = "regenerate"
)

// Method is the factor that satisfied a challenge.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// Account is the slice of the external account record this package reads.
type Account struct {
	ID    uuid.UUID
	Email string
}

// Profile is the persisted two-factor record of one account.
// SecretEncrypted is set iff Status is pending or enabled.
type Profile struct {
	AccountID       uuid.UUID
	SecretEncrypted string
	Status          Status
	ConfirmedAt     *time.Time
	LastUsedStep    int64 // time step of the last accepted TOTP code
	Version         int64 // optimistic concurrency token, 0 before the first write
	UpdatedAt       time.Time
}

func (p *Profile) IsEnabled() bool {
	return p.Status == StatusEnabled
}

func (p *Profile) hasSecret() bool {
	return p.SecretEncrypted != ""
}

// BackupCode is one stored recovery code. Only the keyed hash is kept.
type BackupCode struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	CodeHash  string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Enrollment is returned once by StartEnrollment. Secret is never returned again.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	QRCode          string // PNG data URI, empty when rendering failed
}

// Confirmation is returned once by ConfirmEnrollment.
type Confirmation struct {
	BackupCodes []string
	ConfirmedAt time.Time
}

// Verification reports which factor satisfied a login challenge.
type Verification struct {
	Method               Method
	BackupCodesRemaining int // only set when Method is MethodBackupCode
}

// StatusInfo summarises the two-factor state of an account.
type StatusInfo struct {
	Status               Status
	ConfirmedAt          *time.Time
	BackupCodesRemaining int
	Locked               bool
	RetryAfter           time.Duration
}
