package twofactor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/pkg/audit"
	"github.com/dmitrymomot/twofactor/pkg/broadcast"
)

// EventType names a security-relevant change of a profile.
type EventType string

const (
	EventEnabled                EventType = "twofactor.enabled"
	EventDisabled               EventType = "twofactor.disabled"
	EventBackupCodesRegenerated EventType = "twofactor.backup_codes_regenerated"
	EventBackupCodeUsed         EventType = "twofactor.backup_code_used"
	EventLockedOut              EventType = "twofactor.locked_out"
)

// SecurityEvent is published after the change it describes is committed.
type SecurityEvent struct {
	Type       EventType
	AccountID  uuid.UUID
	OccurredAt time.Time
	Method     Method        `json:",omitempty"`
	Remaining  int           `json:",omitempty"` // backup codes left
	RetryAfter time.Duration `json:",omitempty"`
}

// EventPublisher delivers security events. Publishing never fails an operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev SecurityEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, SecurityEvent) error { return nil }

// BroadcastPublisher fans events out on a broadcaster, one topic per event type.
type BroadcastPublisher struct {
	b broadcast.Broadcaster[SecurityEvent]
}

func NewBroadcastPublisher(b broadcast.Broadcaster[SecurityEvent]) *BroadcastPublisher {
	return &BroadcastPublisher{b: b}
}

func (p *BroadcastPublisher) Publish(ctx context.Context, ev SecurityEvent) error {
	return p.b.Broadcast(ctx, broadcast.Message[SecurityEvent]{
		Topic:       string(ev.Type),
		Data:        ev,
		PublishedAt: ev.OccurredAt,
	})
}

// MultiPublisher delivers to every publisher and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, ev SecurityEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditPublisher writes events to the audit trail synchronously, so the record
// keeps the request id and client address of the call that caused it.
type AuditPublisher struct {
	log *audit.Logger
}

func NewAuditPublisher(log *audit.Logger) *AuditPublisher {
	return &AuditPublisher{log: log}
}

func (p *AuditPublisher) Publish(ctx context.Context, ev SecurityEvent) error {
	result := audit.ResultSuccess
	opts := make([]audit.EventOption, 0, 3)
	if ev.Method != "" {
		opts = append(opts, audit.WithMetadata("method", string(ev.Method)))
	}
	switch ev.Type {
	case EventBackupCodeUsed:
		opts = append(opts, audit.WithMetadata("backup_codes_remaining", ev.Remaining))
	case EventLockedOut:
		result = audit.ResultFailure
		opts = append(opts, audit.WithMetadata("retry_after_seconds", int((ev.RetryAfter+time.Second-1)/time.Second)))
	}
	return p.log.Log(ctx, ev.AccountID, string(ev.Type), result, opts...)
}
