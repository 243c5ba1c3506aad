package account

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/binder"
	"github.com/dmitrymomot/twofactor/handler"
	"github.com/dmitrymomot/twofactor/pkg/audit"
	"github.com/dmitrymomot/twofactor/pkg/ratelimiter"
	"github.com/dmitrymomot/twofactor/svc/auth"
	"github.com/dmitrymomot/twofactor/svc/twofactor"
)

// TwoFactor is the part of twofactor.Service used by the HTTP handlers.
type TwoFactor interface {
	StartEnrollment(ctx context.Context, id auth.Identity) (*twofactor.Enrollment, error)
	ConfirmEnrollment(ctx context.Context, id auth.Identity, code string) (*twofactor.Confirmation, error)
	VerifyLogin(ctx context.Context, accountID uuid.UUID, code string) (*twofactor.Verification, error)
	Disable(ctx context.Context, id auth.Identity, code string) error
	RegenerateBackupCodes(ctx context.Context, id auth.Identity, code string) ([]string, error)
	Status(ctx context.Context, accountID uuid.UUID) (*twofactor.StatusInfo, error)
}

type TwoFactorService struct {
	svc          TwoFactor
	errorHandler handler.ErrorHandler[handler.Context]
	limiter      *ratelimiter.Bucket
	activity     audit.Reader
}

type TwoFactorOption func(*TwoFactorService)

// WithRateLimiter throttles the enroll, confirm and verify routes per client IP.
func WithRateLimiter(b *ratelimiter.Bucket) TwoFactorOption {
	return func(s *TwoFactorService) {
		s.limiter = b
	}
}

// WithActivity exposes the caller's security audit trail on GET /activity.
func WithActivity(r audit.Reader) TwoFactorOption {
	return func(s *TwoFactorService) {
		s.activity = r
	}
}

// NewTwoFactorService serves svc over JSON. errorHandler must understand twofactor
// errors, see MapTwoFactorError; nil selects a default one that logs to slog.Default.
func NewTwoFactorService(
	svc TwoFactor,
	errorHandler handler.ErrorHandler[handler.Context],
	opts ...TwoFactorOption,
) *TwoFactorService {
	if errorHandler == nil {
		errorHandler = handler.NewErrorHandler(nil, handler.WithErrorMapper(MapTwoFactorError))
	}
	s := &TwoFactorService{
		svc:          svc,
		errorHandler: errorHandler,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TwoFactorService) Handle() http.Handler {
	r := chi.NewRouter()

	// Routes exposed to code guessing are rate limited per client.
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(ratelimiter.Middleware(s.limiter, ratelimiter.ClientIP,
				ratelimiter.WithLimitedHandler(rateLimited),
				ratelimiter.WithErrorHandler(rateLimiterFailed),
			))
		}

		// Called between the password step and session creation, so no identity yet.
		r.Post("/verify", handler.Wrap(s.verify,
			handler.WithBinders[handler.Context, VerifyRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, VerifyRequest](s.errorHandler),
		))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity)

			r.Post("/enroll", handler.Wrap(s.enroll,
				handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
			))
			r.Post("/enroll/confirm", handler.Wrap(s.confirm,
				handler.WithBinders[handler.Context, CodeRequest](binder.JSON()),
				handler.WithErrorHandler[handler.Context, CodeRequest](s.errorHandler),
			))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity)

		r.Post("/disable", handler.Wrap(s.disable,
			handler.WithBinders[handler.Context, CodeRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, CodeRequest](s.errorHandler),
		))
		r.Post("/backup-codes", handler.Wrap(s.regenerate,
			handler.WithBinders[handler.Context, CodeRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, CodeRequest](s.errorHandler),
		))
		r.Get("/status", handler.Wrap(s.status,
			handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
		))
		if s.activity != nil {
			r.Get("/activity", handler.Wrap(s.listActivity,
				handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
			))
		}
	})

	return r
}

// CodeRequest carries a TOTP or backup code.
type CodeRequest struct {
	Code string `json:"code"`
}

func (r CodeRequest) validate() error {
	if strings.TrimSpace(r.Code) == "" {
		verr := handler.NewValidationError()
		verr.Add("code", "is required")
		return verr
	}
	return nil
}

// VerifyRequest is the login challenge answer.
type VerifyRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

func (r VerifyRequest) parse() (uuid.UUID, error) {
	verr := handler.NewValidationError()
	accountID, err := uuid.Parse(r.AccountID)
	if err != nil {
		verr.Add("account_id", "must be a valid UUID")
	}
	if strings.TrimSpace(r.Code) == "" {
		verr.Add("code", "is required")
	}
	if !verr.IsEmpty() {
		return uuid.Nil, verr
	}
	return accountID, nil
}

type EnrollResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code,omitempty"`
}

type BackupCodesResponse struct {
	BackupCodes []string   `json:"backup_codes"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

type VerifyResponse struct {
	Verified             bool   `json:"verified"`
	Method               string `json:"method"`
	BackupCodesRemaining *int   `json:"backup_codes_remaining,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ActivityEntry struct {
	Action    string         `json:"action"`
	Result    string         `json:"result"`
	IP        string         `json:"ip,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type ActivityResponse struct {
	Events []ActivityEntry `json:"events"`
}

type StatusResponse struct {
	Status               string     `json:"status"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	Locked               bool       `json:"locked"`
	RetryAfterSeconds    int        `json:"retry_after_seconds,omitempty"`
}

func (s *TwoFactorService) enroll(ctx handler.Context, _ struct{}) handler.Response {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}

	enrollment, err := s.svc.StartEnrollment(ctx, id)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(EnrollResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCode,
	})
}

func (s *TwoFactorService) confirm(ctx handler.Context, req CodeRequest) handler.Response {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	if err := req.validate(); err != nil {
		return handler.Error(err)
	}

	confirmation, err := s.svc.ConfirmEnrollment(ctx, id, req.Code)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(BackupCodesResponse{
		BackupCodes: confirmation.BackupCodes,
		ConfirmedAt: &confirmation.ConfirmedAt,
	})
}

func (s *TwoFactorService) verify(ctx handler.Context, req VerifyRequest) handler.Response {
	accountID, err := req.parse()
	if err != nil {
		return handler.Error(err)
	}

	verification, err := s.svc.VerifyLogin(ctx, accountID, req.Code)
	if err != nil {
		return handler.Error(err)
	}

	resp := VerifyResponse{Verified: true, Method: string(verification.Method)}
	if verification.Method == twofactor.MethodBackupCode {
		resp.BackupCodesRemaining = &verification.BackupCodesRemaining
	}
	return handler.JSON(resp)
}

func (s *TwoFactorService) disable(ctx handler.Context, req CodeRequest) handler.Response {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	if err := req.validate(); err != nil {
		return handler.Error(err)
	}

	if err := s.svc.Disable(ctx, id, req.Code); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(MessageResponse{Message: "Two-factor authentication has been disabled."})
}

func (s *TwoFactorService) regenerate(ctx handler.Context, req CodeRequest) handler.Response {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	if err := req.validate(); err != nil {
		return handler.Error(err)
	}

	codes, err := s.svc.RegenerateBackupCodes(ctx, id, req.Code)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(BackupCodesResponse{BackupCodes: codes})
}

func (s *TwoFactorService) status(ctx handler.Context, _ struct{}) handler.Response {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}

	info, err := s.svc.Status(ctx, id.AccountID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(StatusResponse{
		Status:               string(info.Status),
		ConfirmedAt:          info.ConfirmedAt,
		BackupCodesRemaining: info.BackupCodesRemaining,
		Locked:               info.Locked,
		RetryAfterSeconds:    int((info.RetryAfter + time.Second - 1) / time.Second),
	})
}

const maxActivityLimit = 100

func (s *TwoFactorService) listActivity(ctx handler.Context, _ struct{}) handler.Response {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}

	limit := 20
	if raw := ctx.Request().URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityLimit {
			verr := handler.NewValidationError()
			verr.Add("limit", "must be between 1 and 100")
			return handler.Error(verr)
		}
		limit = n
	}

	events, err := s.activity.Find(ctx, audit.Criteria{AccountID: id.AccountID, Limit: limit})
	if err != nil {
		return handler.Error(errors.Join(errTemporarilyUnavailable, err))
	}
	resp := ActivityResponse{Events: make([]ActivityEntry, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, ActivityEntry{
			Action:    ev.Action,
			Result:    string(ev.Result),
			IP:        ev.IP,
			Metadata:  ev.Metadata,
			CreatedAt: ev.CreatedAt,
		})
	}
	return handler.JSON(resp)
}

func rateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	_ = handler.JSONError(handler.ErrTooManyRequests.WithRetryAfter(retryAfter)).Render(w, r)
}

func rateLimiterFailed(w http.ResponseWriter, r *http.Request, _ error) {
	_ = handler.JSONError(errTemporarilyUnavailable).Render(w, r)
}
