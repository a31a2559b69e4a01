package certificates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/db"
	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
	"github.com/angelmondragon/certify-backend/pkg/logger"
	"github.com/angelmondragon/certify-backend/pkg/metrics"
	"github.com/angelmondragon/certify-backend/pkg/outbox"
	"github.com/angelmondragon/certify-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/certify-backend/pkg/pagination"
	"github.com/angelmondragon/certify-backend/pkg/security"
)

const defaultCodeMaxAttempts = 5

// Service exposes the certificate registry.
type Service interface {
	Issue(ctx context.Context, actor Actor, input IssueInput) (*CertificateDTO, error)
	FindByIdentifier(ctx context.Context, identifier string) (*CertificateDTO, error)
	Verify(ctx context.Context, identifier string, meta AttemptMeta) (*VerifyResult, error)
	Revoke(ctx context.Context, actor Actor, id uuid.UUID, reason *string) (*CertificateDTO, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) (*CertificateDTO, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
	Get(ctx context.Context, viewer *Actor, id uuid.UUID) (*CertificateDTO, error)
	List(ctx context.Context, viewer *Actor, params ListParams) (*ListResult, error)
	ListByRecipient(ctx context.Context, viewer Actor, email string, params ListParams) (*ListResult, error)
	History(ctx context.Context, actor Actor, id uuid.UUID, limit int) ([]VerificationDTO, error)
}

// Actor is the authenticated caller as carried by the access token.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   enums.SystemRole
}

// IsAdmin reports whether the actor holds the admin system role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.SystemRoleAdmin
}

// CanIssue reports whether the actor may create certificates.
func (a Actor) CanIssue() bool {
	return a.Role == enums.SystemRoleAdmin || a.Role == enums.SystemRoleIssuer
}

// AttemptMeta describes who asked for a verification.
type AttemptMeta struct {
	VerifiedBy string
	UserAgent  string
	// Viewer is set when the caller presented a valid access token.
	Viewer *Actor
}

// ListParams are the paging and filter knobs of the list endpoints.
type ListParams struct {
	Page   int
	Limit  int
	Email  string
	Search string
	Status string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the dependencies of the registry.
type ServiceParams struct {
	Repository *Repository
	DB         txRunner
	Outbox     outbox.Emitter
	Config     config.RegistryConfig
	Metrics    *metrics.CertificateMetrics
	Logger     *logger.Logger
}

type service struct {
	repo    *Repository
	db      txRunner
	outbox  outbox.Emitter
	cfg     config.RegistryConfig
	metrics *metrics.CertificateMetrics
	logg    *logger.Logger
	now     func() time.Time
	newCode func(numBytes int) (string, error)
}

// NewService constructs the registry service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("certificate repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	cfg := params.Config
	if cfg.CodeMaxAttempts <= 0 {
		cfg.CodeMaxAttempts = defaultCodeMaxAttempts
	}
	if cfg.VerificationCodeBytes < security.MinVerificationCodeBytes {
		cfg.VerificationCodeBytes = security.MinVerificationCodeBytes
	}
	return &service{
		repo:    params.Repository,
		db:      params.DB,
		outbox:  params.Outbox,
		cfg:     cfg,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     time.Now,
		newCode: security.GenerateVerificationCode,
	}, nil
}

func (s *service) Issue(ctx context.Context, actor Actor, input IssueInput) (*CertificateDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "issuer identity required")
	}
	if !actor.CanIssue() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only issuers or admins may issue certificates")
	}
	now := s.now().UTC()
	cert, err := input.toModel(actor.UserID, now)
	if err != nil {
		return nil, err
	}
	explicitCode := cert.VerificationCode != ""

	for attempt := 1; ; attempt++ {
		if !explicitCode {
			code, err := s.newCode(s.cfg.VerificationCodeBytes)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification code")
			}
			cert.VerificationCode = code
		}
		cert.ID = uuid.New()

		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Create(ctx, cert); err != nil {
				return err
			}
			return s.emit(ctx, tx, actor, enums.EventCertificateIssued, cert.ID, payloads.CertificateIssuedEvent{
				CertificateID:  cert.ID,
				Code:           cert.CertificateID,
				Title:          cert.Title,
				RecipientName:  cert.RecipientName,
				RecipientEmail: cert.RecipientEmail,
				IssuedBy:       cert.IssuedBy,
				IssueDate:      cert.IssueDate,
				ExpiryDate:     cert.ExpiryDate,
			})
		})
		if err == nil {
			break
		}

		switch {
		case db.IsUniqueViolation(err, certificateIDUniqueMarkers...):
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "certificate id already exists").
				WithDetails(map[string]string{"certificate_id": cert.CertificateID})
		case db.IsUniqueViolation(err, verificationCodeUniqueMarkers...):
			if explicitCode {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "verification code already in use").
					WithDetails(map[string]string{"verification_code": "already in use"})
			}
			if attempt >= s.cfg.CodeMaxAttempts {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "could not allocate a unique verification code")
			}
			s.warn(ctx, "verification code collision; regenerating", map[string]any{"attempt": attempt})
			continue
		default:
			return nil, storeError(err, "persist certificate")
		}
	}

	s.metrics.IncOperation("issue")
	return FromModel(cert, now), nil
}

func (s *service) FindByIdentifier(ctx context.Context, identifier string) (*CertificateDTO, error) {
	cert, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, lookupError(err)
	}
	return FromModel(cert, s.now().UTC()), nil
}

func (s *service) Verify(ctx context.Context, identifier string, meta AttemptMeta) (*VerifyResult, error) {
	cert, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncVerification("not_found")
		}
		return nil, lookupError(err)
	}

	now := s.now().UTC()
	valid, reason := Evaluate(cert, now)

	verifiedBy := strings.TrimSpace(meta.VerifiedBy)
	if verifiedBy == "" {
		verifiedBy = "unknown"
	}
	entry := &models.CertificateVerification{
		CertificateID: cert.ID,
		VerifiedBy:    verifiedBy,
		UserAgent:     truncatedPtr(meta.UserAgent, userAgentMaxLen),
		VerifiedAt:    now,
	}
	if meta.Viewer != nil && meta.Viewer.UserID != uuid.Nil {
		viewerID := meta.Viewer.UserID
		entry.VerifierID = &viewerID
	}
	if err := s.repo.InsertVerification(ctx, entry); err != nil {
		// The certificate was deleted after the lookup.
		if db.IsForeignKeyViolation(err, verificationCertificateFKMarkers...) {
			s.metrics.IncVerification("not_found")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
		}
		return nil, storeError(err, "record verification")
	}
	count, err := s.repo.CountVerifications(ctx, cert.ID)
	if err != nil {
		return nil, storeError(err, "count verifications")
	}

	if valid {
		s.metrics.IncVerification("valid")
	} else {
		s.metrics.IncVerification("invalid")
	}

	dto := FromModel(cert, now)
	dto.redactFor(meta.Viewer)
	return &VerifyResult{
		Certificate:       dto,
		IsValid:           valid,
		Reason:            reason,
		VerificationCount: count,
	}, nil
}

func (s *service) Revoke(ctx context.Context, actor Actor, id uuid.UUID, reason *string) (*CertificateDTO, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if !canManage(actor, cert) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the issuer or an admin may revoke this certificate")
	}
	normalized, err := normalizeRevokeReason(reason)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if cert.Status == enums.CertificateStatusRevoked {
		return FromModel(cert, now), nil
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := s.repo.WithTx(tx).Revoke(ctx, cert.ID, actor.UserID, normalized, now)
		if err != nil || !changed {
			return err
		}
		event := payloads.CertificateRevokedEvent{
			CertificateID:  cert.ID,
			Code:           cert.CertificateID,
			RecipientEmail: cert.RecipientEmail,
			RevokedBy:      actor.UserID,
			RevokedAt:      now,
		}
		if normalized != nil {
			event.Reason = *normalized
		}
		return s.emit(ctx, tx, actor, enums.EventCertificateRevoked, cert.ID, event)
	})
	if err != nil {
		return nil, storeError(err, "revoke certificate")
	}

	updated, err := s.repo.FindByID(ctx, cert.ID)
	if err != nil {
		return nil, lookupError(err)
	}
	s.metrics.IncOperation("revoke")
	return FromModel(updated, now), nil
}

func (s *service) Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) (*CertificateDTO, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if !canManage(actor, cert) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the issuer or an admin may update this certificate")
	}
	updates, fields, err := input.apply(cert)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiryChanged := input.ClearExpiry || input.ExpiryDate != nil
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateFields(ctx, cert.ID, updates, now); err != nil {
			return err
		}
		// A stored expired status follows the expiry date in both directions.
		if expiryChanged {
			restored, err := repo.RestoreActive(ctx, cert.ID, now)
			if err != nil {
				return err
			}
			if restored {
				fields = append(fields, "status")
			}
		}
		return s.emit(ctx, tx, actor, enums.EventCertificateUpdated, cert.ID, payloads.CertificateUpdatedEvent{
			CertificateID: cert.ID,
			Code:          cert.CertificateID,
			Fields:        fields,
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lookupError(err)
		}
		return nil, storeError(err, "update certificate")
	}

	updated, err := s.repo.FindByID(ctx, cert.ID)
	if err != nil {
		return nil, lookupError(err)
	}
	s.metrics.IncOperation("update")
	return FromModel(updated, now), nil
}

func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins may delete certificates")
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cert, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, cert.ID); err != nil {
			return err
		}
		return s.emit(ctx, tx, actor, enums.EventCertificateDeleted, cert.ID, payloads.CertificateDeletedEvent{
			CertificateID: cert.ID,
			Code:          cert.CertificateID,
			DeletedBy:     actor.UserID,
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lookupError(err)
		}
		return storeError(err, "delete certificate")
	}
	s.metrics.IncOperation("delete")
	return nil
}

func (s *service) Get(ctx context.Context, viewer *Actor, id uuid.UUID) (*CertificateDTO, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if !canView(viewer, cert) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not authorized to view this certificate")
	}
	dto := FromModel(cert, s.now().UTC())
	dto.redactFor(viewer)
	return dto, nil
}

func (s *service) List(ctx context.Context, viewer *Actor, params ListParams) (*ListResult, error) {
	filter, err := s.listFilter(params)
	if err != nil {
		return nil, err
	}
	if viewer == nil || !viewer.IsAdmin() {
		filter.RestrictToViewer = true
		if viewer != nil {
			filter.ViewerEmail = NormalizeEmail(viewer.Email)
		}
	}
	return s.list(ctx, viewer, filter, params)
}

func (s *service) ListByRecipient(ctx context.Context, viewer Actor, email string, params ListParams) (*ListResult, error) {
	recipient := NormalizeEmail(email)
	if recipient == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"email": "is required"})
	}
	if !viewer.IsAdmin() && !strings.EqualFold(NormalizeEmail(viewer.Email), recipient) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not authorized to view these certificates")
	}
	params.Email = ""
	filter, err := s.listFilter(params)
	if err != nil {
		return nil, err
	}
	filter.RecipientEmail = recipient
	return s.list(ctx, &viewer, filter, params)
}

func (s *service) History(ctx context.Context, actor Actor, id uuid.UUID, limit int) ([]VerificationDTO, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if !canManage(actor, cert) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the issuer or an admin may read the verification history")
	}
	rows, err := s.repo.ListVerifications(ctx, cert.ID, pagination.NormalizeLimitWithDefault(limit, s.cfg.HistoryLimit))
	if err != nil {
		return nil, storeError(err, "list verifications")
	}
	out := make([]VerificationDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, verificationFromModel(row))
	}
	return out, nil
}

func (s *service) listFilter(params ListParams) (ListFilter, error) {
	filter := ListFilter{
		RecipientEmail: NormalizeEmail(params.Email),
		Search:         strings.TrimSpace(params.Search),
	}
	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, err := enums.ParseCertificateStatus(raw)
		if err != nil {
			return ListFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"status": "is not a supported status"})
		}
		filter.Status = &status
	}
	return filter, nil
}

func (s *service) list(ctx context.Context, viewer *Actor, filter ListFilter, params ListParams) (*ListResult, error) {
	page := pagination.Page{Page: params.Page, Limit: params.Limit}.Normalize(s.cfg.DefaultPageSize)
	rows, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, storeError(err, "list certificates")
	}

	now := s.now().UTC()
	items := make([]CertificateDTO, 0, len(rows))
	for i := range rows {
		dto := FromModel(&rows[i], now)
		dto.redactFor(viewer)
		items = append(items, *dto)
	}
	return &ListResult{Items: items, Pagination: pagination.NewPageInfo(page, total)}, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor Actor, eventType enums.OutboxEventType, id uuid.UUID, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCertificate,
		AggregateID:   id,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func canView(viewer *Actor, cert *models.Certificate) bool {
	if cert.IsPublic {
		return true
	}
	if viewer == nil {
		return false
	}
	return canManage(*viewer, cert) || strings.EqualFold(NormalizeEmail(viewer.Email), cert.RecipientEmail)
}

func canManage(actor Actor, cert *models.Certificate) bool {
	return actor.IsAdmin() || (actor.UserID != uuid.Nil && actor.UserID == cert.IssuedBy)
}

func lookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
	}
	return storeError(err, "load certificate")
}

// storeError keeps typed errors raised inside a transaction and maps the rest
// onto the retryable dependency code.
func storeError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func truncatedPtr(value string, max int) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if runes := []rune(trimmed); len(runes) > max {
		trimmed = string(runes[:max])
	}
	return &trimmed
}
