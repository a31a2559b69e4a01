package certificates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/angelmondragon/certify-backend/pkg/pagination"
)

// Constraint markers as reported by postgres (constraint name) and sqlite (table.column).
var (
	certificateIDUniqueMarkers       = []string{"uq_certificates_certificate_id", "certificates.certificate_id"}
	verificationCodeUniqueMarkers    = []string{"uq_certificates_verification_code", "certificates.verification_code"}
	verificationCertificateFKMarkers = []string{"certificate_verifications_certificate_id_fkey"}
)

// Repository persists certificates and their verification trail.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a certificate repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository that runs on tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListFilter narrows List queries. Visibility is applied when RestrictToViewer is set.
type ListFilter struct {
	RestrictToViewer bool
	ViewerEmail      string
	RecipientEmail   string
	Status           *enums.CertificateStatus
	Search           string
	IssuedBy         *uuid.UUID
}

func (r *Repository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == uuid.Nil {
		cert.ID = uuid.New()
	}
	if cert.Skills == nil {
		cert.Skills = []string{}
	}
	return r.db.WithContext(ctx).Create(cert).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	var cert models.Certificate
	if err := r.db.WithContext(ctx).First(&cert, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindByIdentifier resolves identifier as a certificate id (any letter case)
// first and as an exact verification code second.
func (r *Repository) FindByIdentifier(ctx context.Context, identifier string) (*models.Certificate, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return nil, gorm.ErrRecordNotFound
	}

	var cert models.Certificate
	if normalized := NormalizeCertificateID(raw); certificateIDPattern.MatchString(normalized) {
		err := r.db.WithContext(ctx).Where("certificate_id = ?", normalized).Take(&cert).Error
		if err == nil {
			return &cert, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if err := r.db.WithContext(ctx).Where("verification_code = ?", raw).Take(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

// List returns one page of certificates ordered newest issue first plus the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Certificate, int64, error) {
	base := func() *gorm.DB {
		return r.applyFilter(r.db.WithContext(ctx).Model(&models.Certificate{}), filter)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Certificate
	if total == 0 {
		return rows, 0, nil
	}
	err := base().
		Order("issue_date DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repository) applyFilter(query *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.RestrictToViewer {
		if filter.ViewerEmail == "" {
			query = query.Where("is_public = ?", true)
		} else {
			query = query.Where("(is_public = ? OR recipient_email = ?)", true, filter.ViewerEmail)
		}
	}
	if filter.RecipientEmail != "" {
		query = query.Where("recipient_email = ?", filter.RecipientEmail)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.IssuedBy != nil {
		query = query.Where("issued_by = ?", *filter.IssuedBy)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		query = query.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(recipient_name) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return query
}

// UpdateFields applies column updates and stamps updated_at.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any, now time.Time) error {
	updates["updated_at"] = now
	res := r.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Revoke moves a certificate to revoked unless it already is. It reports
// whether this call performed the transition.
func (r *Repository) Revoke(ctx context.Context, id, revokedBy uuid.UUID, reason *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("id = ? AND status <> ?", id, enums.CertificateStatusRevoked).
		Updates(map[string]any{
			"status":        enums.CertificateStatusRevoked,
			"revoked_by":    revokedBy,
			"revoke_reason": reason,
			"revoked_at":    at,
			"updated_at":    at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkExpired stores the expired status for an active certificate whose expiry
// is at or before now. It reports whether the row changed.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("id = ? AND status = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", id, enums.CertificateStatusActive, now).
		Updates(map[string]any{
			"status":     enums.CertificateStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RestoreActive moves an expired certificate back to active once its expiry
// is unset or later than now. Revoked rows are never touched.
func (r *Repository) RestoreActive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("id = ? AND status = ? AND (expiry_date IS NULL OR expiry_date > ?)", id, enums.CertificateStatusExpired, now).
		Updates(map[string]any{
			"status":     enums.CertificateStatusActive,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpiring returns active certificates whose expiry has passed, oldest expiry first.
func (r *Repository) ListExpiring(ctx context.Context, now time.Time, limit int) ([]models.Certificate, error) {
	var rows []models.Certificate
	err := r.db.WithContext(ctx).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", enums.CertificateStatusActive, now).
		Order("expiry_date ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Delete hard-deletes a certificate; its verification rows cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Certificate{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// InsertVerification appends one row to the verification trail.
func (r *Repository) InsertVerification(ctx context.Context, entry *models.CertificateVerification) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) CountVerifications(ctx context.Context, certificateID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CertificateVerification{}).
		Where("certificate_id = ?", certificateID).
		Count(&count).Error
	return count, err
}

// ListVerifications returns the newest verification rows first.
func (r *Repository) ListVerifications(ctx context.Context, certificateID uuid.UUID, limit int) ([]models.CertificateVerification, error) {
	var rows []models.CertificateVerification
	err := r.db.WithContext(ctx).
		Where("certificate_id = ?", certificateID).
		Order("verified_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
