package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/certify-backend/pkg/enums"
)

// Certificate is an issued credential tied to a recipient and an issuer.
type Certificate struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CertificateID string    `gorm:"column:certificate_id;not null;uniqueIndex:uq_certificates_certificate_id"`
	Title         string    `gorm:"column:title;not null"`
	Description   *string   `gorm:"column:description"`

	RecipientName       string  `gorm:"column:recipient_name;not null"`
	RecipientEmail      string  `gorm:"column:recipient_email;not null;index"`
	RecipientRollNumber *string `gorm:"column:recipient_roll_number"`
	RecipientDepartment *string `gorm:"column:recipient_department"`
	RecipientYear       *string `gorm:"column:recipient_year"`

	IssuerName         string  `gorm:"column:issuer_name;not null"`
	IssuerDesignation  *string `gorm:"column:issuer_designation"`
	IssuerOrganization string  `gorm:"column:issuer_organization;not null"`
	IssuerSignatureURL *string `gorm:"column:issuer_signature_url"`

	EventTitle *string          `gorm:"column:event_title"`
	EventDate  *time.Time       `gorm:"column:event_date"`
	EventType  *enums.EventType `gorm:"column:event_type;type:text"`

	IssueDate  time.Time  `gorm:"column:issue_date;not null"`
	ExpiryDate *time.Time `gorm:"column:expiry_date"`

	Template       enums.CertificateTemplate `gorm:"column:template;type:text;not null"`
	Grade          *enums.CertificateGrade   `gorm:"column:grade;type:text"`
	Credits        decimal.NullDecimal       `gorm:"column:credits;type:numeric(6,2)"`
	Skills         []string                  `gorm:"column:skills;type:jsonb;serializer:json"`
	FontFamily     string                    `gorm:"column:font_family;not null"`
	PrimaryColor   string                    `gorm:"column:primary_color;not null"`
	SecondaryColor string                    `gorm:"column:secondary_color;not null"`

	VerificationCode string                  `gorm:"column:verification_code;not null;uniqueIndex:uq_certificates_verification_code"`
	Status           enums.CertificateStatus `gorm:"column:status;type:text;not null"`
	IsPublic         bool                    `gorm:"column:is_public;not null"`

	IssuedBy     uuid.UUID  `gorm:"column:issued_by;type:uuid;not null"`
	RevokedBy    *uuid.UUID `gorm:"column:revoked_by;type:uuid"`
	RevokeReason *string    `gorm:"column:revoke_reason"`
	RevokedAt    *time.Time `gorm:"column:revoked_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CertificateVerification is one row of a certificate's append-only
// verification trail.
type CertificateVerification struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CertificateID uuid.UUID  `gorm:"column:certificate_id;type:uuid;not null;index"`
	VerifiedBy    string     `gorm:"column:verified_by;not null"`
	VerifierID    *uuid.UUID `gorm:"column:verifier_id;type:uuid"`
	UserAgent     *string    `gorm:"column:user_agent"`
	VerifiedAt    time.Time  `gorm:"column:verified_at;not null"`
}
