package certificates

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/angelmondragon/certify-backend/pkg/pagination"
)

// CertificateDTO is the transport shape of a certificate. IsValid and Reason
// are evaluated when the DTO is built.
type CertificateDTO struct {
	ID               uuid.UUID                 `json:"id"`
	CertificateID    string                    `json:"certificate_id"`
	Title            string                    `json:"title"`
	Description      *string                   `json:"description,omitempty"`
	Recipient        RecipientDTO              `json:"recipient"`
	Issuer           IssuerDTO                 `json:"issuer"`
	Event            *EventDTO                 `json:"event,omitempty"`
	IssueDate        time.Time                 `json:"issue_date"`
	ExpiryDate       *time.Time                `json:"expiry_date,omitempty"`
	Template         enums.CertificateTemplate `json:"template"`
	Grade            *enums.CertificateGrade   `json:"grade,omitempty"`
	Credits          *decimal.Decimal          `json:"credits,omitempty"`
	Skills           []string                  `json:"skills"`
	Metadata         MetadataDTO               `json:"metadata"`
	VerificationCode string                    `json:"verification_code,omitempty"`
	Status           enums.CertificateStatus   `json:"status"`
	IsPublic         bool                      `json:"is_public"`
	IsValid          bool                      `json:"is_valid"`
	InvalidReason    InvalidReason             `json:"invalid_reason,omitempty"`
	IssuedBy         uuid.UUID                 `json:"issued_by"`
	Revocation       *RevocationDTO            `json:"revocation,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

type RecipientDTO struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	RollNumber *string `json:"roll_number,omitempty"`
	Department *string `json:"department,omitempty"`
	Year       *string `json:"year,omitempty"`
}

type IssuerDTO struct {
	Name         string  `json:"name"`
	Designation  *string `json:"designation,omitempty"`
	Organization string  `json:"organization"`
	SignatureURL *string `json:"signature_url,omitempty"`
}

type EventDTO struct {
	Title string           `json:"title"`
	Date  *time.Time       `json:"date,omitempty"`
	Type  *enums.EventType `json:"type,omitempty"`
}

type MetadataDTO struct {
	FontFamily     string `json:"font_family"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
}

type RevocationDTO struct {
	RevokedBy *uuid.UUID `json:"revoked_by,omitempty"`
	Reason    *string    `json:"reason,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// VerificationDTO is one entry of the verification trail.
type VerificationDTO struct {
	ID         uuid.UUID  `json:"id"`
	VerifiedBy string     `json:"verified_by"`
	VerifierID *uuid.UUID `json:"verifier_id,omitempty"`
	UserAgent  *string    `json:"user_agent,omitempty"`
	VerifiedAt time.Time  `json:"verified_at"`
}

// VerifyResult is returned by Verify for every certificate that exists.
type VerifyResult struct {
	Certificate       *CertificateDTO `json:"certificate"`
	IsValid           bool            `json:"is_valid"`
	Reason            InvalidReason   `json:"reason,omitempty"`
	VerificationCount int64           `json:"verification_count"`
}

// ListResult is one page of certificates.
type ListResult struct {
	Items      []CertificateDTO    `json:"items"`
	Pagination pagination.PageInfo `json:"pagination"`
}

// FromModel converts a row into its DTO, evaluating validity at now.
func FromModel(cert *models.Certificate, now time.Time) *CertificateDTO {
	if cert == nil {
		return nil
	}
	valid, reason := Evaluate(cert, now)

	dto := &CertificateDTO{
		ID:            cert.ID,
		CertificateID: cert.CertificateID,
		Title:         cert.Title,
		Description:   cert.Description,
		Recipient: RecipientDTO{
			Name:       cert.RecipientName,
			Email:      cert.RecipientEmail,
			RollNumber: cert.RecipientRollNumber,
			Department: cert.RecipientDepartment,
			Year:       cert.RecipientYear,
		},
		Issuer: IssuerDTO{
			Name:         cert.IssuerName,
			Designation:  cert.IssuerDesignation,
			Organization: cert.IssuerOrganization,
			SignatureURL: cert.IssuerSignatureURL,
		},
		IssueDate:  cert.IssueDate.UTC(),
		ExpiryDate: utcPtr(cert.ExpiryDate),
		Template:   cert.Template,
		Grade:      cert.Grade,
		Skills:     append([]string{}, cert.Skills...),
		Metadata: MetadataDTO{
			FontFamily:     cert.FontFamily,
			PrimaryColor:   cert.PrimaryColor,
			SecondaryColor: cert.SecondaryColor,
		},
		VerificationCode: cert.VerificationCode,
		Status:           cert.Status,
		IsPublic:         cert.IsPublic,
		IsValid:          valid,
		InvalidReason:    reason,
		IssuedBy:         cert.IssuedBy,
		CreatedAt:        cert.CreatedAt.UTC(),
		UpdatedAt:        cert.UpdatedAt.UTC(),
	}
	if cert.Credits.Valid {
		credits := cert.Credits.Decimal
		dto.Credits = &credits
	}
	if cert.EventTitle != nil {
		dto.Event = &EventDTO{Title: *cert.EventTitle, Date: utcPtr(cert.EventDate), Type: cert.EventType}
	}
	if cert.Status == enums.CertificateStatusRevoked || cert.RevokedAt != nil {
		dto.Revocation = &RevocationDTO{
			RevokedBy: cert.RevokedBy,
			Reason:    cert.RevokeReason,
			RevokedAt: utcPtr(cert.RevokedAt),
		}
	}
	return dto
}

// redactFor hides the verification code from viewers who neither issued,
// received, nor administer the certificate.
func (d *CertificateDTO) redactFor(viewer *Actor) {
	if d == nil {
		return
	}
	if viewer != nil && (viewer.IsAdmin() || viewer.UserID == d.IssuedBy || strings.EqualFold(viewer.Email, d.Recipient.Email)) {
		return
	}
	d.VerificationCode = ""
}

func verificationFromModel(row models.CertificateVerification) VerificationDTO {
	return VerificationDTO{
		ID:         row.ID,
		VerifiedBy: row.VerifiedBy,
		VerifierID: row.VerifierID,
		UserAgent:  row.UserAgent,
		VerifiedAt: row.VerifiedAt.UTC(),
	}
}
