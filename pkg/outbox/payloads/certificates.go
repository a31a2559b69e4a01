package payloads

import (
	"time"

	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/google/uuid"
)

// CertificateIssuedEvent is emitted once a certificate row is committed.
type CertificateIssuedEvent struct {
	CertificateID  uuid.UUID  `json:"certificate_id"`
	Code           string     `json:"code"`
	Title          string     `json:"title"`
	RecipientName  string     `json:"recipient_name"`
	RecipientEmail string     `json:"recipient_email"`
	IssuedBy       uuid.UUID  `json:"issued_by"`
	IssueDate      time.Time  `json:"issue_date"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
}

// CertificateUpdatedEvent lists the fields an update touched.
type CertificateUpdatedEvent struct {
	CertificateID uuid.UUID `json:"certificate_id"`
	Code          string    `json:"code"`
	Fields        []string  `json:"fields"`
}

// CertificateRevokedEvent is emitted on the active to revoked transition.
type CertificateRevokedEvent struct {
	CertificateID  uuid.UUID `json:"certificate_id"`
	Code           string    `json:"code"`
	RecipientEmail string    `json:"recipient_email"`
	RevokedBy      uuid.UUID `json:"revoked_by"`
	Reason         string    `json:"reason,omitempty"`
	RevokedAt      time.Time `json:"revoked_at"`
}

// CertificateDeletedEvent is emitted when an admin hard-deletes a certificate.
type CertificateDeletedEvent struct {
	CertificateID uuid.UUID `json:"certificate_id"`
	Code          string    `json:"code"`
	DeletedBy     uuid.UUID `json:"deleted_by"`
}

// CertificateExpiredEvent is emitted when the expiry sweep stores the expired
// status.
type CertificateExpiredEvent struct {
	CertificateID  uuid.UUID               `json:"certificate_id"`
	Code           string                  `json:"code"`
	RecipientEmail string                  `json:"recipient_email"`
	ExpiryDate     time.Time               `json:"expiry_date"`
	PreviousStatus enums.CertificateStatus `json:"previous_status"`
}

// UserRegisteredEvent is emitted when a new account signs up.
type UserRegisteredEvent struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}
