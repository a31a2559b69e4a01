package certificates

import (
	"time"

	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
)

// InvalidReason explains why a certificate failed validation. Empty means valid.
type InvalidReason string

const (
	ReasonNone    InvalidReason = ""
	ReasonRevoked InvalidReason = "revoked"
	ReasonExpired InvalidReason = "expired"
	ReasonUnknown InvalidReason = "unknown"
)

// Evaluate reports whether cert is valid at now: active and either without an
// expiry or expiring strictly after now. It reads only stored fields and the
// supplied clock.
func Evaluate(cert *models.Certificate, now time.Time) (bool, InvalidReason) {
	if cert == nil {
		return false, ReasonUnknown
	}
	switch cert.Status {
	case enums.CertificateStatusRevoked:
		return false, ReasonRevoked
	case enums.CertificateStatusExpired:
		return false, ReasonExpired
	case enums.CertificateStatusActive:
		if cert.ExpiryDate != nil && !cert.ExpiryDate.After(now) {
			return false, ReasonExpired
		}
		return true, ReasonNone
	default:
		return false, ReasonUnknown
	}
}
