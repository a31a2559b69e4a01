package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/certify-backend/api/middleware"
	"github.com/angelmondragon/certify-backend/api/responses"
	"github.com/angelmondragon/certify-backend/api/validators"
	"github.com/angelmondragon/certify-backend/internal/certificates"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
	"github.com/angelmondragon/certify-backend/pkg/logger"
	"github.com/angelmondragon/certify-backend/pkg/pagination"
)

const maxSearchLen = 200

type recipientRequest struct {
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	RollNumber *string `json:"roll_number,omitempty"`
	Department *string `json:"department,omitempty"`
	Year       *string `json:"year,omitempty"`
}

type issuerRequest struct {
	Name         string  `json:"name" validate:"required"`
	Designation  *string `json:"designation,omitempty"`
	Organization string  `json:"organization" validate:"required"`
	SignatureURL *string `json:"signature_url,omitempty" validate:"omitempty,http_url"`
}

type eventRequest struct {
	Title string     `json:"title"`
	Date  *time.Time `json:"date,omitempty"`
	Type  string     `json:"type"`
}

type metadataRequest struct {
	FontFamily     *string `json:"font_family,omitempty"`
	PrimaryColor   *string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	SecondaryColor *string `json:"secondary_color,omitempty" validate:"omitempty,hexcolor"`
}

type issueCertificateRequest struct {
	CertificateID    string           `json:"certificate_id" validate:"required"`
	Title            string           `json:"title" validate:"required"`
	Description      *string          `json:"description,omitempty"`
	Recipient        recipientRequest `json:"recipient"`
	Issuer           issuerRequest    `json:"issuer"`
	Event            *eventRequest    `json:"event,omitempty"`
	IssueDate        *time.Time       `json:"issue_date,omitempty"`
	ExpiryDate       *time.Time       `json:"expiry_date,omitempty"`
	Template         string           `json:"template,omitempty"`
	Grade            *string          `json:"grade,omitempty"`
	Credits          *decimal.Decimal `json:"credits,omitempty"`
	Skills           []string         `json:"skills,omitempty"`
	VerificationCode *string          `json:"verification_code,omitempty"`
	IsPublic         *bool            `json:"is_public,omitempty"`
	Metadata         *metadataRequest `json:"metadata,omitempty"`
}

func (r issueCertificateRequest) toInput() certificates.IssueInput {
	return certificates.IssueInput{
		CertificateID: r.CertificateID,
		Title:         r.Title,
		Description:   r.Description,
		Recipient: certificates.RecipientInput{
			Name:       r.Recipient.Name,
			Email:      r.Recipient.Email,
			RollNumber: r.Recipient.RollNumber,
			Department: r.Recipient.Department,
			Year:       r.Recipient.Year,
		},
		Issuer: certificates.IssuerInput{
			Name:         r.Issuer.Name,
			Designation:  r.Issuer.Designation,
			Organization: r.Issuer.Organization,
			SignatureURL: r.Issuer.SignatureURL,
		},
		Event:            r.Event.toInput(),
		IssueDate:        r.IssueDate,
		ExpiryDate:       r.ExpiryDate,
		Template:         r.Template,
		Grade:            r.Grade,
		Credits:          r.Credits,
		Skills:           r.Skills,
		VerificationCode: r.VerificationCode,
		IsPublic:         r.IsPublic,
		Metadata:         r.Metadata.toInput(),
	}
}

func (e *eventRequest) toInput() *certificates.EventInput {
	if e == nil {
		return nil
	}
	return &certificates.EventInput{Title: e.Title, Date: e.Date, Type: e.Type}
}

func (m *metadataRequest) toInput() *certificates.MetadataInput {
	if m == nil {
		return nil
	}
	return &certificates.MetadataInput{
		FontFamily:     m.FontFamily,
		PrimaryColor:   m.PrimaryColor,
		SecondaryColor: m.SecondaryColor,
	}
}

type recipientPatchRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	RollNumber *string `json:"roll_number,omitempty"`
	Department *string `json:"department,omitempty"`
	Year       *string `json:"year,omitempty"`
}

type issuerPatchRequest struct {
	Name         *string `json:"name,omitempty"`
	Designation  *string `json:"designation,omitempty"`
	Organization *string `json:"organization,omitempty"`
	SignatureURL *string `json:"signature_url,omitempty" validate:"omitempty,http_url"`
}

// updateCertificateRequest has no certificate_id, verification_code or status:
// those are immutable or only change through revoke.
type updateCertificateRequest struct {
	Title       *string                `json:"title,omitempty"`
	Description *string                `json:"description,omitempty"`
	Recipient   *recipientPatchRequest `json:"recipient,omitempty"`
	Issuer      *issuerPatchRequest    `json:"issuer,omitempty"`
	Event       *eventRequest          `json:"event,omitempty"`
	IssueDate   *time.Time             `json:"issue_date,omitempty"`
	ExpiryDate  *time.Time             `json:"expiry_date,omitempty"`
	ClearExpiry bool                   `json:"clear_expiry,omitempty"`
	Template    *string                `json:"template,omitempty"`
	Grade       *string                `json:"grade,omitempty"`
	Credits     *decimal.Decimal       `json:"credits,omitempty"`
	Skills      *[]string              `json:"skills,omitempty"`
	IsPublic    *bool                  `json:"is_public,omitempty"`
	Metadata    *metadataRequest       `json:"metadata,omitempty"`
}

func (r updateCertificateRequest) toInput() certificates.UpdateInput {
	input := certificates.UpdateInput{
		Title:       r.Title,
		Description: r.Description,
		Event:       r.Event.toInput(),
		IssueDate:   r.IssueDate,
		ExpiryDate:  r.ExpiryDate,
		ClearExpiry: r.ClearExpiry,
		Template:    r.Template,
		Grade:       r.Grade,
		Credits:     r.Credits,
		Skills:      r.Skills,
		IsPublic:    r.IsPublic,
		Metadata:    r.Metadata.toInput(),
	}
	if r.Recipient != nil {
		input.Recipient = &certificates.RecipientPatch{
			Name:       r.Recipient.Name,
			Email:      r.Recipient.Email,
			RollNumber: r.Recipient.RollNumber,
			Department: r.Recipient.Department,
			Year:       r.Recipient.Year,
		}
	}
	if r.Issuer != nil {
		input.Issuer = &certificates.IssuerPatch{
			Name:         r.Issuer.Name,
			Designation:  r.Issuer.Designation,
			Organization: r.Issuer.Organization,
			SignatureURL: r.Issuer.SignatureURL,
		}
	}
	return input
}

type revokeCertificateRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// IssueCertificate creates a certificate on behalf of the signed-in user.
func IssueCertificate(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload issueCertificateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cert, err := svc.Issue(r.Context(), actor, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteMessage(w, http.StatusCreated, "certificate issued", cert)
	}
}

// ListCertificates returns a page of certificates visible to the caller.
func ListCertificates(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		viewer, err := optionalActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Email = strings.TrimSpace(r.URL.Query().Get("email"))

		result, err := svc.List(r.Context(), viewer, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// ListRecipientCertificates lists everything issued to one email.
func ListRecipientCertificates(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListByRecipient(r.Context(), actor, chi.URLParam(r, "email"), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// GetCertificate returns one certificate when the caller may see it.
func GetCertificate(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		viewer, err := optionalActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := certificateIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cert, err := svc.Get(r.Context(), viewer, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cert)
	}
}

// VerifyCertificate is the public lookup by certificate id or verification code.
// Every lookup of an existing certificate is recorded.
func VerifyCertificate(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		viewer, err := optionalActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identifier := strings.TrimSpace(chi.URLParam(r, "identifier"))
		if identifier == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "identifier is required"))
			return
		}

		result, err := svc.Verify(r.Context(), identifier, certificates.AttemptMeta{
			VerifiedBy: middleware.ClientIP(r),
			UserAgent:  r.UserAgent(),
			Viewer:     viewer,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		message := "certificate is valid"
		if !result.IsValid {
			message = "certificate is not valid"
		}
		responses.WriteMessage(w, http.StatusOK, message, result)
	}
}

// UpdateCertificate applies a partial update.
func UpdateCertificate(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := certificateIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCertificateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cert, err := svc.Update(r.Context(), actor, id, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteMessage(w, http.StatusOK, "certificate updated", cert)
	}
}

// RevokeCertificate marks a certificate revoked. The body is optional.
func RevokeCertificate(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := certificateIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload revokeCertificateRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		cert, err := svc.Revoke(r.Context(), actor, id, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteMessage(w, http.StatusOK, "certificate revoked", cert)
	}
}

// DeleteCertificate hard-deletes a certificate and its verification history.
func DeleteCertificate(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := certificateIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteMessage(w, http.StatusOK, "certificate deleted", map[string]string{"id": id.String()})
	}
}

// CertificateVerifications returns the verification history, newest first.
func CertificateVerifications(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "certificate service unavailable"))
			return
		}

		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := certificateIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), actor, id, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, history)
	}
}

func listParams(r *http.Request) (certificates.ListParams, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
	if err != nil {
		return certificates.ListParams{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
	if err != nil {
		return certificates.ListParams{}, err
	}
	query := r.URL.Query()
	return certificates.ListParams{
		Page:   page,
		Limit:  limit,
		Search: validators.SanitizeString(query.Get("search"), maxSearchLen),
		Status: strings.TrimSpace(query.Get("status")),
	}, nil
}

func certificateIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid certificate id")
	}
	return id, nil
}

func requireActor(r *http.Request) (certificates.Actor, error) {
	actor, err := optionalActor(r)
	if err != nil {
		return certificates.Actor{}, err
	}
	if actor == nil {
		return certificates.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return *actor, nil
}

// optionalActor returns nil for anonymous requests.
func optionalActor(r *http.Request) (*certificates.Actor, error) {
	ctx := r.Context()
	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		return nil, nil
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return &certificates.Actor{
		UserID: uid,
		Email:  middleware.EmailFromContext(ctx),
		Role:   enums.SystemRole(middleware.RoleFromContext(ctx)),
	}, nil
}
