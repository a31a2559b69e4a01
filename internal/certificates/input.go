package certificates

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
)

const (
	DefaultFontFamily     = "Arial"
	DefaultPrimaryColor   = "#1a365d"
	DefaultSecondaryColor = "#2d3748"

	titleMinLen        = 3
	titleMaxLen        = 200
	descriptionMaxLen  = 1000
	personNameMinLen   = 2
	revokeReasonMinLen = 10
	userAgentMaxLen    = 512
)

var (
	validate = validator.New()

	certificateIDPattern = regexp.MustCompile(`^[A-Z0-9]{8,12}$`)
	hexColorPattern      = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// IssueInput holds the payload needed to issue a certificate.
type IssueInput struct {
	CertificateID    string
	Title            string
	Description      *string
	Recipient        RecipientInput
	Issuer           IssuerInput
	Event            *EventInput
	IssueDate        *time.Time
	ExpiryDate       *time.Time
	Template         string
	Grade            *string
	Credits          *decimal.Decimal
	Skills           []string
	VerificationCode *string
	IsPublic         *bool
	Metadata         *MetadataInput
}

type RecipientInput struct {
	Name       string
	Email      string
	RollNumber *string
	Department *string
	Year       *string
}

type IssuerInput struct {
	Name         string
	Designation  *string
	Organization string
	SignatureURL *string
}

type EventInput struct {
	Title string
	Date  *time.Time
	Type  string
}

// MetadataInput carries presentation hints; unset values fall back to the defaults.
type MetadataInput struct {
	FontFamily     *string
	PrimaryColor   *string
	SecondaryColor *string
}

// UpdateInput is a partial update. Identity fields and status are deliberately absent.
type UpdateInput struct {
	Title       *string
	Description *string
	Recipient   *RecipientPatch
	Issuer      *IssuerPatch
	Event       *EventInput
	IssueDate   *time.Time
	ExpiryDate  *time.Time
	ClearExpiry bool
	Template    *string
	Grade       *string
	Credits     *decimal.Decimal
	Skills      *[]string
	IsPublic    *bool
	Metadata    *MetadataInput
}

type RecipientPatch struct {
	Name       *string
	Email      *string
	RollNumber *string
	Department *string
	Year       *string
}

type IssuerPatch struct {
	Name         *string
	Designation  *string
	Organization *string
	SignatureURL *string
}

// fieldErrors collects per-field rule violations keyed by JSON path.
type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string(f))
}

// NormalizeCertificateID uppercases and trims a human-facing certificate id.
func NormalizeCertificateID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// toModel validates the input and builds the row to insert. The verification
// code is left empty unless the caller supplied one.
func (in IssueInput) toModel(issuedBy uuid.UUID, now time.Time) (*models.Certificate, error) {
	errs := fieldErrors{}

	certID := NormalizeCertificateID(in.CertificateID)
	switch {
	case certID == "":
		errs.add("certificate_id", "is required")
	case !certificateIDPattern.MatchString(certID):
		errs.add("certificate_id", "must be 8-12 letters or digits")
	}

	title := strings.TrimSpace(in.Title)
	checkTitle(errs, title)
	description := trimmedPtr(in.Description)
	checkDescription(errs, description)

	recipientName := strings.TrimSpace(in.Recipient.Name)
	checkMinLen(errs, "recipient.name", recipientName, personNameMinLen)
	recipientEmail := NormalizeEmail(in.Recipient.Email)
	checkEmail(errs, "recipient.email", recipientEmail)

	issuerName := strings.TrimSpace(in.Issuer.Name)
	checkMinLen(errs, "issuer.name", issuerName, personNameMinLen)
	issuerOrg := strings.TrimSpace(in.Issuer.Organization)
	checkMinLen(errs, "issuer.organization", issuerOrg, personNameMinLen)
	signature := trimmedPtr(in.Issuer.SignatureURL)
	checkURL(errs, "issuer.signature_url", signature)

	issueDate := now
	if in.IssueDate != nil && !in.IssueDate.IsZero() {
		issueDate = in.IssueDate.UTC()
	}
	expiry := utcPtr(in.ExpiryDate)
	if expiry != nil && !expiry.After(issueDate) {
		errs.add("expiry_date", "must be after issue_date")
	}

	template := enums.TemplateAchievement
	if strings.TrimSpace(in.Template) != "" {
		parsed, err := enums.ParseCertificateTemplate(in.Template)
		if err != nil {
			errs.add("template", "is not a supported template")
		}
		template = parsed
	}

	grade := parseGrade(errs, in.Grade)
	credits := checkCredits(errs, in.Credits)

	cert := &models.Certificate{
		CertificateID:       certID,
		Title:               title,
		Description:         description,
		RecipientName:       recipientName,
		RecipientEmail:      recipientEmail,
		RecipientRollNumber: trimmedPtr(in.Recipient.RollNumber),
		RecipientDepartment: trimmedPtr(in.Recipient.Department),
		RecipientYear:       trimmedPtr(in.Recipient.Year),
		IssuerName:          issuerName,
		IssuerDesignation:   trimmedPtr(in.Issuer.Designation),
		IssuerOrganization:  issuerOrg,
		IssuerSignatureURL:  signature,
		IssueDate:           issueDate,
		ExpiryDate:          expiry,
		Template:            template,
		Grade:               grade,
		Credits:             credits,
		Skills:              cleanSkills(in.Skills),
		FontFamily:          DefaultFontFamily,
		PrimaryColor:        DefaultPrimaryColor,
		SecondaryColor:      DefaultSecondaryColor,
		Status:              enums.CertificateStatusActive,
		IsPublic:            true,
		IssuedBy:            issuedBy,
	}
	if in.IsPublic != nil {
		cert.IsPublic = *in.IsPublic
	}
	applyEvent(errs, cert, in.Event)
	applyMetadata(errs, cert, in.Metadata)

	if in.VerificationCode != nil {
		code := strings.TrimSpace(*in.VerificationCode)
		if code == "" {
			errs.add("verification_code", "must not be empty when provided")
		}
		cert.VerificationCode = code
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return cert, nil
}

// apply validates the patch against cert and returns the column updates plus
// the JSON names of the fields that changed.
func (in UpdateInput) apply(cert *models.Certificate) (map[string]any, []string, error) {
	errs := fieldErrors{}
	updates := map[string]any{}
	var fields []string
	set := func(field, column string, value any) {
		updates[column] = value
		fields = append(fields, field)
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		checkTitle(errs, title)
		set("title", "title", title)
	}
	if in.Description != nil {
		description := trimmedPtr(in.Description)
		checkDescription(errs, description)
		set("description", "description", description)
	}

	if r := in.Recipient; r != nil {
		if r.Name != nil {
			name := strings.TrimSpace(*r.Name)
			checkMinLen(errs, "recipient.name", name, personNameMinLen)
			set("recipient.name", "recipient_name", name)
		}
		if r.Email != nil {
			email := NormalizeEmail(*r.Email)
			checkEmail(errs, "recipient.email", email)
			set("recipient.email", "recipient_email", email)
		}
		if r.RollNumber != nil {
			set("recipient.roll_number", "recipient_roll_number", trimmedPtr(r.RollNumber))
		}
		if r.Department != nil {
			set("recipient.department", "recipient_department", trimmedPtr(r.Department))
		}
		if r.Year != nil {
			set("recipient.year", "recipient_year", trimmedPtr(r.Year))
		}
	}

	if is := in.Issuer; is != nil {
		if is.Name != nil {
			name := strings.TrimSpace(*is.Name)
			checkMinLen(errs, "issuer.name", name, personNameMinLen)
			set("issuer.name", "issuer_name", name)
		}
		if is.Organization != nil {
			org := strings.TrimSpace(*is.Organization)
			checkMinLen(errs, "issuer.organization", org, personNameMinLen)
			set("issuer.organization", "issuer_organization", org)
		}
		if is.Designation != nil {
			set("issuer.designation", "issuer_designation", trimmedPtr(is.Designation))
		}
		if is.SignatureURL != nil {
			signature := trimmedPtr(is.SignatureURL)
			checkURL(errs, "issuer.signature_url", signature)
			set("issuer.signature_url", "issuer_signature_url", signature)
		}
	}

	if in.Event != nil {
		scratch := &models.Certificate{}
		applyEvent(errs, scratch, in.Event)
		set("event", "event_title", scratch.EventTitle)
		updates["event_date"] = scratch.EventDate
		updates["event_type"] = scratch.EventType
	}

	issueDate := cert.IssueDate
	if in.IssueDate != nil {
		issueDate = in.IssueDate.UTC()
		set("issue_date", "issue_date", issueDate)
	}
	expiry := cert.ExpiryDate
	switch {
	case in.ClearExpiry:
		expiry = nil
		set("expiry_date", "expiry_date", nil)
	case in.ExpiryDate != nil:
		expiry = utcPtr(in.ExpiryDate)
		set("expiry_date", "expiry_date", expiry)
	}
	if (in.IssueDate != nil || in.ExpiryDate != nil) && expiry != nil && !expiry.After(issueDate) {
		errs.add("expiry_date", "must be after issue_date")
	}

	if in.Template != nil {
		template, err := enums.ParseCertificateTemplate(*in.Template)
		if err != nil {
			errs.add("template", "is not a supported template")
		}
		set("template", "template", template)
	}
	if in.Grade != nil {
		set("grade", "grade", parseGrade(errs, in.Grade))
	}
	if in.Credits != nil {
		set("credits", "credits", checkCredits(errs, in.Credits))
	}
	if in.Skills != nil {
		encoded, err := json.Marshal(cleanSkills(*in.Skills))
		if err != nil {
			errs.add("skills", "could not be encoded")
		}
		set("skills", "skills", string(encoded))
	}
	if in.IsPublic != nil {
		set("is_public", "is_public", *in.IsPublic)
	}
	if in.Metadata != nil {
		scratch := &models.Certificate{
			FontFamily:     cert.FontFamily,
			PrimaryColor:   cert.PrimaryColor,
			SecondaryColor: cert.SecondaryColor,
		}
		applyMetadata(errs, scratch, in.Metadata)
		set("metadata", "font_family", scratch.FontFamily)
		updates["primary_color"] = scratch.PrimaryColor
		updates["secondary_color"] = scratch.SecondaryColor
	}

	if err := errs.err(); err != nil {
		return nil, nil, err
	}
	if len(updates) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no updatable fields provided")
	}
	return updates, fields, nil
}

// normalizeRevokeReason trims the optional reason and enforces its minimum length.
func normalizeRevokeReason(reason *string) (*string, error) {
	trimmed := trimmedPtr(reason)
	if trimmed == nil {
		return nil, nil
	}
	if len([]rune(*trimmed)) < revokeReasonMinLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"reason": "must be at least 10 characters"})
	}
	return trimmed, nil
}

func applyEvent(errs fieldErrors, cert *models.Certificate, in *EventInput) {
	if in == nil {
		return
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		errs.add("event.title", "is required")
	}
	cert.EventTitle = &title
	cert.EventDate = utcPtr(in.Date)
	if strings.TrimSpace(in.Type) == "" {
		return
	}
	eventType, err := enums.ParseEventType(in.Type)
	if err != nil {
		errs.add("event.type", "is not a supported event type")
		return
	}
	cert.EventType = &eventType
}

func applyMetadata(errs fieldErrors, cert *models.Certificate, in *MetadataInput) {
	if in == nil {
		return
	}
	if font := trimmedPtr(in.FontFamily); font != nil {
		cert.FontFamily = *font
	}
	if color := trimmedPtr(in.PrimaryColor); color != nil {
		if !hexColorPattern.MatchString(*color) {
			errs.add("metadata.primary_color", "must be a #rrggbb color")
		}
		cert.PrimaryColor = *color
	}
	if color := trimmedPtr(in.SecondaryColor); color != nil {
		if !hexColorPattern.MatchString(*color) {
			errs.add("metadata.secondary_color", "must be a #rrggbb color")
		}
		cert.SecondaryColor = *color
	}
}

func checkTitle(errs fieldErrors, title string) {
	n := len([]rune(title))
	if n < titleMinLen || n > titleMaxLen {
		errs.add("title", "must be 3-200 characters")
	}
}

func checkDescription(errs fieldErrors, description *string) {
	if description != nil && len([]rune(*description)) > descriptionMaxLen {
		errs.add("description", "must be at most 1000 characters")
	}
}

func checkMinLen(errs fieldErrors, field, value string, min int) {
	if len([]rune(value)) < min {
		errs.add(field, "must be at least 2 characters")
	}
}

func checkEmail(errs fieldErrors, field, email string) {
	if email == "" {
		errs.add(field, "is required")
		return
	}
	if err := validate.Var(email, "email"); err != nil {
		errs.add(field, "must be a valid email")
	}
}

func checkURL(errs fieldErrors, field string, raw *string) {
	if raw == nil {
		return
	}
	if err := validate.Var(*raw, "http_url"); err != nil {
		errs.add(field, "must be an http(s) URL")
	}
}

func parseGrade(errs fieldErrors, raw *string) *enums.CertificateGrade {
	value := trimmedPtr(raw)
	if value == nil {
		return nil
	}
	grade, err := enums.ParseCertificateGrade(*value)
	if err != nil {
		errs.add("grade", "is not a supported grade")
		return nil
	}
	return &grade
}

func checkCredits(errs fieldErrors, credits *decimal.Decimal) decimal.NullDecimal {
	if credits == nil {
		return decimal.NullDecimal{}
	}
	if credits.IsNegative() {
		errs.add("credits", "must be zero or greater")
	}
	return decimal.NullDecimal{Decimal: credits.Round(2), Valid: true}
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		trimmed := strings.TrimSpace(skill)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(trimmed)]; dup {
			continue
		}
		seen[strings.ToLower(trimmed)] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
