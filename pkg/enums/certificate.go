package enums

import (
	"fmt"
	"strings"
)

// CertificateStatus maps to the certificates.status column.
type CertificateStatus string

const (
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusRevoked CertificateStatus = "revoked"
	CertificateStatusExpired CertificateStatus = "expired"
)

var validCertificateStatuses = []CertificateStatus{
	CertificateStatusActive,
	CertificateStatusRevoked,
	CertificateStatusExpired,
}

// String implements fmt.Stringer.
func (s CertificateStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches a known certificate status.
func (s CertificateStatus) IsValid() bool {
	for _, candidate := range validCertificateStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCertificateStatus converts raw input into CertificateStatus.
func ParseCertificateStatus(value string) (CertificateStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCertificateStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid certificate status %q", value)
}

// CertificateTemplate selects the visual layout of a certificate.
type CertificateTemplate string

const (
	TemplateAchievement   CertificateTemplate = "achievement"
	TemplateParticipation CertificateTemplate = "participation"
	TemplateCompletion    CertificateTemplate = "completion"
	TemplateAppreciation  CertificateTemplate = "appreciation"
	TemplateCustom        CertificateTemplate = "custom"
)

var validCertificateTemplates = []CertificateTemplate{
	TemplateAchievement,
	TemplateParticipation,
	TemplateCompletion,
	TemplateAppreciation,
	TemplateCustom,
}

// String implements fmt.Stringer.
func (t CertificateTemplate) String() string {
	return string(t)
}

// IsValid reports whether the value matches a known template.
func (t CertificateTemplate) IsValid() bool {
	for _, candidate := range validCertificateTemplates {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCertificateTemplate converts raw input into CertificateTemplate.
func ParseCertificateTemplate(value string) (CertificateTemplate, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCertificateTemplates {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid certificate template %q", value)
}

// CertificateGrade is the optional grade printed on a certificate.
type CertificateGrade string

const (
	GradeAPlus       CertificateGrade = "A+"
	GradeA           CertificateGrade = "A"
	GradeBPlus       CertificateGrade = "B+"
	GradeB           CertificateGrade = "B"
	GradeCPlus       CertificateGrade = "C+"
	GradeC           CertificateGrade = "C"
	GradeD           CertificateGrade = "D"
	GradeF           CertificateGrade = "F"
	GradePass        CertificateGrade = "Pass"
	GradeMerit       CertificateGrade = "Merit"
	GradeDistinction CertificateGrade = "Distinction"
)

var validCertificateGrades = []CertificateGrade{
	GradeAPlus,
	GradeA,
	GradeBPlus,
	GradeB,
	GradeCPlus,
	GradeC,
	GradeD,
	GradeF,
	GradePass,
	GradeMerit,
	GradeDistinction,
}

// String implements fmt.Stringer.
func (g CertificateGrade) String() string {
	return string(g)
}

// IsValid reports whether the value matches a known grade.
func (g CertificateGrade) IsValid() bool {
	for _, candidate := range validCertificateGrades {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseCertificateGrade accepts grades in any letter case ("pass", "a+") and
// returns the canonical spelling.
func ParseCertificateGrade(value string) (CertificateGrade, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validCertificateGrades {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid certificate grade %q", value)
}

// EventType classifies the event a certificate was awarded for.
type EventType string

const (
	EventTypeWorkshop      EventType = "workshop"
	EventTypeCompetition   EventType = "competition"
	EventTypeCourse        EventType = "course"
	EventTypeAchievement   EventType = "achievement"
	EventTypeParticipation EventType = "participation"
	EventTypeOther         EventType = "other"
)

var validEventTypes = []EventType{
	EventTypeWorkshop,
	EventTypeCompetition,
	EventTypeCourse,
	EventTypeAchievement,
	EventTypeParticipation,
	EventTypeOther,
}

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether the value matches a known event type.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validEventTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
