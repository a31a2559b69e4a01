package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateCertificate OutboxAggregateType = "certificate"
	AggregateUser        OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCertificate,
	AggregateUser,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the event name written to outbox_events.event_type.
type OutboxEventType string

const (
	EventCertificateIssued  OutboxEventType = "certificate_issued"
	EventCertificateUpdated OutboxEventType = "certificate_updated"
	EventCertificateRevoked OutboxEventType = "certificate_revoked"
	EventCertificateDeleted OutboxEventType = "certificate_deleted"
	EventCertificateExpired OutboxEventType = "certificate_expired"
	EventUserRegistered     OutboxEventType = "user_registered"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCertificateIssued,
	EventCertificateUpdated,
	EventCertificateRevoked,
	EventCertificateDeleted,
	EventCertificateExpired,
	EventUserRegistered,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
