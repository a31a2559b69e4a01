package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/angelmondragon/certify-backend/pkg/logger"
	"github.com/angelmondragon/certify-backend/pkg/outbox"
	"github.com/angelmondragon/certify-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/certify-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			certificateEvent(t, enums.EventCertificateIssued, 0),
			certificateEvent(t, enums.EventCertificateIssued, 0),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: issuedResolution()}, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, repo.failed, 1)
	require.Len(t, repo.published, 1)
	require.Equal(t, repo.events[0].ID, repo.failed[0].id)
	require.Equal(t, repo.events[1].ID, repo.published[0])
	require.True(t, repo.failed[0].next.After(service.now()), "retry must be scheduled in the future")
}

func TestServiceProcessBatchReportsIdleWhenEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{resolved: issuedResolution()}, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestServiceProcessBatchSurfacesFetchError(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("db down")}
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{resolved: issuedResolution()}, &fakeDLQRepo{}, nil)

	_, err := service.processBatch(context.Background())
	require.ErrorContains(t, err, "db down")
}

func TestPublishResolvedSetsAttributes(t *testing.T) {
	event := certificateEvent(t, enums.EventCertificateRevoked, 0)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{resolved: issuedResolution()}, &fakeDLQRepo{}, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, string(enums.EventCertificateRevoked), msg.Attributes["event_type"])
	require.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	require.Equal(t, event.AggregateID.String(), msg.OrderingKey)
	require.True(t, bytes.Equal(event.Payload, msg.Data))
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := certificateEvent(t, enums.EventCertificateIssued, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, dlqRepo.entries, 1)
	entry := dlqRepo.entries[0]
	require.Equal(t, event.ID, entry.EventID)
	require.True(t, bytes.Equal(event.Payload, entry.Payload))
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, repo.published)
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := certificateEvent(t, enums.EventCertificateExpired, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: issuedResolution()}, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, dlqRepo.entries, 1)
	require.Equal(t, event.ID, dlqRepo.entries[0].EventID)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlqRepo.entries[0].ErrorReason)
	require.Empty(t, repo.failed)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestServiceForwardsDeadLettersToDLQTopic(t *testing.T) {
	event := certificateEvent(t, enums.EventCertificateIssued, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlqPub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{err: registry.NewNonRetryableError(errors.New("bad"))}, &fakeDLQRepo{}, nil)
	service.dlqTopic = "certificate-dlq"
	service.publisherFactory = func(topic string) publisher {
		require.Equal(t, "certificate-dlq", topic)
		return dlqPub
	}

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlqPub.messages, 1)
	require.Equal(t, string(enums.OutboxDLQReasonNonRetryable), dlqPub.messages[0].Attributes["error_reason"])
}

func TestMissingPublisherIsTerminal(t *testing.T) {
	event := certificateEvent(t, enums.EventCertificateIssued, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: issuedResolution()}, dlqRepo, nil)
	service.publisherFactory = func(string) publisher { return nil }

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlqRepo.entries, 1)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, dlqRepo.entries[0].ErrorReason)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, retryDelay(1, base))
	require.Equal(t, 400*time.Millisecond, retryDelay(3, base))
	require.Equal(t, maxRetryDelay, retryDelay(40, base))
}

func TestNextBackoffCaps(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(500*time.Millisecond, 500*time.Millisecond, maxBackoff))
	require.Equal(t, maxBackoff, nextBackoff(8*time.Second, time.Second, maxBackoff))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, eventRegistry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{Outbox: outboxCfg}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         eventRegistry,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return service
}

func certificateEvent(tb testing.TB, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	tb.Helper()
	id := uuid.New()
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateCertificate,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(tb, id.String()),
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

func issuedResolution() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "certificate-events",
			AggregateType: enums.AggregateCertificate,
		},
		Payload: &payloads.CertificateIssuedEvent{},
	}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type failedMark struct {
	id   uuid.UUID
	next time.Time
}

type fakeRepo struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []failedMark
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchPending(context.Context, int, time.Time) ([]models.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, _ error, next time.Time) error {
	f.failed = append(f.failed, failedMark{id: id, next: next})
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ time.Time) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.EventType = event.EventType
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

func TestServiceSkipsPublishForDeliveredEvents(t *testing.T) {
	event := certificateEvent(t, enums.EventCertificateIssued, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: issuedResolution()}, &fakeDLQRepo{}, nil)
	ledger := &fakeLedger{delivered: map[uuid.UUID]bool{event.ID: true}}
	service.ledger = ledger

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Empty(t, pub.messages)
	require.Equal(t, []uuid.UUID{event.ID}, repo.published)
}

func TestServiceRecordsDeliveryAfterPublish(t *testing.T) {
	event := certificateEvent(t, enums.EventCertificateIssued, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: issuedResolution()}, &fakeDLQRepo{}, nil)
	ledger := &fakeLedger{lookupErr: errors.New("redis down")}
	service.ledger = ledger

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1, "ledger outage must not block publishing")
	require.True(t, ledger.delivered[event.ID])
	require.Equal(t, []uuid.UUID{event.ID}, repo.published)
}

type fakeLedger struct {
	delivered map[uuid.UUID]bool
	lookupErr error
}

func (f *fakeLedger) Delivered(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.delivered[id], nil
}

func (f *fakeLedger) MarkDelivered(_ context.Context, _ string, id uuid.UUID) error {
	if f.delivered == nil {
		f.delivered = map[uuid.UUID]bool{}
	}
	f.delivered[id] = true
	return nil
}
