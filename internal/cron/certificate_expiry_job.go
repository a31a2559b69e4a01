package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/certify-backend/internal/certificates"
	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/angelmondragon/certify-backend/pkg/logger"
	"github.com/angelmondragon/certify-backend/pkg/metrics"
	"github.com/angelmondragon/certify-backend/pkg/outbox"
	"github.com/angelmondragon/certify-backend/pkg/outbox/payloads"
)

const defaultExpiryBatchSize = 200

// CertificateExpiryJobParams configures the expiry sweep.
type CertificateExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository *certificates.Repository
	Outbox     outbox.Emitter
	Metrics    *metrics.CertificateMetrics
	BatchSize  int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewCertificateExpiryJob constructs the job that stores the expired status on
// active certificates whose expiry date has passed.
func NewCertificateExpiryJob(params CertificateExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("certificate repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &certificateExpiryJob{
		logg:    params.Logger,
		db:      params.DB,
		repo:    params.Repository,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type certificateExpiryJob struct {
	logg    *logger.Logger
	db      txRunner
	repo    *certificates.Repository
	outbox  outbox.Emitter
	metrics *metrics.CertificateMetrics
	batch   int
	now     func() time.Time
}

func (j *certificateExpiryJob) Name() string { return "certificate-expiry" }

func (j *certificateExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var (
		errs    []error
		expired int
	)

	// failed rows stay active, so a full batch of failures would loop forever
	for {
		rows, err := j.repo.ListExpiring(ctx, now, j.batch)
		if err != nil {
			return fmt.Errorf("list expiring certificates: %w", err)
		}
		batchFailures := 0
		for i := range rows {
			changed, err := j.expire(ctx, &rows[i], now)
			if err != nil {
				batchFailures++
				errs = append(errs, fmt.Errorf("expire %s: %w", rows[i].CertificateID, err))
				continue
			}
			if changed {
				expired++
				j.metrics.IncOperation("expire")
			}
		}
		if len(rows) < j.batch || batchFailures == len(rows) {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired":  expired,
		"failures": len(errs),
	})
	j.logg.Info(logCtx, "certificate expiry sweep complete")
	return multierr.Combine(errs...)
}

func (j *certificateExpiryJob) expire(ctx context.Context, cert *models.Certificate, now time.Time) (bool, error) {
	var changed bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.repo.WithTx(tx).MarkExpired(ctx, cert.ID, now)
		if err != nil || !ok {
			return err
		}
		changed = true
		event := outbox.DomainEvent{
			EventType:     enums.EventCertificateExpired,
			AggregateType: enums.AggregateCertificate,
			AggregateID:   cert.ID,
			Data: payloads.CertificateExpiredEvent{
				CertificateID:  cert.ID,
				Code:           cert.CertificateID,
				RecipientEmail: cert.RecipientEmail,
				ExpiryDate:     cert.ExpiryDate.UTC(),
				PreviousStatus: cert.Status,
			},
		}
		return j.outbox.Emit(ctx, tx, event)
	})
	return changed, err
}
