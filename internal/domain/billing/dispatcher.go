package billing

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/db"
)

const claimBatchSize = 20

// Dispatcher delivers pending invoice jobs to the ledger. Completion hands it
// fresh jobs right after commit; a background sweep picks up anything a crash
// or a ledger outage left behind. Either way the consultation is already
// completed and reported as "completed, invoice pending" until a job settles.
type Dispatcher struct {
	repo       JobRepository
	ledger     Ledger
	pool       *pgxpool.Pool
	logger     zerolog.Logger
	maxElapsed time.Duration
	interval   time.Duration
}

func NewDispatcher(repo JobRepository, ledger Ledger, pool *pgxpool.Pool, logger zerolog.Logger, maxElapsed, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		ledger:     ledger,
		pool:       pool,
		logger:     logger,
		maxElapsed: maxElapsed,
		interval:   interval,
	}
}

// Dispatch claims and delivers one job, retrying transient ledger errors
// with exponential backoff until maxElapsed runs out. The claim runs before
// the first ledger call, so the post-commit path, the sweep, and a manual
// retry racing on the same job produce exactly one delivery; the losers get
// ErrJobNotPending. Exhaustion records the failure and releases the job back
// to pending for the next sweep or for manual reconciliation.
func (d *Dispatcher) Dispatch(ctx context.Context, job *InvoiceJob) error {
	if job.Status != JobDispatching {
		if err := d.repo.Claim(ctx, job.ID); err != nil {
			return err
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = d.maxElapsed

	var invoiceID string
	operation := func() error {
		id, err := d.ledger.CreateInvoice(ctx, job.Request)
		if err != nil {
			return err
		}
		invoiceID = id
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		d.logger.Warn().
			Err(err).
			Str("job_id", job.ID.String()).
			Str("consultation_id", job.ConsultationID.String()).
			Int("attempts", job.Attempts+1).
			Msg("invoice dispatch exhausted retries, job released back to pending")
		if recordErr := d.repo.RecordFailure(ctx, job.ID, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}

	if err := d.repo.MarkSent(ctx, job.ID, invoiceID); err != nil {
		return err
	}
	d.logger.Info().
		Str("job_id", job.ID.String()).
		Str("invoice_id", invoiceID).
		Msg("invoice sent")
	return nil
}

// DispatchAsync delivers a freshly committed job outside the request that
// produced it. Errors are already recorded on the job row; nothing propagates
// back to the completion caller.
func (d *Dispatcher) DispatchAsync(tenantID string, jobID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.maxElapsed+time.Minute)
		defer cancel()

		err := db.WithTenantConn(ctx, d.pool, tenantID, func(ctx context.Context) error {
			job, err := d.repo.GetByID(ctx, jobID)
			if err != nil {
				return err
			}
			if job.Status != JobPending {
				return nil
			}
			return d.Dispatch(ctx, job)
		})
		if err != nil {
			d.logger.Warn().Err(err).Str("job_id", jobID.String()).Msg("async invoice dispatch failed")
		}
	}()
}

// Run sweeps pending jobs for the given tenants until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, tenants []string) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tenant := range tenants {
				if err := d.sweep(ctx, tenant); err != nil {
					d.logger.Warn().Err(err).Str("tenant", tenant).Msg("invoice sweep failed")
				}
			}
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context, tenantID string) error {
	return db.WithTenantConn(ctx, d.pool, tenantID, func(ctx context.Context) error {
		// Claims that outlived their dispatcher (crash mid-dispatch) go back
		// to pending before this sweep claims its own batch.
		cutoff := time.Now().Add(-(d.maxElapsed + time.Minute))
		if released, err := d.repo.ReleaseStale(ctx, cutoff); err != nil {
			return err
		} else if released > 0 {
			d.logger.Warn().Int("released", released).Msg("released stale invoice claims")
		}

		// The batch claim commits the status flip before any ledger call, so
		// no row locks or transactions are held while the ledger is slow.
		jobs, err := d.repo.ClaimPending(ctx, claimBatchSize)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if err := d.Dispatch(ctx, job); err != nil {
				continue
			}
		}
		return nil
	})
}
