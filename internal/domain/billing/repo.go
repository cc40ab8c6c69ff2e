package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type JobRepository interface {
	// Create inserts a pending job. Runs inside the completion transaction;
	// the unique consultation_id turns a double insert into an error there.
	Create(ctx context.Context, job *InvoiceJob) error

	GetByID(ctx context.Context, id uuid.UUID) (*InvoiceJob, error)
	GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*InvoiceJob, error)
	ListByStatus(ctx context.Context, branchID uuid.UUID, status JobStatus, limit, offset int) ([]*InvoiceJob, int, error)

	// Claim moves one pending job to dispatching. Every delivery path must
	// claim before calling the ledger; a lost race is ErrJobNotPending.
	Claim(ctx context.Context, id uuid.UUID) error

	// ClaimPending moves up to limit pending jobs to dispatching in one
	// statement, skipping rows another dispatcher is claiming.
	ClaimPending(ctx context.Context, limit int) ([]*InvoiceJob, error)

	// ReleaseStale returns dispatching jobs claimed before the cutoff to
	// pending. Covers claims orphaned by a crash mid-dispatch.
	ReleaseStale(ctx context.Context, before time.Time) (int, error)

	// MarkSent settles a claimed job with the ledger's invoice id.
	MarkSent(ctx context.Context, id uuid.UUID, invoiceID string) error

	// RecordFailure releases a claimed job back to pending, bumping the
	// attempt counter and storing the error.
	RecordFailure(ctx context.Context, id uuid.UUID, lastError string) error

	// MarkFailed retires a pending job. Operator action only.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
