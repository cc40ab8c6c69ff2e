package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) JobRepository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const jobCols = `id, consultation_id, branch_id, status, request, attempts,
	last_error, invoice_id, created_at, claimed_at, sent_at`

func (r *repoPG) Create(ctx context.Context, job *InvoiceJob) error {
	job.ID = uuid.New()
	job.Status = JobPending
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice_jobs (id, consultation_id, branch_id, status, request)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		job.ID, job.ConsultationID, job.BranchID, job.Status, job.Request,
	).Scan(&job.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*InvoiceJob, error) {
	return scanJob(r.conn(ctx).QueryRow(ctx,
		`SELECT `+jobCols+` FROM invoice_jobs WHERE id = $1`, id))
}

func (r *repoPG) GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*InvoiceJob, error) {
	return scanJob(r.conn(ctx).QueryRow(ctx,
		`SELECT `+jobCols+` FROM invoice_jobs WHERE consultation_id = $1`, consultationID))
}

func (r *repoPG) ListByStatus(ctx context.Context, branchID uuid.UUID, status JobStatus, limit, offset int) ([]*InvoiceJob, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM invoice_jobs WHERE branch_id = $1 AND status = $2`,
		branchID, status,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+jobCols+` FROM invoice_jobs WHERE branch_id = $1 AND status = $2
		 ORDER BY created_at ASC LIMIT $3 OFFSET $4`,
		branchID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	jobs, err := collectJobs(rows)
	return jobs, total, err
}

func (r *repoPG) Claim(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_jobs
		SET status = 'dispatching', claimed_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotPending
	}
	return nil
}

func (r *repoPG) ClaimPending(ctx context.Context, limit int) ([]*InvoiceJob, error) {
	// Single-statement claim: the subquery's SKIP LOCKED keeps concurrent
	// sweeps off the same rows, and the status flip is committed before any
	// ledger call, so no locks are held during dispatch.
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE invoice_jobs
		SET status = 'dispatching', claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM invoice_jobs WHERE status = 'pending'
			ORDER BY created_at ASC LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobCols, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *repoPG) ReleaseStale(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_jobs
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'dispatching' AND claimed_at < $1`,
		before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) MarkSent(ctx context.Context, id uuid.UUID, invoiceID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_jobs
		SET status = 'sent', invoice_id = $2, attempts = attempts + 1, last_error = '', sent_at = NOW()
		WHERE id = $1 AND status = 'dispatching'`,
		id, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotPending
	}
	return nil
}

func (r *repoPG) RecordFailure(ctx context.Context, id uuid.UUID, lastError string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_jobs
		SET status = 'pending', claimed_at = NULL, attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND status = 'dispatching'`,
		id, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotPending
	}
	return nil
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_jobs
		SET status = 'failed', last_error = $2
		WHERE id = $1 AND status = 'pending'`,
		id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotPending
	}
	return nil
}

func scanJob(row pgx.Row) (*InvoiceJob, error) {
	var j InvoiceJob
	err := row.Scan(&j.ID, &j.ConsultationID, &j.BranchID, &j.Status, &j.Request,
		&j.Attempts, &j.LastError, &j.InvoiceID, &j.CreatedAt, &j.ClaimedAt, &j.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*InvoiceJob, error) {
	var jobs []*InvoiceJob
	for rows.Next() {
		var j InvoiceJob
		if err := rows.Scan(&j.ID, &j.ConsultationID, &j.BranchID, &j.Status, &j.Request,
			&j.Attempts, &j.LastError, &j.InvoiceID, &j.CreatedAt, &j.ClaimedAt, &j.SentAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}
