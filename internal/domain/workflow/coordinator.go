// Package workflow owns the consultation completion transaction: clinical
// records, queue state, and the invoice outbox commit together or not at all,
// while invoice generation itself stays asynchronous.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/consultation"
	"github.com/clinicore/clinicore/internal/domain/pharmacy"
	"github.com/clinicore/clinicore/internal/domain/queue"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/notification"
)

type Coordinator struct {
	cons       consultation.Repository
	queues     *queue.Service
	pharm      *pharmacy.Service
	jobs       billing.JobRepository
	dispatcher *billing.Dispatcher
	notifier   *notification.Publisher
	pool       *pgxpool.Pool
}

func NewCoordinator(cons consultation.Repository, queues *queue.Service, pharm *pharmacy.Service,
	jobs billing.JobRepository, dispatcher *billing.Dispatcher, notifier *notification.Publisher,
	pool *pgxpool.Pool) *Coordinator {
	return &Coordinator{
		cons:       cons,
		queues:     queues,
		pharm:      pharm,
		jobs:       jobs,
		dispatcher: dispatcher,
		notifier:   notifier,
		pool:       pool,
	}
}

// CompleteRequest is everything the clinician submits when closing a
// consultation. Amounts are in minor currency units.
type CompleteRequest struct {
	DiagnosisNotes string                 `json:"diagnosis_notes"`
	Items          []pharmacy.ItemRequest `json:"items,omitempty"`
	ServiceFee     int64                  `json:"service_fee"`
	DiscountAmount int64                  `json:"discount_amount"`
}

// CompleteResult reports the committed state. InvoiceJob is always pending at
// this point: the consultation is "completed, invoice pending" until the
// dispatcher settles the job.
type CompleteResult struct {
	Consultation *consultation.Consultation `json:"consultation"`
	Entry        *queue.Entry               `json:"queue_entry"`
	Prescription *pharmacy.Prescription     `json:"prescription,omitempty"`
	InvoiceJob   *billing.InvoiceJob        `json:"invoice_job"`
}

// Complete atomically closes a consultation: final notes, optional
// prescription, the consultation and queue entry transitions, and the invoice
// outbox row commit in one transaction. Any failure rolls everything back and
// the caller retries the whole call. A consultation that is already closed
// yields ErrConsultationNotOpen and changes nothing, so repeating a completion
// can never produce a second invoice.
func (co *Coordinator) Complete(ctx context.Context, scope db.Scope, consultationID uuid.UUID, req CompleteRequest) (*CompleteResult, error) {
	if req.ServiceFee < 0 {
		return nil, fmt.Errorf("%w: service_fee must not be negative", consultation.ErrInvalidArgument)
	}
	if req.DiscountAmount < 0 {
		return nil, fmt.Errorf("%w: discount_amount must not be negative", consultation.ErrInvalidArgument)
	}

	var res CompleteResult
	err := co.inTx(ctx, func(ctx context.Context) error {
		cons, err := co.cons.GetByID(ctx, consultationID)
		if err != nil {
			return err
		}
		if cons.BranchID != scope.BranchID {
			return db.ErrCrossTenantAccess
		}

		// Validate and price the staged prescription before touching state;
		// a bad product reference aborts with nothing to roll back.
		items, err := co.pharm.BuildItems(ctx, scope.BranchID, req.Items)
		if err != nil {
			return err
		}

		completed, err := co.cons.Complete(ctx, consultationID, req.DiagnosisNotes)
		if err != nil {
			return err
		}
		res.Consultation = completed

		if len(items) > 0 {
			p, err := co.pharm.CreateForConsultation(ctx, consultationID, completed.PatientID, scope.BranchID, items)
			if err != nil {
				return err
			}
			res.Prescription = p
		}

		entry, err := co.queues.FinishEntry(ctx, scope, completed.QueueEntryID)
		if err != nil {
			// The entry is in_progress whenever its consultation is open;
			// anything else is real corruption and must roll the tx back.
			if errors.Is(err, queue.ErrInvalidTransition) {
				return fmt.Errorf("queue entry %s out of sync with consultation: %w", completed.QueueEntryID, err)
			}
			return err
		}
		res.Entry = entry

		job := &billing.InvoiceJob{
			ConsultationID: consultationID,
			BranchID:       scope.BranchID,
			Request:        co.invoiceRequest(completed, res.Prescription, req),
		}
		if err := co.jobs.Create(ctx, job); err != nil {
			return err
		}
		res.InvoiceJob = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Post-commit: hand the job to the dispatcher and announce the completion.
	// Neither can affect the committed transaction.
	if co.dispatcher != nil {
		co.dispatcher.DispatchAsync(scope.TenantID, res.InvoiceJob.ID)
	}
	if co.notifier != nil {
		co.notifier.Publish(ctx, notification.Event{
			Type:      notification.EventConsultationCompleted,
			TenantID:  scope.TenantID,
			BranchID:  scope.BranchID,
			QueueID:   res.Entry.QueueID,
			EntryID:   res.Entry.ID,
			PatientID: res.Entry.PatientID,
		})
	}
	return &res, nil
}

func (co *Coordinator) invoiceRequest(cons *consultation.Consultation, p *pharmacy.Prescription, req CompleteRequest) billing.InvoiceRequest {
	items := []billing.InvoiceItem{
		{Description: "Consultation fee", Quantity: 1, UnitPrice: req.ServiceFee},
	}
	if p != nil {
		for _, item := range p.Items {
			productID := item.ProductID
			items = append(items, billing.InvoiceItem{
				Description: "Prescription charge",
				ProductID:   &productID,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			})
		}
	}
	return billing.InvoiceRequest{
		PatientID:      cons.PatientID,
		BranchID:       cons.BranchID,
		Items:          items,
		DiscountAmount: req.DiscountAmount,
	}
}

// inTx wraps fn in a database transaction. A nil pool (map-backed repos in
// tests) runs fn directly.
func (co *Coordinator) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if co.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, co.pool, fn)
}
