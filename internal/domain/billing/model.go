package billing

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the delivery state of an invoice job. A dispatcher claims a
// pending job (pending → dispatching) before calling the ledger, so only one
// delivery path can hold a job at a time. A failed delivery releases the job
// back to pending; failed is reached only by explicit operator action during
// reconciliation.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobDispatching JobStatus = "dispatching"
	JobSent        JobStatus = "sent"
	JobFailed      JobStatus = "failed"
)

// InvoiceItem is one line of an invoice request: the consultation service fee
// or a prescription charge. Amounts are in minor currency units.
type InvoiceItem struct {
	Description string     `json:"description"`
	ProductID   *uuid.UUID `json:"product_id,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
}

// InvoiceRequest is the payload handed to the billing ledger.
type InvoiceRequest struct {
	PatientID      uuid.UUID     `json:"patient_id"`
	BranchID       uuid.UUID     `json:"branch_id"`
	Items          []InvoiceItem `json:"items"`
	DiscountAmount int64         `json:"discount_amount"`
}

// Total returns the invoice amount after discount.
func (r InvoiceRequest) Total() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	total -= r.DiscountAmount
	if total < 0 {
		total = 0
	}
	return total
}

// InvoiceJob maps to the invoice_jobs table: the outbox row written inside
// the completion transaction. The unique consultation_id is what guarantees
// at most one invoice attempt chain per consultation.
type InvoiceJob struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	ConsultationID uuid.UUID      `db:"consultation_id" json:"consultation_id"`
	BranchID       uuid.UUID      `db:"branch_id" json:"branch_id"`
	Status         JobStatus      `db:"status" json:"status"`
	Request        InvoiceRequest `db:"request" json:"request"`
	Attempts       int            `db:"attempts" json:"attempts"`
	LastError      string         `db:"last_error" json:"last_error,omitempty"`
	InvoiceID      string         `db:"invoice_id" json:"invoice_id,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	ClaimedAt      *time.Time     `db:"claimed_at" json:"claimed_at,omitempty"`
	SentAt         *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
}
