package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

// Prescription maps to the prescriptions table. At most one prescription per
// consultation; created only by the completion flow and immutable afterwards.
type Prescription struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	ConsultationID uuid.UUID           `db:"consultation_id" json:"consultation_id"`
	PatientID      uuid.UUID           `db:"patient_id" json:"patient_id"`
	BranchID       uuid.UUID           `db:"branch_id" json:"branch_id"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	Items          []*PrescriptionItem `json:"items"`
}

// PrescriptionItem maps to the prescription_items table. UnitPrice is the
// catalog price at prescription time, in minor currency units; later catalog
// changes never rewrite history.
type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	ProductID      uuid.UUID `db:"product_id" json:"product_id"`
	Quantity       int       `db:"quantity" json:"quantity"`
	Dosage         string    `db:"dosage" json:"dosage"`
	UnitPrice      int64     `db:"unit_price" json:"unit_price"`
}

// Total returns the prescription charge in minor currency units.
func (p *Prescription) Total() int64 {
	var total int64
	for _, item := range p.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}
