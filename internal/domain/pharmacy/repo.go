package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the prescription and all of its items.
	Create(ctx context.Context, p *Prescription) error
	GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*Prescription, error)
}
