package pharmacy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo    Repository
	catalog Catalog
}

func NewService(repo Repository, catalog Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// ItemRequest is a staged prescription line as submitted by the clinician.
type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Dosage    string    `json:"dosage"`
}

// BuildItems validates staged lines against the catalog and prices them.
// Every line must carry a positive quantity and a resolvable product; the
// first violation aborts, which is what rolls back the completion transaction
// around this call.
func (s *Service) BuildItems(ctx context.Context, branchID uuid.UUID, reqs []ItemRequest) ([]*PrescriptionItem, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidArgument, req.ProductID)
		}
		if req.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: product_id is required", ErrInvalidArgument)
		}
		ids = append(ids, req.ProductID)
	}

	products, err := s.catalog.Resolve(ctx, branchID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	items := make([]*PrescriptionItem, 0, len(reqs))
	for _, req := range reqs {
		product, ok := products[req.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidProductReference, req.ProductID)
		}
		items = append(items, &PrescriptionItem{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Dosage:    req.Dosage,
			UnitPrice: product.UnitPrice,
		})
	}
	return items, nil
}

// CreateForConsultation persists a prescription with pre-validated items. Runs
// inside the completion transaction via the caller's context.
func (s *Service) CreateForConsultation(ctx context.Context, consultationID, patientID, branchID uuid.UUID, items []*PrescriptionItem) (*Prescription, error) {
	p := &Prescription{
		ConsultationID: consultationID,
		PatientID:      patientID,
		BranchID:       branchID,
		Items:          items,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByConsultation serves the pharmacy dispensing screen.
func (s *Service) GetByConsultation(ctx context.Context, branchID, consultationID uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByConsultation(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if p.BranchID != branchID {
		return nil, ErrCrossTenantAccess
	}
	return p, nil
}
