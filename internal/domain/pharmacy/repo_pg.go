package pharmacy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
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

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	q := r.conn(ctx)

	p.ID = uuid.New()
	if err := q.QueryRow(ctx, `
		INSERT INTO prescriptions (id, consultation_id, patient_id, branch_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		p.ID, p.ConsultationID, p.PatientID, p.BranchID,
	).Scan(&p.CreatedAt); err != nil {
		return err
	}

	for _, item := range p.Items {
		item.ID = uuid.New()
		item.PrescriptionID = p.ID
		if _, err := q.Exec(ctx, `
			INSERT INTO prescription_items (id, prescription_id, product_id, quantity, dosage, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.PrescriptionID, item.ProductID, item.Quantity, item.Dosage, item.UnitPrice,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*Prescription, error) {
	var p Prescription
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, consultation_id, patient_id, branch_id, created_at
		FROM prescriptions WHERE consultation_id = $1`, consultationID,
	).Scan(&p.ID, &p.ConsultationID, &p.PatientID, &p.BranchID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, product_id, quantity, dosage, unit_price
		FROM prescription_items WHERE prescription_id = $1`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item PrescriptionItem
		if err := rows.Scan(&item.ID, &item.PrescriptionID, &item.ProductID,
			&item.Quantity, &item.Dosage, &item.UnitPrice); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, &item)
	}
	return &p, rows.Err()
}
