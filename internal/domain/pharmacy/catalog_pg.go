package pharmacy

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

// catalogPG reads the product catalog mirror maintained by the inventory
// sync. Inactive products and products pinned to another branch do not
// resolve.
type catalogPG struct {
	pool *pgxpool.Pool
}

func NewCatalogPG(pool *pgxpool.Pool) Catalog {
	return &catalogPG{pool: pool}
}

func (r *catalogPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *catalogPG) Resolve(ctx context.Context, branchID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]Product, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]Product{}, nil
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, unit_price, active
		FROM products
		WHERE id = ANY($1) AND active AND (branch_id IS NULL OR branch_id = $2)`,
		productIDs, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[uuid.UUID]Product, len(productIDs))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Active); err != nil {
			return nil, err
		}
		found[p.ID] = p
	}
	return found, rows.Err()
}
