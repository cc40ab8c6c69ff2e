package pharmacy

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Product is a catalog row as seen by prescription validation.
type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Active    bool      `json:"active"`
}

// Catalog resolves product references at prescription time. The inventory
// system owning the catalog lives outside this core; implementations return
// only the products they could resolve and leave gap detection to the caller.
type Catalog interface {
	Resolve(ctx context.Context, branchID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]Product, error)
}

// StaticCatalog is an in-memory Catalog for development and tests. Products
// are shared across branches.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[uuid.UUID]Product
}

func NewStaticCatalog(products ...Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[uuid.UUID]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Add registers or replaces a product.
func (c *StaticCatalog) Add(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *StaticCatalog) Resolve(_ context.Context, _ uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found := make(map[uuid.UUID]Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := c.products[id]; ok && p.Active {
			found[id] = p
		}
	}
	return found, nil
}
