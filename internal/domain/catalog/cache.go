// Package catalog keeps an in-memory copy of the sellable product catalog
// for synchronous search.
package catalog

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"stockflow/internal/core/types"
	"stockflow/internal/erp"
	"stockflow/pkg/logger"
)

const (
	// MaxResults bounds every Filter result.
	MaxResults = 50
	// MinTermLength is the shortest term that actually filters.
	MinTermLength = 2
	// DefaultLimit bounds the bulk fetch.
	DefaultLimit = 5000
)

// Product is one catalog record.
type Product struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Code      erp.Text       `json:"default_code"`
	UoM       erp.Many2One   `json:"uom_id"`
	Cost      types.Money    `json:"standard_price"`
	Available types.Quantity `json:"qty_available"`
}

var productFields = []string{"name", "default_code", "uom_id", "standard_price", "qty_available"}

// Config tunes the bulk fetch.
type Config struct {
	Limit int
}

// Cache is loaded once per process. Construct it at the composition root and
// hand it to whoever needs it.
type Cache struct {
	inv   erp.Invoker
	limit int

	group singleflight.Group

	mu       sync.RWMutex
	loaded   bool
	products []Product
}

// New creates an empty cache reading through inv.
func New(inv erp.Invoker, cfg Config) *Cache {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Cache{inv: inv, limit: cfg.Limit}
}

// EnsureLoaded fetches the catalog unless it is already loaded. Concurrent
// callers share one in-flight fetch. A failed fetch leaves the cache empty
// so the next call tries again.
func (c *Cache) EnsureLoaded(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}

	_, err, shared := c.group.Do("catalog", func() (any, error) {
		if c.Loaded() {
			return nil, nil
		}
		// One caller giving up must not cancel the fetch for the others.
		products, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.products = products
		c.loaded = true
		c.mu.Unlock()
		logger.Info(ctx, "catalog loaded", "products", len(products))
		return nil, nil
	})
	if err != nil {
		logger.Warn(ctx, "catalog load failed", "error", err, "shared", shared)
	}
	return err
}

// Reload drops the current contents and fetches again.
func (c *Cache) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.loaded = false
	c.products = nil
	c.mu.Unlock()
	return c.EnsureLoaded(ctx)
}

func (c *Cache) fetch(ctx context.Context) ([]Product, error) {
	return erp.SearchRead[Product](ctx, c.inv, "product.product",
		erp.Domain{erp.Cond("sale_ok", "!=", false)},
		productFields,
		erp.Options{Limit: c.limit})
}

// Loaded reports whether a fetch has completed.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Len returns the number of cached products.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// Get returns the cached product with id.
func (c *Cache) Get(id int64) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Filter returns up to MaxResults products whose name or code contains term,
// case-insensitively. Terms shorter than MinTermLength return the first
// MaxResults products.
func (c *Cache) Filter(term string) []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(term))
	if len([]rune(needle)) < MinTermLength {
		n := min(len(c.products), MaxResults)
		return append([]Product(nil), c.products[:n]...)
	}

	out := make([]Product, 0, MaxResults)
	for _, p := range c.products {
		if strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Code.String()), needle) {
			out = append(out, p)
			if len(out) == MaxResults {
				break
			}
		}
	}
	return out
}
