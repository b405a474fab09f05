package services

import (
	"context"
	"log"
	"sync"

	"krayotmarket/internal/models"
)

// CatalogSource fetches the full category tree.
type CatalogSource interface {
	Store(ctx context.Context) ([]models.Category, error)
}

// Catalog is a read-only, in-memory view of the store tree. It is fetched
// once and refetched only after admin catalog writes.
type Catalog struct {
	src        CatalogSource
	mu         sync.RWMutex
	categories []models.Category
	loaded     bool
}

func NewCatalog(src CatalogSource) *Catalog {
	return &Catalog{src: src}
}

// Load fetches the tree and replaces the current view. Hidden products are
// dropped. On error the previous view is kept.
func (c *Catalog) Load(ctx context.Context) error {
	tree, err := c.src.Store(ctx)
	if err != nil {
		log.Printf("Catalog.Load - Error fetching store tree: %v", err)
		return err
	}

	for ci := range tree {
		subs := tree[ci].Subcategories
		for si := range subs {
			visible := make([]models.Product, 0, len(subs[si].Products))
			for _, p := range subs[si].Products {
				if p.Hidden {
					continue
				}
				if p.SubcategoryID == "" {
					p.SubcategoryID = subs[si].ID
				}
				if p.CategoryID == "" {
					p.CategoryID = tree[ci].ID
				}
				visible = append(visible, p)
			}
			subs[si].Products = visible
			if subs[si].CategoryID == "" {
				subs[si].CategoryID = tree[ci].ID
			}
		}
	}

	c.mu.Lock()
	c.categories = tree
	c.loaded = true
	c.mu.Unlock()
	log.Printf("Catalog.Load - Loaded %d categories", len(tree))
	return nil
}

// EnsureLoaded loads the tree if no load has succeeded yet.
func (c *Catalog) EnsureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Load(ctx)
}

// Categories returns the top-level categories.
func (c *Catalog) Categories() []models.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories
}

// Category looks up a category by id. ok is false when it does not exist;
// callers redirect home.
func (c *Catalog) Category(id string) (models.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return models.Category{}, false
}

// Subcategory searches every category and returns the owning one too.
func (c *Catalog) Subcategory(id string) (models.Subcategory, models.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.categories {
		for _, sub := range cat.Subcategories {
			if sub.ID == id {
				return sub, cat, true
			}
		}
	}
	return models.Subcategory{}, models.Category{}, false
}

// Product finds a visible product.
func (c *Catalog) Product(id string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.categories {
		for _, sub := range cat.Subcategories {
			for _, p := range sub.Products {
				if p.ID == id {
					return p, true
				}
			}
		}
	}
	return models.Product{}, false
}
