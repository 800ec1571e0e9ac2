// Package catalog loads the XML equipment catalog. The catalog supplies base
// prices and brands when API callers reference an item id instead of passing
// an explicit price; without a catalog file the engine still works, callers
// just have to price everything themselves.
package catalog

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// Item is one catalog entry.
type Item struct {
	ID            string          `json:"id"`
	Category      string          `json:"category"`
	Brand         string          `json:"brand"`
	Name          string          `json:"name"`
	BasePrice     decimal.Decimal `json:"base_price"`
	LifetimeHours int             `json:"lifetime_hours,omitempty"`
}

// Catalog is an immutable, id-keyed set of items.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]Item
	order []string
}

// Load reads a catalog XML file from disk.
func Load(path string) (*Catalog, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return fromDocument(doc)
}

// Parse reads a catalog from raw XML bytes.
func Parse(data []byte) (*Catalog, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return fromDocument(doc)
}

func fromDocument(doc *etree.Document) (*Catalog, error) {
	c := &Catalog{items: make(map[string]Item)}

	for i, el := range doc.FindElements("//catalog/item") {
		id := el.SelectAttrValue("id", "")
		if id == "" {
			return nil, fmt.Errorf("catalog item %d: missing id attribute", i)
		}
		if _, dup := c.items[id]; dup {
			return nil, fmt.Errorf("catalog item %q: duplicate id", id)
		}

		priceAttr := el.SelectAttrValue("basePrice", "")
		if priceAttr == "" {
			return nil, fmt.Errorf("catalog item %q: missing basePrice attribute", id)
		}
		price, err := decimal.NewFromString(priceAttr)
		if err != nil || price.Sign() <= 0 {
			return nil, fmt.Errorf("catalog item %q: bad basePrice %q", id, priceAttr)
		}

		lifetime := 0
		if lt := el.SelectAttrValue("lifetime", ""); lt != "" {
			lifetime, err = strconv.Atoi(lt)
			if err != nil || lifetime < 0 {
				return nil, fmt.Errorf("catalog item %q: bad lifetime %q", id, lt)
			}
		}

		item := Item{
			ID:            id,
			Category:      el.SelectAttrValue("category", ""),
			Brand:         el.SelectAttrValue("brand", ""),
			Name:          el.SelectAttrValue("name", ""),
			BasePrice:     price,
			LifetimeHours: lifetime,
		}
		c.items[id] = item
		c.order = append(c.order, id)
	}

	return c, nil
}

// Get returns the item with the given id.
func (c *Catalog) Get(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

// Items returns all items in document order.
func (c *Catalog) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
