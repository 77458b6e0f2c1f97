package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("catalog: item not found")
	ErrInvalidItem     = errors.New("catalog: invalid item")
	ErrDuplicateKey    = errors.New("catalog: duplicate item key")
	ErrUnknownCategory = errors.New("catalog: unknown category")
)

type Category string

const (
	CategoryWeapon      Category = "weapon"
	CategoryCollectible Category = "collectible"
	CategoryBook        Category = "book"
	CategoryDecoration  Category = "decoration"
)

// ParseCategory accepts the category names case-insensitively.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryWeapon, CategoryCollectible, CategoryBook, CategoryDecoration:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

// Item is a purchasable entry. AssetRef is opaque to the core and is handed to the
// presentation layer to materialize a visual.
type Item struct {
	Key         string
	Name        string
	Description string
	Price       int64
	Category    Category
	AssetRef    string
}

// Tooltip is the hover text shown next to a shop slot.
func (i Item) Tooltip() string {
	if i.Description == "" {
		return i.Name
	}
	return i.Name + "\n" + i.Description
}

func (i Item) validate() error {
	if strings.TrimSpace(i.Key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidItem)
	}
	if i.Price < 0 {
		return fmt.Errorf("%w: %s: price must be zero or greater", ErrInvalidItem, i.Key)
	}
	if strings.TrimSpace(i.AssetRef) == "" {
		return fmt.Errorf("%w: %s: asset reference is required", ErrInvalidItem, i.Key)
	}
	if _, err := ParseCategory(string(i.Category)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidItem, i.Key, err)
	}
	return nil
}

// Catalog is the read-only, ordered list of purchasable items.
type Catalog struct {
	items []Item
	index map[string]int
}

func New(items []Item) (*Catalog, error) {
	c := &Catalog{
		items: make([]Item, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, it := range items {
		if err := it.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[it.Key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, it.Key)
		}
		c.index[it.Key] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

// Items returns the catalog in load order.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Lookup(key string) (Item, error) {
	i, ok := c.index[key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return c.items[i], nil
}

func (c *Catalog) Len() int { return len(c.items) }
