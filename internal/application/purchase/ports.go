package purchase

import "github.com/Zhima-Mochi/gameshop/internal/domain/catalog"

type IDGenerator interface {
	NewID() string
}

// Catalog is the read side of the item catalog the coordinator prices purchases from.
type Catalog interface {
	Lookup(key string) (catalog.Item, error)
}
