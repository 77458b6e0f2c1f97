package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	domcatalog "github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

type document struct {
	Items []itemEntry `yaml:"items"`
}

type itemEntry struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	Category    string `yaml:"category"`
	Asset       string `yaml:"asset"`
}

// Default returns the built-in catalog.
func Default() (*domcatalog.Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog file, or the built-in catalog when path is empty.
func LoadFile(path string) (*domcatalog.Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML catalog. Unknown fields are rejected.
func Load(r io.Reader) (*domcatalog.Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog: empty document")
		}
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(doc.Items) == 0 {
		return nil, fmt.Errorf("catalog: no items")
	}

	items := make([]domcatalog.Item, 0, len(doc.Items))
	for _, e := range doc.Items {
		cat, err := domcatalog.ParseCategory(e.Category)
		if err != nil {
			return nil, fmt.Errorf("catalog: item %q: %w", e.Key, err)
		}
		name := e.Name
		if name == "" {
			name = e.Key
		}
		items = append(items, domcatalog.Item{
			Key:         e.Key,
			Name:        name,
			Description: e.Description,
			Price:       e.Price,
			Category:    cat,
			AssetRef:    e.Asset,
		})
	}
	return domcatalog.New(items)
}
