package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Product is an immutable catalog record. Baskets hold copies of it by value.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	MRP         decimal.Decimal `json:"mrp"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description"`
}

// Catalog is the static, read-only product list.
type Catalog struct {
	products []Product
	byID     map[string]Product
}

type catalogDocument struct {
	Products []productDocument `yaml:"products"`
}

type productDocument struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Price       string `yaml:"price"`
	MRP         string `yaml:"mrp"`
	ImageURL    string `yaml:"image_url"`
	Description string `yaml:"description"`
}

// LoadDefault parses the catalog bundled with the binary.
func LoadDefault() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile parses a catalog document from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Load returns the catalog at path, or the bundled one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return LoadDefault()
	}
	return LoadFile(path)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	c := &Catalog{
		products: make([]Product, 0, len(doc.Products)),
		byID:     make(map[string]Product, len(doc.Products)),
	}
	for i, raw := range doc.Products {
		product, err := raw.toProduct()
		if err != nil {
			return nil, fmt.Errorf("catalog: product %d: %w", i, err)
		}
		if _, dup := c.byID[product.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate product id %q", product.ID)
		}
		c.products = append(c.products, product)
		c.byID[product.ID] = product
	}
	return c, nil
}

func (d productDocument) toProduct() (Product, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return Product{}, fmt.Errorf("id is required")
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%s: name is required", id)
	}
	price, err := parseAmount(d.Price)
	if err != nil {
		return Product{}, fmt.Errorf("%s: price: %w", id, err)
	}
	mrp, err := parseAmount(d.MRP)
	if err != nil {
		return Product{}, fmt.Errorf("%s: mrp: %w", id, err)
	}
	return Product{
		ID:          id,
		Name:        name,
		Category:    strings.TrimSpace(d.Category),
		Price:       price,
		MRP:         mrp,
		ImageURL:    strings.TrimSpace(d.ImageURL),
		Description: strings.TrimSpace(d.Description),
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("must be non-negative, got %s", value)
	}
	return value, nil
}

// List returns the products in catalog order, filtered by category when one is given.
func (c *Catalog) List(category string) []Product {
	category = strings.TrimSpace(category)
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Get resolves a product by identifier.
func (c *Catalog) Get(id string) (Product, error) {
	p, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"product_id": id})
	}
	return p, nil
}

// Categories returns the distinct categories, sorted.
func (c *Catalog) Categories() []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range c.products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}
