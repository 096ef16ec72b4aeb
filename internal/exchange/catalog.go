package exchange

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Gift is one purchasable item. UnitCost is in the smallest coin unit.
type Gift struct {
	ID             string `yaml:"id" json:"id" example:"rose"`
	Name           string `yaml:"name" json:"name" example:"Rose"`
	UnitCost       int64  `yaml:"unit_cost" json:"unit_cost" example:"15"`
	PlatformGiftID int64  `yaml:"platform_gift_id" json:"platform_gift_id,omitempty" example:"5655"`
}

type catalogFile struct {
	Gifts []Gift `yaml:"gifts"`
}

// Catalog is the read-only price list. Prices come from here, never from the
// client.
type Catalog struct {
	gifts []Gift
	byID  map[string]Gift
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gift catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse gift catalog: %w", err)
	}
	if len(f.Gifts) == 0 {
		return nil, fmt.Errorf("gift catalog is empty")
	}

	c := &Catalog{byID: make(map[string]Gift, len(f.Gifts))}
	for i, g := range f.Gifts {
		switch {
		case g.ID == "":
			return nil, fmt.Errorf("gift #%d: id is required", i+1)
		case g.Name == "":
			return nil, fmt.Errorf("gift %q: name is required", g.ID)
		case g.UnitCost <= 0:
			return nil, fmt.Errorf("gift %q: unit_cost must be positive", g.ID)
		}
		if _, dup := c.byID[g.ID]; dup {
			return nil, fmt.Errorf("gift %q: duplicate id", g.ID)
		}
		c.byID[g.ID] = g
		c.gifts = append(c.gifts, g)
	}
	sort.SliceStable(c.gifts, func(i, j int) bool { return c.gifts[i].UnitCost < c.gifts[j].UnitCost })

	return c, nil
}

func (c *Catalog) Lookup(id string) (Gift, bool) {
	g, ok := c.byID[id]
	return g, ok
}

// All returns the gifts ordered by price.
func (c *Catalog) All() []Gift {
	out := make([]Gift, len(c.gifts))
	copy(out, c.gifts)
	return out
}
