package models

import (
	"errors"
	"fmt"
	"sort"
)

// ResourceType identifies one of the bookable school assets.
type ResourceType string

const (
	ResourceTablets     ResourceType = "TABLETS"
	ResourceDataShow    ResourceType = "DATA_SHOW"
	ResourceLousaSala17 ResourceType = "LOUSA_SALA_17"
)

var ErrUnknownResource = errors.New("unknown resource")

// knownResources lists every variant in display order.
var knownResources = []ResourceType{ResourceTablets, ResourceDataShow, ResourceLousaSala17}

func ParseResourceType(raw string) (ResourceType, error) {
	for _, rt := range knownResources {
		if string(rt) == raw {
			return rt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResource, raw)
}

func (t ResourceType) Valid() bool {
	_, err := ParseResourceType(string(t))
	return err == nil
}

// Resource describes capacity and booking requirements of an asset.
type Resource struct {
	ID           ResourceType `yaml:"id" json:"id"`
	Name         string       `yaml:"name" json:"name"`
	Description  string       `yaml:"description" json:"description"`
	Capacity     int64        `yaml:"capacity" json:"capacity"`
	RequiresRoom bool         `yaml:"requires_room" json:"requires_room"`
	SortOrder    int64        `yaml:"sort_order" json:"sort_order"`
}

// IsPooled reports whether several overlapping reservations can share the
// resource by quantity.
func (r Resource) IsPooled() bool {
	return r.Capacity > 1
}

func defaultResources() []Resource {
	return []Resource{
		{
			ID:           ResourceTablets,
			Name:         "Tablets",
			Description:  "Tablet cart for classroom use.",
			Capacity:     40,
			RequiresRoom: true,
			SortOrder:    1,
		},
		{
			ID:           ResourceDataShow,
			Name:         "Data Show",
			Description:  "Portable multimedia projector.",
			Capacity:     1,
			RequiresRoom: true,
			SortOrder:    2,
		},
		{
			ID:           ResourceLousaSala17,
			Name:         "Interactive Whiteboard - Room 17",
			Description:  "Multimedia room with an interactive whiteboard.",
			Capacity:     1,
			RequiresRoom: false,
			SortOrder:    3,
		},
	}
}

// Catalog is the fixed resource table. It is built once at startup and never
// mutated afterwards.
type Catalog struct {
	byID    map[ResourceType]Resource
	ordered []Resource
}

// DefaultCatalog returns the built-in resource table.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(nil)
	return c
}

// NewCatalog merges configured overrides into the built-in table. Overrides
// may only refer to known identifiers.
func NewCatalog(overrides []Resource) (*Catalog, error) {
	byID := make(map[ResourceType]Resource, len(knownResources))
	for _, r := range defaultResources() {
		byID[r.ID] = r
	}

	seen := make(map[ResourceType]bool, len(overrides))
	for _, o := range overrides {
		if !o.ID.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResource, o.ID)
		}
		if seen[o.ID] {
			return nil, fmt.Errorf("duplicate resource id: %s", o.ID)
		}
		seen[o.ID] = true
		if o.Capacity < 1 {
			return nil, fmt.Errorf("resource %s: capacity must be at least 1, got %d", o.ID, o.Capacity)
		}

		base := byID[o.ID]
		if o.Name != "" {
			base.Name = o.Name
		}
		if o.Description != "" {
			base.Description = o.Description
		}
		if o.SortOrder != 0 {
			base.SortOrder = o.SortOrder
		}
		base.Capacity = o.Capacity
		base.RequiresRoom = o.RequiresRoom
		byID[o.ID] = base
	}

	ordered := make([]Resource, 0, len(byID))
	for _, r := range byID {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].SortOrder == ordered[j].SortOrder {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].SortOrder < ordered[j].SortOrder
	})

	return &Catalog{byID: byID, ordered: ordered}, nil
}

func (c *Catalog) Get(id ResourceType) (Resource, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// All returns a copy of the table in display order.
func (c *Catalog) All() []Resource {
	out := make([]Resource, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Order removes duplicates from ids and returns them in catalog order.
// Unknown identifiers are dropped.
func (c *Catalog) Order(ids []ResourceType) []ResourceType {
	want := make(map[ResourceType]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]ResourceType, 0, len(want))
	for _, r := range c.ordered {
		if want[r.ID] {
			out = append(out, r.ID)
		}
	}
	return out
}
