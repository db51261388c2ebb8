package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyID     = errors.New("tool id is empty")
	ErrDuplicateID = errors.New("duplicate tool id")
	ErrNoRule      = errors.New("tool has no descriptor rule")
)

// Catalog is an immutable registry of tools keyed by id. It is built once and
// shared read-only, so it needs no locking.
type Catalog struct {
	tools map[string]Tool
	order []string
}

// New validates the tools and builds a catalog preserving their order.
func New(tools ...Tool) (*Catalog, error) {
	c := &Catalog{
		tools: make(map[string]Tool, len(tools)),
		order: make([]string, 0, len(tools)),
	}
	for _, t := range tools {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, ErrEmptyID
		}
		if t.Rule == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoRule, t.ID)
		}
		if _, ok := c.tools[t.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		c.tools[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// MustNew is New for static definitions; it panics on invalid input.
func MustNew(tools ...Tool) *Catalog {
	c, err := New(tools...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the tool registered under id.
func (c *Catalog) Lookup(id string) (Tool, bool) {
	t, ok := c.tools[id]
	return t, ok
}

// Tools returns all tools in registration order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tools[id])
	}
	return out
}

func (c *Catalog) Len() int { return len(c.order) }
