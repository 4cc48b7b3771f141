package models

import (
	"github.com/xpanvictor/xscribe/internal/config"
)

// Catalog maps logical model names to concrete model identifiers.
type Catalog struct {
	entries []config.ModelEntry
	def     string
}

func NewCatalog(entries []config.ModelEntry, defaultName string) *Catalog {
	if len(entries) == 0 {
		entries = config.DefaultCatalog()
	}
	c := &Catalog{entries: entries, def: defaultName}
	if _, ok := c.lookup(defaultName); !ok {
		c.def = entries[0].Name
	}
	return c
}

func (c *Catalog) lookup(name string) (config.ModelEntry, bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e, true
		}
	}
	return config.ModelEntry{}, false
}

// Resolve returns the entry for name, or the default entry for unknown names.
func (c *Catalog) Resolve(name string) config.ModelEntry {
	if e, ok := c.lookup(name); ok {
		return e
	}
	e, _ := c.lookup(c.def)
	return e
}

// Known reports whether name is in the catalog.
func (c *Catalog) Known(name string) bool {
	_, ok := c.lookup(name)
	return ok
}

// Smallest is the entry with the lowest size_mb, the orchestrator's fallback.
func (c *Catalog) Smallest() config.ModelEntry {
	best := c.entries[0]
	for _, e := range c.entries[1:] {
		if e.SizeMB < best.SizeMB {
			best = e
		}
	}
	return best
}

func (c *Catalog) Default() config.ModelEntry {
	return c.Resolve(c.def)
}

func (c *Catalog) Entries() []config.ModelEntry {
	out := make([]config.ModelEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
