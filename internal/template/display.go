package template

import (
	"sync"

	"tbtr/pkg/domain"
)

// Geometry is the purchase-list sprite geometry of a template unit.
type Geometry struct {
	Width   int
	Height  int
	XOffset int
	YOffset int
}

// SpriteSizer measures the purchase sprite of an engine at the current zoom level.
type SpriteSizer interface {
	SpriteSize(engine domain.EngineID) Geometry
}

// DisplayCache memoizes unit geometry until the zoom level changes. It is never
// persisted.
type DisplayCache struct {
	mu      sync.Mutex
	sizer   SpriteSizer
	entries map[domain.TemplateID]Geometry
}

// NewDisplayCache constructs a DisplayCache measuring through sizer.
func NewDisplayCache(sizer SpriteSizer) *DisplayCache {
	return &DisplayCache{sizer: sizer, entries: make(map[domain.TemplateID]Geometry)}
}

// Geometry returns the cached geometry of u, measuring it on first use.
func (c *DisplayCache) Geometry(u domain.TemplateUnit) Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.entries[u.ID]; ok {
		return g
	}
	g := c.sizer.SpriteSize(u.EngineType)
	c.entries[u.ID] = g
	return g
}

// ChainWidth sums the sprite widths of every unit of the chain keyed by head.
func (c *DisplayCache) ChainWidth(r Reader, head domain.TemplateID) (int, error) {
	units, err := Units(r, head)
	if err != nil {
		return 0, err
	}
	width := 0
	for _, u := range units {
		width += c.Geometry(u).Width
	}
	return width, nil
}

// InvalidateZoom drops every cached geometry.
func (c *DisplayCache) InvalidateZoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.TemplateID]Geometry)
}

// Len reports the number of cached entries.
func (c *DisplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
