package trade

import (
	"context"
	"sort"
	"sync"

	"SpikeSentinel/internal/model"
)

// PositionCache holds the positions the bot believes are open, one per
// (symbol, side). Only the Manager writes to it.
type PositionCache interface {
	Get(ctx context.Context, key model.PositionKey) (*model.Position, bool, error)
	Put(ctx context.Context, pos *model.Position) error
	Delete(ctx context.Context, key model.PositionKey) error
	// List returns cached positions for symbol, or all of them for "".
	List(ctx context.Context, symbol string) ([]model.Position, error)
}

// MemoryCache is a process-local PositionCache.
type MemoryCache struct {
	mu        sync.RWMutex
	positions map[model.PositionKey]model.Position
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{positions: make(map[model.PositionKey]model.Position)}
}

func (c *MemoryCache) Get(_ context.Context, key model.PositionKey) (*model.Position, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.positions[key]
	if !ok {
		return nil, false, nil
	}
	return &pos, true, nil
}

func (c *MemoryCache) Put(_ context.Context, pos *model.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[pos.Key()] = *pos
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key model.PositionKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.positions, key)
	return nil
}

func (c *MemoryCache) List(_ context.Context, symbol string) ([]model.Position, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Position, 0, len(c.positions))
	for _, pos := range c.positions {
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, pos)
		}
	}
	sortPositions(out)
	return out, nil
}

func (c *MemoryCache) snapshot() []model.Position {
	all, _ := c.List(context.Background(), "")
	return all
}

func (c *MemoryCache) replace(positions []model.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions = make(map[model.PositionKey]model.Position, len(positions))
	for _, pos := range positions {
		c.positions[pos.Key()] = pos
	}
}

// replaceSymbol swaps the cached positions of symbol, or of every symbol
// for "", for positions.
func (c *MemoryCache) replaceSymbol(symbol string, positions []model.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.positions {
		if symbol == "" || key.Symbol == symbol {
			delete(c.positions, key)
		}
	}
	for _, pos := range positions {
		c.positions[pos.Key()] = pos
	}
}

func sortPositions(ps []model.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Symbol != ps[j].Symbol {
			return ps[i].Symbol < ps[j].Symbol
		}
		return ps[i].Side < ps[j].Side
	})
}
