package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"SpikeSentinel/internal/model"
)

// cacheFile is the on-disk layout of a FileCache.
type cacheFile struct {
	Positions []model.Position `json:"positions"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// FileCache is a MemoryCache persisted to a JSON file after every change,
// so open positions survive a restart.
type FileCache struct {
	mem      *MemoryCache
	filePath string
}

// NewFileCache loads filePath, or starts empty if it does not exist.
func NewFileCache(filePath string) (*FileCache, error) {
	c := &FileCache{mem: NewMemoryCache(), filePath: filePath}
	positions, err := loadPositions(filePath)
	if err != nil {
		return nil, fmt.Errorf("load position cache: %w", err)
	}
	c.mem.replace(positions)
	return c, nil
}

func (c *FileCache) Get(ctx context.Context, key model.PositionKey) (*model.Position, bool, error) {
	return c.mem.Get(ctx, key)
}

func (c *FileCache) Put(ctx context.Context, pos *model.Position) error {
	prev, had, _ := c.mem.Get(ctx, pos.Key())
	_ = c.mem.Put(ctx, pos)
	if err := c.save(); err != nil {
		if had {
			_ = c.mem.Put(ctx, prev)
		} else {
			_ = c.mem.Delete(ctx, pos.Key())
		}
		return err
	}
	return nil
}

func (c *FileCache) Delete(ctx context.Context, key model.PositionKey) error {
	prev, had, _ := c.mem.Get(ctx, key)
	if !had {
		return nil
	}
	_ = c.mem.Delete(ctx, key)
	if err := c.save(); err != nil {
		_ = c.mem.Put(ctx, prev)
		return err
	}
	return nil
}

func (c *FileCache) List(ctx context.Context, symbol string) ([]model.Position, error) {
	return c.mem.List(ctx, symbol)
}

func (c *FileCache) save() error {
	return savePositions(c.filePath, c.mem.snapshot())
}

// loadPositions returns no positions if the file doesn't exist.
func loadPositions(filePath string) ([]model.Position, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Positions, nil
}

// savePositions writes through a temp file so a crash never leaves a torn file.
func savePositions(filePath string, positions []model.Position) error {
	data, err := json.MarshalIndent(cacheFile{Positions: positions, UpdatedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
