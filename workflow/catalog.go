package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/types"
)

// Catalog holds workflow definitions by id.
type Catalog struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	sources map[string]string // path -> definition id
	logger  *zap.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		defs:    make(map[string]*Definition),
		sources: make(map[string]string),
		logger:  logger.With(zap.String("component", "workflow_catalog")),
	}
}

// Put validates and stores def, replacing any definition with the same id.
func (c *Catalog) Put(def *Definition) error {
	if def == nil {
		return types.NewError(types.ErrInvalidDefinition, "workflow definition is nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.defs[def.ID] = def
	c.mu.Unlock()
	return nil
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[id]
	return def, ok
}

// IDs lists definition ids in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.defs)
}

// LoadFile loads one definition file into the catalog.
func (c *Catalog) LoadFile(path string) error {
	def, err := LoadDefinition(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	c.mu.Lock()
	if prev, ok := c.sources[path]; ok && prev != def.ID {
		delete(c.defs, prev)
	}
	c.defs[def.ID] = def
	c.sources[path] = def.ID
	c.mu.Unlock()

	c.logger.Info("workflow loaded", zap.String("workflow_id", def.ID), zap.String("path", path))
	return nil
}

// LoadDir loads every .yaml, .yml and .json file in dir. Files that fail to
// load are reported together; the others are still loaded.
func (c *Catalog) LoadDir(dir string) error {
	paths, err := definitionFiles(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range paths {
		if err := c.LoadFile(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d workflow file(s) failed to load: %v", len(errs), errs)
	}
	return nil
}

func (c *Catalog) removeFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.sources[path]; ok {
		delete(c.defs, id)
		delete(c.sources, path)
		c.logger.Info("workflow removed", zap.String("workflow_id", id), zap.String("path", path))
	}
}

func definitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FormatFromPath(e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// --- 目录轮询 ---

// Watch polls dir every interval and reloads added or modified definition
// files, dropping definitions whose file disappeared. It blocks until ctx
// is done.
func (c *Catalog) Watch(ctx context.Context, dir string, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	modTimes := make(map[string]time.Time)
	c.poll(dir, modTimes)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("watching workflow dir", zap.String("dir", dir), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(dir, modTimes)
		}
	}
}

// poll compares modification times against the previous scan.
func (c *Catalog) poll(dir string, modTimes map[string]time.Time) {
	paths, err := definitionFiles(dir)
	if err != nil {
		c.logger.Warn("scan workflow dir failed", zap.String("dir", dir), zap.Error(err))
		return
	}

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		seen[p] = true
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		last, tracked := modTimes[p]
		if tracked && !info.ModTime().After(last) {
			continue
		}
		modTimes[p] = info.ModTime()
		if err := c.LoadFile(p); err != nil {
			// 保留旧版本，等待下一次修改
			c.logger.Warn("reload workflow failed", zap.String("path", p), zap.Error(err))
		}
	}

	for p := range modTimes {
		if !seen[p] {
			delete(modTimes, p)
			c.removeFile(p)
		}
	}
}
