package indexcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/kiffhq/kiff/internal/pipeline"
)

// Catalog resolves an admin-facing API name to the ingestion config
// used to index its documentation.
type Catalog interface {
	Lookup(ctx context.Context, apiName string) (pipeline.DomainConfig, error)
	Names(ctx context.Context) ([]string, error)
}

// StaticCatalog is a curated in-memory catalog, seeded at startup.
type StaticCatalog struct {
	mu      sync.RWMutex
	configs map[string]pipeline.DomainConfig
}

func NewStaticCatalog(configs ...pipeline.DomainConfig) *StaticCatalog {
	c := &StaticCatalog{configs: make(map[string]pipeline.DomainConfig)}
	for _, cfg := range configs {
		c.configs[normalizeName(cfg.Name)] = cfg
	}
	return c
}

func (c *StaticCatalog) Add(cfg pipeline.DomainConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[normalizeName(cfg.Name)] = cfg
}

func (c *StaticCatalog) Lookup(_ context.Context, apiName string) (pipeline.DomainConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.configs[normalizeName(apiName)]
	if !ok {
		return pipeline.DomainConfig{}, fmt.Errorf("api %q not in catalog: %w", apiName, ErrNotFound)
	}
	return cfg, nil
}

func (c *StaticCatalog) Names(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.configs))
	for name := range c.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LoadCatalogFile reads a JSON array of domain configs into a catalog.
// A missing file yields an empty catalog so the service can start
// before any API is curated.
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStaticCatalog(), nil
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var configs []pipeline.DomainConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	return NewStaticCatalog(configs...), nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
