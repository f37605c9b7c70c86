package generator

import (
	"context"
	"encoding/json"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/dropstage/dropstage/pkg/cache"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/observability"
)

// Pool resolves template names to object templates.
type Pool interface {
	Lookup(name string) (Template, bool)

	// Templates returns all templates in pool order.
	Templates() []Template
}

// StaticPool is an in-memory pool, used directly by tests and as the backing
// store for file pools.
type StaticPool struct {
	templates []Template
	index     map[string]Template
}

// NewStaticPool creates a pool over the given templates.
func NewStaticPool(templates []Template) *StaticPool {
	p := &StaticPool{templates: templates, index: make(map[string]Template, len(templates))}
	for _, t := range templates {
		p.index[t.Name] = t
	}
	return p
}

// Lookup returns the named template.
func (p *StaticPool) Lookup(name string) (Template, bool) {
	t, ok := p.index[name]
	return t, ok
}

// Templates returns all templates in pool order.
func (p *StaticPool) Templates() []Template {
	return p.templates
}

// poolFile is the on-disk TOML shape of an asset pool.
type poolFile struct {
	Templates []Template `toml:"template"`
}

// LoadPool parses an asset pool from a TOML file. Parsed pools are memoized
// in the cache keyed by file path and modification time, so repeated runs
// against large pools skip the parse.
func LoadPool(ctx context.Context, path string, c cache.Cache) (Pool, error) {
	if c == nil {
		c = cache.NewNullCache()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "asset pool %s", path)
	}
	key := cache.PoolKey(path, info.ModTime().UnixNano())

	if data, hit, err := c.Get(ctx, key); err == nil && hit {
		var templates []Template
		if err := json.Unmarshal(data, &templates); err == nil {
			observability.Cache().OnCacheHit(ctx, key)
			return NewStaticPool(templates), nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, key)

	var pf poolFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "parse asset pool %s", path)
	}
	if len(pf.Templates) == 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "asset pool %s defines no templates", path)
	}

	if data, err := json.Marshal(pf.Templates); err == nil {
		_ = c.Set(ctx, key, data, cache.TTLPool)
		observability.Cache().OnCacheSet(ctx, key, len(data))
	}

	return NewStaticPool(pf.Templates), nil
}
