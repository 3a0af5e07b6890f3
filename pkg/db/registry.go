package db

import (
	"fmt"
	"sync"

	"github.com/asaidimu/activesql/pkg/config"
)

// Registry maps logical connection names to lazily constructed, cached
// adapters. Configuration comes from one (usually pointer) config block whose
// first declared key is the implicit default connection.
//
// The cache is process-wide state shared between goroutines, so every
// get/create/remove is mutex-guarded.
type Registry struct {
	mu       sync.Mutex
	store    *config.Store
	block    string
	adapters map[string]Adapter
}

func NewRegistry(store *config.Store, block string) *Registry {
	return &Registry{
		store:    store,
		block:    block,
		adapters: make(map[string]Adapter),
	}
}

// Adapter resolves a logical name to an adapter, constructing and caching it
// on first use. An empty name resolves to the config block's first key; an
// alias (a pointer key naming another connection) resolves to its terminal
// key, so every alias of one target shares a single cached adapter.
// Construction fails fast on a missing config key or an unregistered type.
func (r *Registry) Adapter(name string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adapterLocked(name)
}

func (r *Registry) adapterLocked(name string) (Adapter, error) {
	block, err := r.store.Block(r.block)
	if err != nil {
		return nil, err
	}
	name, err = r.resolveName(block, name)
	if err != nil {
		return nil, err
	}
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}

	raw, err := block.Get(name)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &config.Error{Block: r.block, Key: name, Reason: "connection is not configured"}
	}
	cfg, ok := raw.(map[string]any)
	if !ok {
		return nil, &config.Error{Block: r.block, Key: name, Reason: fmt.Sprintf("connection config must be a map, got %T", raw)}
	}
	driverType, _ := cfg["type"].(string)
	if driverType == "" {
		return nil, &config.Error{Block: r.block, Key: name, Reason: "connection config is missing \"type\""}
	}
	construct, ok := lookupDriver(driverType)
	if !ok {
		return nil, &config.Error{Block: r.block, Key: name, Reason: fmt.Sprintf("unknown driver type %q", driverType)}
	}

	adapter, err := construct(name, cfg)
	if err != nil {
		return nil, err
	}
	r.adapters[name] = adapter
	return adapter, nil
}

// resolveName maps the requested connection name to the cache key: the
// block's first key for the empty name, otherwise the terminal key of the
// pointer chain.
func (r *Registry) resolveName(block *config.Block, name string) (string, error) {
	if name == "" {
		return block.FirstKey()
	}
	return block.ResolveKey(name)
}

// RemoveAdapter closes the named adapter and evicts it; a later Adapter call
// reconstructs it from config. An empty name targets the default connection;
// aliases resolve to their target, same as Adapter.
func (r *Registry) RemoveAdapter(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	block, err := r.store.Block(r.block)
	if err != nil {
		return err
	}
	name, err = r.resolveName(block, name)
	if err != nil {
		return err
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil
	}
	delete(r.adapters, name)
	return a.Close()
}

// RemoveAdapters closes and evicts every cached adapter.
func (r *Registry) RemoveAdapters() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, a := range r.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.adapters, name)
	}
	return firstErr
}

// Begin, Commit and Rollback forward to the default adapter. The adapter owns
// transaction state; these carry none of their own.

func (r *Registry) Begin() error {
	a, err := r.Adapter("")
	if err != nil {
		return err
	}
	return a.Begin()
}

func (r *Registry) Commit() error {
	a, err := r.Adapter("")
	if err != nil {
		return err
	}
	return a.Commit()
}

func (r *Registry) Rollback() error {
	a, err := r.Adapter("")
	if err != nil {
		return err
	}
	return a.Rollback()
}
