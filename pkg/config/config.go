// Package config holds named configuration blocks loaded from JSON files or
// supplied inline. A block preserves the declaration order of its keys, so
// "the first declared key" is a meaningful concept for consumers (the db
// registry uses it to pick the default connection).
//
// A block may be a "pointer" block: string values are treated as the names of
// other keys in the same block and are chased through a bounded number of
// redirects. Exceeding the bound, or hitting a missing target mid-chain, is an
// error rather than a silent nil.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Redirect bounds. FirstKey gets a higher allowance because default-connection
// aliasing tends to chain deeper than ordinary value lookups.
const (
	maxRedirects         = 10
	maxFirstKeyRedirects = 50
)

// Error is raised for missing or invalid configuration: absent blocks or keys,
// unknown driver types, and pointer-redirect exhaustion.
type Error struct {
	Block  string
	Key    string
	Reason string
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config: block %q key %q: %s", e.Block, e.Key, e.Reason)
	}
	return fmt.Sprintf("config: block %q: %s", e.Block, e.Reason)
}

// Store is a set of named configuration blocks.
type Store struct {
	mu     sync.RWMutex
	blocks map[string]*Block
}

func NewStore() *Store {
	return &Store{blocks: make(map[string]*Block)}
}

// Load reads one block from a JSON object file, preserving key order.
// The pointer flag marks the block as a pointer config.
func (s *Store) Load(name, path string, pointer bool) (*Block, error) {
	b := &Block{name: name, pointer: pointer, data: make(map[string]any)}
	if err := b.loadFrom(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blocks[name] = b
	s.mu.Unlock()
	return b, nil
}

// NewBlock registers an empty inline block. Populate it with Block.Set; keys
// keep the order of the Set calls.
func (s *Store) NewBlock(name string, pointer bool) *Block {
	b := &Block{name: name, pointer: pointer, data: make(map[string]any), loadedAt: time.Now()}
	s.mu.Lock()
	s.blocks[name] = b
	s.mu.Unlock()
	return b
}

// SetBlock registers an inline block from a plain map. Key order is sorted for
// determinism; use NewBlock + Set when declaration order matters.
func (s *Store) SetBlock(name string, data map[string]any, pointer bool) *Block {
	b := s.NewBlock(name, pointer)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, data[k])
	}
	return b
}

// Block returns the named block, or an *Error if it was never registered.
func (s *Store) Block(name string) (*Block, error) {
	s.mu.RLock()
	b := s.blocks[name]
	s.mu.RUnlock()
	if b == nil {
		return nil, &Error{Block: name, Reason: "block is not defined"}
	}
	return b, nil
}

// Get is shorthand for Block(block).Get(key).
func (s *Store) Get(block, key string) (any, error) {
	b, err := s.Block(block)
	if err != nil {
		return nil, err
	}
	return b.Get(key)
}

// Block is one named, ordered configuration mapping.
type Block struct {
	name       string
	keys       []string
	data       map[string]any
	pointer    bool
	loadedAt   time.Time
	sourcePath string
}

func (b *Block) Name() string    { return b.name }
func (b *Block) IsPointer() bool { return b.pointer }

// Set stores a key, appending to the declaration order when the key is new.
// Runtime mutation does not persist back to the source file.
func (b *Block) Set(key string, value any) *Block {
	if _, ok := b.data[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.data[key] = value
	return b
}

// Get returns the value for key, or nil when the key is not set. On pointer
// blocks, string values are chased as further keys; a missing target anywhere
// past the first hop, or more than maxRedirects hops, is an *Error.
func (b *Block) Get(key string) (any, error) {
	v, ok := b.data[key]
	if !ok {
		return nil, nil
	}
	if !b.pointer {
		return v, nil
	}
	for i := 0; i < maxRedirects; i++ {
		next, isString := v.(string)
		if !isString {
			return v, nil
		}
		v, ok = b.data[next]
		if !ok {
			return nil, &Error{Block: b.name, Key: key, Reason: fmt.Sprintf("pointer target %q is not set", next)}
		}
	}
	return nil, &Error{Block: b.name, Key: key, Reason: "too many redirects"}
}

// FirstKey resolves the first declared key through pointer indirection and
// returns the name of the key holding a concrete (non-string) value.
func (b *Block) FirstKey() (string, error) {
	if len(b.keys) == 0 {
		return "", &Error{Block: b.name, Reason: "block has no keys"}
	}
	return b.ResolveKey(b.keys[0])
}

// ResolveKey chases a key through pointer indirection and returns the name of
// the key holding a concrete (non-string) value. Two aliases of the same
// target therefore resolve to the same name. On non-pointer blocks, and for
// keys that are not set, the key resolves to itself; a dangling target
// mid-chain or redirect exhaustion is an *Error.
func (b *Block) ResolveKey(key string) (string, error) {
	if !b.pointer {
		return key, nil
	}
	start := key
	for i := 0; i < maxFirstKeyRedirects; i++ {
		v, ok := b.data[key]
		if !ok {
			if i == 0 {
				return key, nil
			}
			return "", &Error{Block: b.name, Key: start, Reason: fmt.Sprintf("pointer target %q is not set", key)}
		}
		next, isString := v.(string)
		if !isString {
			return key, nil
		}
		key = next
	}
	return "", &Error{Block: b.name, Key: start, Reason: "too many redirects"}
}

// Keys returns the declaration order of the block's keys.
func (b *Block) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// CheckPresence reports which of the given keys are not set.
func (b *Block) CheckPresence(keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := b.data[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// RequirePresence raises an *Error naming the first missing key, for callers
// that prefer failing over inspecting the missing list.
func (b *Block) RequirePresence(keys ...string) error {
	if missing := b.CheckPresence(keys...); len(missing) > 0 {
		return &Error{Block: b.name, Key: missing[0], Reason: "required key is not set"}
	}
	return nil
}

// IsOlderThan reports whether the block was loaded more than d ago.
// Long-running processes use this to decide whether to Reload.
func (b *Block) IsOlderThan(d time.Duration) bool {
	return time.Since(b.loadedAt) > d
}

// Reload re-reads a file-backed block from its original path. Runtime
// mutations made with Set are discarded.
func (b *Block) Reload() error {
	if b.sourcePath == "" {
		return &Error{Block: b.name, Reason: "block was not loaded from a file"}
	}
	return b.loadFrom(b.sourcePath)
}

func (b *Block) loadFrom(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Block: b.name, Reason: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	defer f.Close()

	keys, data, err := decodeOrdered(f)
	if err != nil {
		return &Error{Block: b.name, Reason: fmt.Sprintf("cannot parse %s: %v", path, err)}
	}
	b.keys = keys
	b.data = data
	b.sourcePath = path
	b.loadedAt = time.Now()
	return nil
}

// decodeOrdered decodes a top-level JSON object while recording the order in
// which its keys appear. encoding/json maps forget declaration order, and the
// first declared key is load-bearing for pointer blocks.
func decodeOrdered(f *os.File) ([]string, map[string]any, error) {
	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	var keys []string
	data := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		if _, dup := data[key]; !dup {
			keys = append(keys, key)
		}
		data[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, data, nil
}
