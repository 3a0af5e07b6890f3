package db

import (
	"fmt"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/jmoiron/sqlx"
)

// Adapter wraps one physical database connection behind a uniform contract.
// Driver packages construct adapters from a config map; the registry caches
// them per logical name.
type Adapter interface {
	// Prepare returns a named statement for the query, reusing a cached one
	// when available. Inside a transaction the statement is scoped to it.
	Prepare(query string) (*sqlx.NamedStmt, error)

	// DB exposes the underlying handle for callers that need to step outside
	// the executor, such as schema setup in tests.
	DB() *sqlx.DB

	Begin() error
	Commit() error
	Rollback() error

	// LastInsertID fetches the most recently generated key. The sequence name
	// is used by engines that need one and ignored elsewhere. The value is
	// connection-scoped; prefer Query.LastInsertID right after an insert.
	LastInsertID(sequence string) (int64, error)

	Close() error
	ConfigKey() string
}

// DriverFunc constructs an adapter from a config map. The map carries at
// least "type" plus driver-specific settings.
type DriverFunc func(configKey string, cfg map[string]any) (Adapter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFunc)
)

// RegisterDriver makes a database driver available under a case-insensitive
// name. Driver packages call it from init, like database/sql drivers do.
// Re-registering a name is rejected.
func RegisterDriver(name string, fn DriverFunc) error {
	if fn == nil {
		return errorf("driver %q: constructor is nil", name)
	}
	key := strings.ToLower(name)
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[key]; dup {
		return errorf("driver %q is already registered", key)
	}
	drivers[key] = fn
	return nil
}

func lookupDriver(name string) (DriverFunc, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	fn, ok := drivers[strings.ToLower(name)]
	return fn, ok
}

// stmtCacheSize bounds the per-connection prepared statement cache.
const stmtCacheSize = 128

// Conn is the shared adapter base: an sqlx handle, an optional single-level
// transaction, and an LRU cache of prepared named statements. Evicted or
// cleared statements are closed. Driver packages embed or return it directly,
// supplying the DSN and the dialect's last-insert-id query.
type Conn struct {
	mu            sync.Mutex
	db            *sqlx.DB
	tx            *sqlx.Tx
	stmts         *lru.Cache
	configKey     string
	lastInsertSQL string
}

// NewConn wraps an open sqlx handle. lastInsertSQL is the dialect query
// returning the last generated key, e.g. "SELECT last_insert_rowid()".
func NewConn(handle *sqlx.DB, configKey, lastInsertSQL string) *Conn {
	cache := lru.New(stmtCacheSize)
	cache.OnEvicted = func(_ lru.Key, value interface{}) {
		if stmt, ok := value.(*sqlx.NamedStmt); ok {
			stmt.Close()
		}
	}
	return &Conn{
		db:            handle,
		stmts:         cache,
		configKey:     configKey,
		lastInsertSQL: lastInsertSQL,
	}
}

func (c *Conn) DB() *sqlx.DB      { return c.db }
func (c *Conn) ConfigKey() string { return c.configKey }

// Prepare returns a prepared named statement. Statements prepared outside a
// transaction are cached and reused; transaction-scoped statements are not
// cached, the driver closes them with the transaction.
func (c *Conn) Prepare(query string) (*sqlx.NamedStmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		return c.tx.PrepareNamed(query)
	}
	if cached, ok := c.stmts.Get(query); ok {
		return cached.(*sqlx.NamedStmt), nil
	}
	stmt, err := c.db.PrepareNamed(query)
	if err != nil {
		return nil, err
	}
	c.stmts.Add(query, stmt)
	return stmt, nil
}

// Begin opens a transaction. Nesting is not supported; the adapter owns
// exactly one level.
func (c *Conn) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return errorf("adapter %q: transaction already active", c.configKey)
	}
	tx, err := c.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction on %q: %w", c.configKey, err)
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return errorf("adapter %q: no active transaction to commit", c.configKey)
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return fmt.Errorf("commit on %q: %w", c.configKey, err)
	}
	return nil
}

func (c *Conn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return errorf("adapter %q: no active transaction to roll back", c.configKey)
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		return fmt.Errorf("rollback on %q: %w", c.configKey, err)
	}
	return nil
}

func (c *Conn) LastInsertID(sequence string) (int64, error) {
	query := c.lastInsertSQL
	if sequence != "" {
		query = strings.ReplaceAll(query, "%s", sequence)
	}
	var id int64
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.tx != nil {
		err = c.tx.Get(&id, query)
	} else {
		err = c.db.Get(&id, query)
	}
	if err != nil {
		return 0, fmt.Errorf("last insert id on %q: %w", c.configKey, err)
	}
	return id, nil
}

// Close rolls back any open transaction, closes every cached statement and
// then the connection itself.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
	}
	c.stmts.Clear()
	return c.db.Close()
}
