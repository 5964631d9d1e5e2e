// Package database provides the hybrid database architecture backing Edge
// Fabric's RPC-method/capability cache: a single system.db for fleet-wide
// bookkeeping and lazy-loaded router-{id}.db files holding the set of JSON-RPC
// methods each router has been observed to support, so the rpc dispatcher
// never has to guess whether a given router's firmware implements a method.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

const (
	// DefaultIdleTimeout is the default timeout before closing idle router databases.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultDataDir is the default directory for database files.
	DefaultDataDir = "/var/spotfi/cache"

	// SystemDBFile is the filename for the system database.
	SystemDBFile = "system.db"
)

// Manager manages the hybrid database architecture with a single system.db
// for fleet coordination and lazy-loaded router-{id}.db files holding each
// router's learned RPC-capability cache.
type Manager struct {
	// systemDB is the always-open connection to system.db.
	systemDB *sql.DB

	// routerDBs holds lazy-loaded router database entries.
	routerDBs map[string]*routerDBEntry

	// mu protects routerDBs map
	mu sync.RWMutex

	// dataDir is the directory containing database files
	dataDir string

	// idleTimeout is how long to wait before closing idle router databases
	idleTimeout time.Duration

	// closed indicates if the manager has been closed
	closed bool

	// closeMu protects the closed flag
	closeMu sync.RWMutex
}

// routerDBEntry holds an open router database connection with idle timeout tracking.
type routerDBEntry struct {
	db       *sql.DB
	timer    *time.Timer
	lastUsed time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdleTimeout sets the idle timeout for router databases.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(dm *Manager) {
		dm.idleTimeout = d
	}
}

// WithDataDir sets the data directory for database files.
func WithDataDir(dir string) ManagerOption {
	return func(dm *Manager) {
		dm.dataDir = dir
	}
}

// NewManager creates a new Manager with the given options.
// It opens the system database and runs integrity checks.
func NewManager(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	dm := &Manager{
		routerDBs:   make(map[string]*routerDBEntry),
		dataDir:     DefaultDataDir,
		idleTimeout: DefaultIdleTimeout,
	}

	for _, opt := range opts {
		opt(dm)
	}

	if err := os.MkdirAll(dm.dataDir, 0o755); err != nil {
		return nil, NewDatabaseError(ErrCodeDBConnectionFailed, "failed to create data directory", err).
			WithPath(dm.dataDir)
	}

	systemPath := dm.SystemDBPath()
	db, err := dm.openAndPrepare(ctx, systemPath, systemSchema)
	if err != nil {
		return nil, err
	}
	dm.systemDB = db

	return dm, nil
}

// systemSchema tracks fleet-wide bookkeeping: the last time each router was
// seen holding an open capability cache, for reconciliation and eviction.
const systemSchema = `
CREATE TABLE IF NOT EXISTS routers_seen (
	router_id    TEXT PRIMARY KEY,
	first_seen   TEXT NOT NULL,
	last_seen    TEXT NOT NULL
);
`

// routerCacheSchema stores, per router, whether a given RPC method has been
// observed to succeed or fail so the dispatcher can skip methods a router's
// firmware is known not to implement.
const routerCacheSchema = `
CREATE TABLE IF NOT EXISTS rpc_capabilities (
	method       TEXT PRIMARY KEY,
	supported    INTEGER NOT NULL,
	checked_at   TEXT NOT NULL
);
`

// openAndPrepare opens a SQLite database, applies PRAGMAs, runs an integrity
// check, and executes the given schema DDL.
func (dm *Manager) openAndPrepare(ctx context.Context, path, schema string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_time_format=sqlite", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewDatabaseError(ErrCodeDBConnectionFailed, "failed to open database", err).
			WithPath(path)
	}

	// SQLite is single-threaded for writers; one connection keeps this simple.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-32000",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, NewDatabaseError(ErrCodeDBConnectionFailed, "failed to set PRAGMA", err).
				WithPath(path).
				WithContext("pragma", pragma)
		}
	}

	var integrityResult string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&integrityResult); err != nil {
		db.Close()
		return nil, NewDatabaseError(ErrCodeDBIntegrityFailed, "integrity check query failed", err).
			WithPath(path)
	}
	if integrityResult != "ok" {
		db.Close()
		return nil, NewDatabaseError(ErrCodeDBIntegrityFailed, "integrity check failed", nil).
			WithPath(path).
			WithContext("result", integrityResult)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, NewDatabaseError(ErrCodeDBMigrationFailed, "schema creation failed", err).
			WithPath(path)
	}

	return db, nil
}

// SystemDB returns the always-open system database connection.
func (dm *Manager) SystemDB() *sql.DB {
	return dm.systemDB
}

// SystemDBPath returns the path to the system database file.
func (dm *Manager) SystemDBPath() string {
	return filepath.Join(dm.dataDir, SystemDBFile)
}

// RouterDBPath returns the path to a router's capability-cache database file.
func (dm *Manager) RouterDBPath(routerID string) string {
	return filepath.Join(dm.dataDir, fmt.Sprintf("router-%s.db", routerID))
}

// GetRouterDB returns the capability-cache connection for a router.
// The database is lazy-loaded on first access and cached; an idle timeout
// triggers automatic closure after inactivity.
func (dm *Manager) GetRouterDB(ctx context.Context, routerID string) (*sql.DB, error) {
	dm.closeMu.RLock()
	if dm.closed {
		dm.closeMu.RUnlock()
		return nil, NewDatabaseError(ErrCodeDBClosed, "database manager is closed", nil)
	}
	dm.closeMu.RUnlock()

	dm.mu.RLock()
	entry, exists := dm.routerDBs[routerID]
	dm.mu.RUnlock()

	if exists {
		dm.touchActivity(routerID)
		return entry.db, nil
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if entry, exists := dm.routerDBs[routerID]; exists {
		return entry.db, nil
	}

	path := dm.RouterDBPath(routerID)
	db, err := dm.openAndPrepare(ctx, path, routerCacheSchema)
	if err != nil {
		return nil, err
	}

	if err := dm.recordRouterSeen(ctx, routerID); err != nil {
		db.Close()
		return nil, err
	}

	timer := time.AfterFunc(dm.idleTimeout, func() {
		dm.closeRouterDB(routerID)
	})

	dm.routerDBs[routerID] = &routerDBEntry{
		db:       db,
		timer:    timer,
		lastUsed: time.Now(),
	}

	return db, nil
}

// recordRouterSeen upserts the router's first/last-seen timestamps in system.db.
func (dm *Manager) recordRouterSeen(ctx context.Context, routerID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := dm.systemDB.ExecContext(ctx, `
		INSERT INTO routers_seen (router_id, first_seen, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(router_id) DO UPDATE SET last_seen = excluded.last_seen
	`, routerID, now, now)
	if err != nil {
		return NewDatabaseError(ErrCodeDBQueryFailed, "failed to record router seen", err).
			WithRouterID(routerID)
	}
	return nil
}

// SetCapability records whether a router is known to support an RPC method.
func (dm *Manager) SetCapability(ctx context.Context, routerID, method string, supported bool) error {
	db, err := dm.GetRouterDB(ctx, routerID)
	if err != nil {
		return err
	}

	supportedInt := 0
	if supported {
		supportedInt = 1
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO rpc_capabilities (method, supported, checked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(method) DO UPDATE SET supported = excluded.supported, checked_at = excluded.checked_at
	`, method, supportedInt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return NewDatabaseError(ErrCodeDBQueryFailed, "failed to record capability", err).
			WithRouterID(routerID).
			WithContext("method", method)
	}
	return nil
}

// GetCapability reports whether a router is known to support an RPC method.
// The second return value is false if the method has never been checked.
func (dm *Manager) GetCapability(ctx context.Context, routerID, method string) (supported bool, known bool, err error) {
	db, err := dm.GetRouterDB(ctx, routerID)
	if err != nil {
		return false, false, err
	}

	var supportedInt int
	row := db.QueryRowContext(ctx, `SELECT supported FROM rpc_capabilities WHERE method = ?`, method)
	switch scanErr := row.Scan(&supportedInt); {
	case errors.Is(scanErr, sql.ErrNoRows):
		return false, false, nil
	case scanErr != nil:
		return false, false, NewDatabaseError(ErrCodeDBQueryFailed, "failed to read capability", scanErr).
			WithRouterID(routerID).
			WithContext("method", method)
	}

	return supportedInt != 0, true, nil
}

// touchActivity resets the idle timer for a router database.
func (dm *Manager) touchActivity(routerID string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if entry, exists := dm.routerDBs[routerID]; exists {
		entry.timer.Reset(dm.idleTimeout)
		entry.lastUsed = time.Now()
	}
}

// closeRouterDB closes a router database after idle timeout.
func (dm *Manager) closeRouterDB(routerID string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	entry, exists := dm.routerDBs[routerID]
	if !exists {
		return
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	if entry.db != nil {
		_ = entry.db.Close()
	}

	delete(dm.routerDBs, routerID)
}

// IsSystemDBOpen returns true if the system database is open.
func (dm *Manager) IsSystemDBOpen() bool {
	return dm.systemDB != nil
}

// IsRouterDBLoaded returns true if a router's capability cache is currently loaded.
func (dm *Manager) IsRouterDBLoaded(routerID string) bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	_, exists := dm.routerDBs[routerID]
	return exists
}

// LoadedRouterCount returns the number of currently loaded router databases.
func (dm *Manager) LoadedRouterCount() int {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return len(dm.routerDBs)
}

// Close closes all database connections.
func (dm *Manager) Close() error {
	dm.closeMu.Lock()
	dm.closed = true
	dm.closeMu.Unlock()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	var errs []error

	for id, entry := range dm.routerDBs {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		if entry.db != nil {
			if err := entry.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close router %s db: %w", id, err))
			}
		}
		delete(dm.routerDBs, id)
	}

	if dm.systemDB != nil {
		if err := dm.systemDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close system db: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close router database: %w", errors.Join(errs...))
	}

	return nil
}

// ForceCloseRouterDB immediately closes a specific router's capability cache.
// This is useful for maintenance operations. It returns early if the database
// is not loaded, and returns the first error encountered (if any).
func (dm *Manager) ForceCloseRouterDB(routerID string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	entry, exists := dm.routerDBs[routerID]
	if !exists {
		return nil
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}

	if entry.db != nil {
		if err := entry.db.Close(); err != nil {
			delete(dm.routerDBs, routerID)
			return NewDatabaseError(ErrCodeDBConnectionFailed, "failed to close router database", err).
				WithRouterID(routerID)
		}
	}

	delete(dm.routerDBs, routerID)
	return nil
}

// DeleteRouterDB closes and deletes a router's capability-cache file.
// Used when a router is permanently removed from the fleet.
func (dm *Manager) DeleteRouterDB(routerID string) error {
	if err := dm.ForceCloseRouterDB(routerID); err != nil {
		return fmt.Errorf("delete router database close: %w", err)
	}

	path := dm.RouterDBPath(routerID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return NewDatabaseError(ErrCodeDBConnectionFailed, "failed to delete router database file", err).
			WithPath(path).
			WithRouterID(routerID)
	}

	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")

	return nil
}

// GetRouterDBStats returns activity statistics about a router's capability cache.
func (dm *Manager) GetRouterDBStats(routerID string) (lastUsed time.Time, loaded bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	entry, exists := dm.routerDBs[routerID]
	if exists {
		return entry.lastUsed, true
	}
	return time.Time{}, false
}
