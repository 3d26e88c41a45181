// Package engine is the composition root: it owns the data directory,
// creates and switches between named databases, and constructs the six
// managers in their required dependency order (disk, record, index,
// catalog, table, query) — reused by both the REPL and the REST API so
// neither keeps its own process-wide "current database" state.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Limbo-corps/LimboDB/internal/catalog"
	"github.com/Limbo-corps/LimboDB/internal/index"
	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/internal/query"
	"github.com/Limbo-corps/LimboDB/internal/recordstore"
	"github.com/Limbo-corps/LimboDB/internal/table"
)

// Database bundles one open database's managers and executor.
type Database struct {
	Name     string
	Disk     *recordstore.DiskManager
	Records  *recordstore.RecordManager
	Index    *index.Manager
	Catalog  *catalog.Manager
	Table    *table.Manager
	Executor *query.Executor
	lock     *flock.Flock
}

// Close flushes indexes to disk, flushes the heap file, and releases the
// advisory lock, in the reverse of construction order (table/catalog have
// nothing to flush of their own: the catalog's ground truth already lives
// as records, and the table manager owns no state of its own).
func (d *Database) Close() error {
	d.Index.Save()
	if err := d.Disk.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", d.Name, err)
	}
	if d.lock != nil {
		d.lock.Unlock()
	}
	return nil
}

// Engine manages the data directory root: creating databases, listing
// them, and opening one at a time.
type Engine struct {
	dataDir string
	current *Database
	log     *logging.Logger
}

// New constructs an Engine rooted at dataDir, creating the directory if
// it doesn't exist.
func New(dataDir string) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %q: %w", dataDir, err)
	}
	return &Engine{dataDir: dataDir, log: logging.GetLogger("engine")}, nil
}

// CreateDatabase creates data/<name>/ and an empty heap file. Fails if
// the directory already exists.
func (e *Engine) CreateDatabase(name string) error {
	dir := filepath.Join(e.dataDir, name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("database %q already exists", name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	disk, err := recordstore.OpenDiskManager(filepath.Join(dir, "pages.db"))
	if err != nil {
		return fmt.Errorf("create heap file: %w", err)
	}
	return disk.Close()
}

// ListDatabases lists the subdirectories of the data directory.
func (e *Engine) ListDatabases() ([]string, error) {
	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Current returns the currently open database, or nil if none is open.
func (e *Engine) Current() *Database {
	return e.current
}

// Use tears down the current database (if any) and opens name,
// constructing the six managers in dependency order: disk manager,
// record manager, index manager, catalog manager, table manager, query
// executor.
func (e *Engine) Use(name string) (*Database, error) {
	dir := filepath.Join(e.dataDir, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("database %q does not exist", name)
	}

	if e.current != nil {
		if err := e.current.Close(); err != nil {
			e.log.Warn("error closing previous database", "database", e.current.Name, "error", err)
		}
		e.current = nil
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock database %q: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("database %q is already open by another process", name)
	}

	disk, err := recordstore.OpenDiskManager(filepath.Join(dir, "pages.db"))
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open heap file: %w", err)
	}
	records := recordstore.NewRecordManager(disk)
	idx := index.New(dir)
	cat := catalog.New(records)
	tbl := table.New(cat, idx, records)
	exec := query.New(cat, idx, tbl)

	db := &Database{
		Name:     name,
		Disk:     disk,
		Records:  records,
		Index:    idx,
		Catalog:  cat,
		Table:    tbl,
		Executor: exec,
		lock:     lock,
	}
	e.current = db
	return db, nil
}

// Close tears down the currently open database, if any.
func (e *Engine) Close() error {
	if e.current == nil {
		return nil
	}
	err := e.current.Close()
	e.current = nil
	return err
}
