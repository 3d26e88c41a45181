// Package index maintains secondary indexes over table columns: one B+
// tree per (table, column) mapping a string key to the set of record ids
// holding that value, persisted one file per index under the database's
// indexes/ directory.
package index

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Limbo-corps/LimboDB/internal/bptree"
	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/internal/recordstore"
)

// MaxKey approximates the largest possible string key; used as the upper
// sentinel for "to the rightmost leaf" range scans.
const MaxKey = "~"

// MinKey approximates the smallest possible string key; used as the
// lower sentinel for "from the leftmost leaf" range scans.
const MinKey = ""

type idSet map[recordstore.RecordID]struct{}

type columnIndex struct {
	tree *bptree.BPlusTree[string, idSet]
}

// Manager owns every (table, column) B+ tree index in one database.
type Manager struct {
	tables map[string]map[string]*columnIndex
	dbDir  string
	log    *logging.Logger
}

// New constructs a Manager rooted at dbDir (the current database's
// directory) and loads any indexes already persisted under
// <dbDir>/indexes.
func New(dbDir string) *Manager {
	m := &Manager{
		tables: make(map[string]map[string]*columnIndex),
		dbDir:  dbDir,
		log:    logging.GetLogger("index"),
	}
	m.Load()
	return m
}

// ColumnExists reports whether an index was created for (table, column).
func (m *Manager) ColumnExists(table, column string) bool {
	cols, ok := m.tables[table]
	if !ok {
		return false
	}
	_, ok = cols[column]
	return ok
}

// CreateIndex creates an empty tree for (table, column). Returns false if
// one already exists.
func (m *Manager) CreateIndex(table, column string) bool {
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]*columnIndex)
	}
	if _, exists := m.tables[table][column]; exists {
		m.log.Info("create_index rejected: already exists", "table", table, "column", column)
		return false
	}
	m.tables[table][column] = &columnIndex{tree: bptree.New[string, idSet]()}
	return true
}

// DropIndex destroys the tree for (table, column), removing the table's
// entry entirely if it has no more indexed columns.
func (m *Manager) DropIndex(table, column string) bool {
	cols, ok := m.tables[table]
	if !ok {
		return false
	}
	if _, ok := cols[column]; !ok {
		return false
	}
	delete(cols, column)
	if len(cols) == 0 {
		delete(m.tables, table)
	}
	return true
}

// InsertEntry adds id to the id-set for key in (table, column)'s index.
// Fails only if no index exists for (table, column).
func (m *Manager) InsertEntry(table, column, key string, id recordstore.RecordID) bool {
	col, ok := m.column(table, column)
	if !ok {
		return false
	}
	set := idSet{}
	if existing := col.tree.Search(key); len(existing) > 0 {
		set = existing[0]
	}
	set[id] = struct{}{}
	col.tree.Insert(key, set)
	return true
}

// DeleteEntry removes id from the id-set for key, dropping the key
// entirely if the set becomes empty.
func (m *Manager) DeleteEntry(table, column, key string, id recordstore.RecordID) bool {
	col, ok := m.column(table, column)
	if !ok {
		return false
	}
	existing := col.tree.Search(key)
	if len(existing) == 0 {
		return false
	}
	set := existing[0]
	delete(set, id)
	if len(set) == 0 {
		col.tree.Remove(key, set)
	} else {
		col.tree.Insert(key, set)
	}
	return true
}

// Search returns the record ids stored under key, in ascending order.
func (m *Manager) Search(table, column, key string) []recordstore.RecordID {
	col, ok := m.column(table, column)
	if !ok {
		return nil
	}
	found := col.tree.Search(key)
	if len(found) == 0 {
		return nil
	}
	return setToSlice(found[0])
}

// RangeSearch returns the union of every id-set whose key lies in
// [start, end], deduplicated.
func (m *Manager) RangeSearch(table, column, start, end string) []recordstore.RecordID {
	col, ok := m.column(table, column)
	if !ok {
		return nil
	}
	sets := col.tree.RangeSearch(start, end)
	union := idSet{}
	for _, s := range sets {
		for id := range s {
			union[id] = struct{}{}
		}
	}
	return setToSlice(union)
}

func (m *Manager) column(table, column string) (*columnIndex, bool) {
	cols, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	col, ok := cols[column]
	return col, ok
}

func setToSlice(s idSet) []recordstore.RecordID {
	out := make([]recordstore.RecordID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) indexDir() string {
	return filepath.Join(m.dbDir, "indexes")
}

// Save persists every (table, column) tree to one file under
// indexes/<table>_<column>.idx, one line per key:
// "<key>|<id1>,<id2>,...". I/O failures are logged and that file is
// skipped; saving continues for the rest.
func (m *Manager) Save() {
	dir := m.indexDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		m.log.Warn("could not create indexes directory", "dir", dir, "error", err)
		return
	}

	for table, cols := range m.tables {
		for column, col := range cols {
			path := filepath.Join(dir, fmt.Sprintf("%s_%s.idx", table, column))
			if err := saveOne(path, col.tree); err != nil {
				m.log.Warn("failed to save index", "file", path, "error", err)
				continue
			}
			m.log.Debug("saved index", "table", table, "column", column)
		}
	}
}

func saveOne(path string, tree *bptree.BPlusTree[string, idSet]) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s for writing: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	it := tree.LeftmostLeaf()
	for {
		key, set, ok := it.Next()
		if !ok {
			break
		}
		ids := setToSlice(set)
		idStrs := make([]string, len(ids))
		for i, id := range ids {
			idStrs[i] = strconv.FormatInt(int64(id), 10)
		}
		if _, err := fmt.Fprintf(w, "%s|%s\n", key, strings.Join(idStrs, ",")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load reads back every <table>_<column>.idx file under indexes/, if the
// directory exists. The <table> / <column> split happens at the first
// underscore of the filename stem — a documented limitation: neither
// table nor column names may contain underscores for this to round-trip.
func (m *Manager) Load() {
	dir := m.indexDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // no indexes directory yet is not an error
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".idx") {
			continue
		}
		stem := strings.TrimSuffix(name, ".idx")
		sep := strings.Index(stem, "_")
		if sep < 0 {
			continue
		}
		table, column := stem[:sep], stem[sep+1:]

		tree, err := loadOne(filepath.Join(dir, name))
		if err != nil {
			m.log.Warn("failed to load index", "file", name, "error", err)
			continue
		}
		if m.tables[table] == nil {
			m.tables[table] = make(map[string]*columnIndex)
		}
		m.tables[table][column] = &columnIndex{tree: tree}
		m.log.Debug("loaded index", "table", table, "column", column)
	}
}

func loadOne(path string) (*bptree.BPlusTree[string, idSet], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	tree := bptree.New[string, idSet]()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		sep := strings.Index(line, "|")
		if sep < 0 {
			continue
		}
		key := line[:sep]
		idsStr := line[sep+1:]

		set := idSet{}
		if idsStr != "" {
			for _, idStr := range strings.Split(idsStr, ",") {
				n, err := strconv.ParseInt(idStr, 10, 64)
				if err != nil {
					continue
				}
				set[recordstore.RecordID(n)] = struct{}{}
			}
		}
		tree.Insert(key, set)
	}
	return tree, scanner.Err()
}
