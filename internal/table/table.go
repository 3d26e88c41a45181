// Package table is a thin shim over the record store and catalog that
// additionally keeps secondary indexes coherent on insert, delete, and
// update.
package table

import (
	"strings"

	"github.com/Limbo-corps/LimboDB/internal/catalog"
	"github.com/Limbo-corps/LimboDB/internal/index"
	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/internal/recordstore"
)

// Manager applies a table's schema to insert/update/delete/select/scan
// and keeps every indexed column's entries synchronised as it does.
type Manager struct {
	catalog *catalog.Manager
	index   *index.Manager
	records *recordstore.RecordManager
	log     *logging.Logger
}

// New constructs a Manager over the given catalog, index, and record
// store collaborators.
func New(cat *catalog.Manager, idx *index.Manager, records *recordstore.RecordManager) *Manager {
	return &Manager{catalog: cat, index: idx, records: records, log: logging.GetLogger("table")}
}

// CreateTable delegates to the catalog manager, then auto-creates an
// index on the primary-key column.
func (m *Manager) CreateTable(name string, columns []string, types []catalog.DataType, pkIdx int) bool {
	schema, ok := m.catalog.CreateTable(name, columns, types, pkIdx)
	if !ok {
		return false
	}
	m.index.CreateIndex(schema.TableName, schema.Columns[schema.PrimaryKeyIdx])
	return true
}

// InsertInto serialises values as pipe-joined text, inserts it as a new
// record, and adds an index entry on every indexed column of t. Returns
// the new record id, or -1 on failure.
func (m *Manager) InsertInto(t string, values []string) recordstore.RecordID {
	schema, ok := m.catalog.GetSchema(t)
	if !ok {
		m.log.Info("insert_into rejected: unknown table", "table", t)
		return -1
	}

	data := strings.Join(values, "|")
	id, err := m.records.Insert([]byte(data))
	if err != nil {
		m.log.Warn("insert_into failed", "table", t, "error", err)
		return -1
	}

	for i, col := range schema.Columns {
		if i >= len(values) {
			break
		}
		if m.index.ColumnExists(schema.TableName, col) {
			m.index.InsertEntry(schema.TableName, col, values[i], id)
		}
	}
	return id
}

// DeleteFrom removes a specific record (id >= 0) and its index entries,
// or every data record of table t (id == -1). The latter is used by
// DROP TABLE.
func (m *Manager) DeleteFrom(t string, id recordstore.RecordID) int {
	if id >= 0 {
		return m.deleteOne(t, id)
	}
	return m.deleteAll(t)
}

func (m *Manager) deleteOne(t string, id recordstore.RecordID) int {
	schema, ok := m.catalog.GetSchema(t)
	if !ok {
		return 0
	}
	data, err := m.records.Select(id)
	if err != nil {
		m.log.Info("delete_from: record not found", "table", t, "id", id)
		return 0
	}
	values := m.UnpackRecord(string(data), schema)

	if err := m.records.Delete(id); err != nil {
		m.log.Warn("delete_from failed", "table", t, "id", id, "error", err)
		return 0
	}
	m.removeIndexEntries(schema, values, id)
	return 1
}

// deleteAll removes the data records of table t: it scans the full record
// store and deletes every non-SCHEMA| row whose column count matches the
// schema. Records carry no table name, so rows of another table with the
// same column count are deleted too; rows with a different column count
// are left alone. This is the pinned semantics for id == -1 (the query
// executor's DROP TABLE relies on it — see the design notes on the
// original source's delete_from(-1) call site).
func (m *Manager) deleteAll(t string) int {
	schema, ok := m.catalog.GetSchema(t)
	if !ok {
		return 0
	}

	it := m.records.Scan()
	var toDelete []recordstore.RecordID
	var toDeleteValues [][]string
	for {
		data, id, ok, err := it.Next()
		if err != nil || !ok {
			break
		}
		text := string(data)
		if strings.HasPrefix(text, "SCHEMA|") {
			continue
		}
		values := strings.Split(text, "|")
		if len(values) != len(schema.Columns) {
			continue
		}
		toDelete = append(toDelete, id)
		toDeleteValues = append(toDeleteValues, values)
	}

	deleted := 0
	for i, id := range toDelete {
		if err := m.records.Delete(id); err != nil {
			continue
		}
		m.removeIndexEntries(schema, toDeleteValues[i], id)
		deleted++
	}
	return deleted
}

func (m *Manager) removeIndexEntries(schema catalog.TableSchema, values []string, id recordstore.RecordID) {
	for i, col := range schema.Columns {
		if i >= len(values) {
			break
		}
		if m.index.ColumnExists(schema.TableName, col) {
			m.index.DeleteEntry(schema.TableName, col, values[i], id)
		}
	}
}

// DeleteSchemaRecord removes a schema record by id directly, bypassing
// index bookkeeping: schema records aren't governed by any table's
// indexes. Used by DROP TABLE once it has located the schema record.
func (m *Manager) DeleteSchemaRecord(id recordstore.RecordID) error {
	return m.records.Delete(id)
}

// Update deletes the old index entries, overwrites the record in place,
// then inserts new index entries. This is not atomic: a failure between
// steps leaves the index partially updated (documented limitation,
// preserved rather than hidden behind a rollback discipline).
//
// The record store relocates a record to a different slot whenever the
// new payload no longer fits in the old one, so the id new index entries
// are keyed under is whatever recordstore.Update returns, not the id
// passed in. Callers that need to reach the row again (e.g. to report
// it back) must use the returned id.
func (m *Manager) Update(t string, id recordstore.RecordID, newValues []string) (recordstore.RecordID, bool) {
	schema, ok := m.catalog.GetSchema(t)
	if !ok {
		return id, false
	}
	data, err := m.records.Select(id)
	if err != nil {
		return id, false
	}
	oldValues := m.UnpackRecord(string(data), schema)
	m.removeIndexEntries(schema, oldValues, id)

	newData := strings.Join(newValues, "|")
	newID, err := m.records.Update(id, []byte(newData))
	if err != nil {
		m.log.Warn("update failed after removing old index entries", "table", t, "id", id, "error", err)
		return id, false
	}

	for i, col := range schema.Columns {
		if i >= len(newValues) {
			break
		}
		if m.index.ColumnExists(schema.TableName, col) {
			m.index.InsertEntry(schema.TableName, col, newValues[i], newID)
		}
	}
	return newID, true
}

// Select reads a single record by id and unpacks it against t's schema.
func (m *Manager) Select(t string, id recordstore.RecordID) ([]string, bool) {
	schema, ok := m.catalog.GetSchema(t)
	if !ok {
		return nil, false
	}
	data, err := m.records.Select(id)
	if err != nil {
		return nil, false
	}
	return m.UnpackRecord(string(data), schema), true
}

// Row pairs a record id with its unpacked field values.
type Row struct {
	ID     recordstore.RecordID
	Values []string
}

// Scan returns every data row of t, filtering out SCHEMA| records and
// rows whose column count differs from t's schema. Records carry no table
// name, so rows of another table with the same column count are included.
func (m *Manager) Scan(t string) []Row {
	schema, ok := m.catalog.GetSchema(t)
	if !ok {
		return nil
	}

	var rows []Row
	it := m.records.Scan()
	for {
		data, id, ok, err := it.Next()
		if err != nil || !ok {
			break
		}
		text := string(data)
		if strings.HasPrefix(text, "SCHEMA|") {
			continue
		}
		values := strings.Split(text, "|")
		if len(values) != len(schema.Columns) {
			continue
		}
		rows = append(rows, Row{ID: id, Values: values})
	}
	return rows
}

// UnpackRecord splits a pipe-joined record into fields aligned to the
// schema's column order.
func (m *Manager) UnpackRecord(rec string, schema catalog.TableSchema) []string {
	return strings.Split(rec, "|")
}
