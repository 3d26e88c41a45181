// Package catalog manages table schemas: it materialises them as records
// in the same heap used for user data, prefixed with a SCHEMA sentinel,
// and caches them in memory for fast lookup.
package catalog

import (
	"strconv"
	"strings"

	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/internal/recordstore"
)

// DataType is a column's declared type. It is metadata only; values
// themselves are always persisted as strings.
type DataType int

const (
	Unknown DataType = iota
	Int
	Varchar
	Float
)

func (d DataType) String() string {
	switch d {
	case Int:
		return "INT"
	case Varchar:
		return "VARCHAR"
	case Float:
		return "FLOAT"
	default:
		return "UNKNOWN"
	}
}

// ParseType converts a type tag back into a DataType, defaulting to
// Unknown for anything it doesn't recognise.
func ParseType(s string) DataType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INT":
		return Int
	case "VARCHAR":
		return Varchar
	case "FLOAT":
		return Float
	default:
		return Unknown
	}
}

const schemaPrefix = "SCHEMA|"

// TableSchema describes one table: its normalised name, its normalised
// column names in declared order, their types, and which column is the
// primary key.
type TableSchema struct {
	TableName     string
	Columns       []string
	ColumnTypes   []DataType
	PrimaryKeyIdx int
}

// Serialize produces the on-disk form:
// SCHEMA|<table>|<col1>,<col2>,...|<TYPE1>,<TYPE2>,...|<pk_index>
func (s TableSchema) Serialize() string {
	var b strings.Builder
	b.WriteString(schemaPrefix)
	b.WriteString(s.TableName)
	b.WriteByte('|')
	b.WriteString(strings.Join(s.Columns, ","))
	b.WriteByte('|')
	typeStrs := make([]string, len(s.ColumnTypes))
	for i, t := range s.ColumnTypes {
		typeStrs[i] = t.String()
	}
	b.WriteString(strings.Join(typeStrs, ","))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(s.PrimaryKeyIdx))
	return b.String()
}

// DeserializeSchema parses the on-disk form back into a TableSchema. It
// returns ok=false for anything that isn't a well-formed schema record
// (no SCHEMA| prefix, wrong field count, or an unparsable index).
func DeserializeSchema(record string) (TableSchema, bool) {
	if !strings.HasPrefix(record, schemaPrefix) {
		return TableSchema{}, false
	}
	content := record[len(schemaPrefix):]
	parts := strings.Split(content, "|")
	if len(parts) != 4 {
		return TableSchema{}, false
	}

	schema := TableSchema{
		TableName: normalizeIdentifier(parts[0]),
	}
	if parts[1] != "" {
		for _, c := range strings.Split(parts[1], ",") {
			schema.Columns = append(schema.Columns, normalizeIdentifier(c))
		}
	}
	if parts[2] != "" {
		for _, t := range strings.Split(parts[2], ",") {
			schema.ColumnTypes = append(schema.ColumnTypes, ParseType(t))
		}
	}
	idx, err := strconv.Atoi(parts[3])
	if err != nil {
		return TableSchema{}, false
	}
	schema.PrimaryKeyIdx = idx
	return schema, true
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

func normalizeIdentifier(s string) string {
	return strings.ToLower(trim(s))
}

func normalizeIdentifiers(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = normalizeIdentifier(s)
	}
	return out
}

// Manager is the catalog manager: an in-memory cache of schemas whose
// ground truth lives as SCHEMA| records in the record store.
type Manager struct {
	records *recordstore.RecordManager
	cache   map[string]TableSchema
	log     *logging.Logger
}

// New constructs a Manager and loads the existing catalog from records.
func New(records *recordstore.RecordManager) *Manager {
	m := &Manager{
		records: records,
		cache:   make(map[string]TableSchema),
		log:     logging.GetLogger("catalog"),
	}
	m.loadCatalog()
	return m
}

func (m *Manager) loadCatalog() {
	it := m.records.Scan()
	count := 0
	for {
		data, _, ok, err := it.Next()
		if err != nil {
			m.log.Warn("scan failed while loading catalog", "error", err)
			return
		}
		if !ok {
			break
		}
		schema, valid := DeserializeSchema(string(data))
		if !valid || schema.TableName == "" {
			continue
		}
		m.cache[schema.TableName] = schema
		count++
	}
	m.log.Info("loaded catalog", "tables", count)
}

// CreateTable normalises name and column names, validates shape, persists
// the schema as a record, and caches it. Returns false if the table
// already exists, the column/type counts disagree, or pkIdx is out of
// range.
func (m *Manager) CreateTable(name string, columns []string, types []DataType, pkIdx int) (TableSchema, bool) {
	normTable := normalizeIdentifier(name)
	normCols := normalizeIdentifiers(columns)

	if _, exists := m.cache[normTable]; exists {
		m.log.Info("create_table rejected: already exists", "table", normTable)
		return TableSchema{}, false
	}
	if len(columns) != len(types) {
		m.log.Info("create_table rejected: column/type count mismatch", "table", normTable)
		return TableSchema{}, false
	}
	if pkIdx < 0 || pkIdx >= len(columns) {
		m.log.Info("create_table rejected: primary key index out of range", "table", normTable, "pk_idx", pkIdx)
		return TableSchema{}, false
	}

	schema := TableSchema{
		TableName:     normTable,
		Columns:       normCols,
		ColumnTypes:   types,
		PrimaryKeyIdx: pkIdx,
	}

	if _, err := m.records.Insert([]byte(schema.Serialize())); err != nil {
		m.log.Warn("failed to persist schema record", "table", normTable, "error", err)
		return TableSchema{}, false
	}
	m.cache[normTable] = schema
	return schema, true
}

// FindSchemaRecord scans the record store for the exact serialised schema
// record belonging to name, returning its record id. Used by the query
// executor's DROP TABLE, which must locate the concrete record to delete (the catalog cache
// alone doesn't know a record id).
func (m *Manager) FindSchemaRecord(name string) (recordstore.RecordID, bool) {
	schema, ok := m.cache[normalizeIdentifier(name)]
	if !ok {
		return 0, false
	}
	target := schema.Serialize()

	it := m.records.Scan()
	for {
		data, id, ok, err := it.Next()
		if err != nil || !ok {
			return 0, false
		}
		if string(data) == target {
			return id, true
		}
	}
}

// EvictCache removes name from the in-memory schema cache without
// touching the record store; callers are expected to have already
// deleted the underlying schema record.
func (m *Manager) EvictCache(name string) {
	delete(m.cache, normalizeIdentifier(name))
}

// GetSchema returns the cached schema for name, or false if unknown.
func (m *Manager) GetSchema(name string) (TableSchema, bool) {
	s, ok := m.cache[normalizeIdentifier(name)]
	return s, ok
}

// ListTables returns every table name currently in the catalog.
func (m *Manager) ListTables() []string {
	names := make([]string, 0, len(m.cache))
	for name := range m.cache {
		names = append(names, name)
	}
	return names
}

// ColumnExists reports whether column is part of table's schema.
func (m *Manager) ColumnExists(table, column string) bool {
	schema, ok := m.cache[normalizeIdentifier(table)]
	if !ok {
		return false
	}
	normCol := normalizeIdentifier(column)
	for _, c := range schema.Columns {
		if c == normCol {
			return true
		}
	}
	return false
}

// NormalizeIdentifier exposes the normalisation rule (trim + lowercase)
// to other packages (index manager, query executor) so every boundary
// applies it the same way.
func NormalizeIdentifier(s string) string {
	return normalizeIdentifier(s)
}
