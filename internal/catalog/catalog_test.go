package catalog

import (
	"path/filepath"
	"testing"

	"github.com/Limbo-corps/LimboDB/internal/recordstore"
)

func openTestRecords(t *testing.T) *recordstore.RecordManager {
	t.Helper()
	dir := t.TempDir()
	disk, err := recordstore.OpenDiskManager(filepath.Join(dir, "pages.db"))
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	return recordstore.NewRecordManager(disk)
}

func TestSchemaSerializeRoundTrip(t *testing.T) {
	s := TableSchema{
		TableName:     "users",
		Columns:       []string{"id", "name"},
		ColumnTypes:   []DataType{Int, Varchar},
		PrimaryKeyIdx: 0,
	}

	serialized := s.Serialize()
	got, ok := DeserializeSchema(serialized)
	if !ok {
		t.Fatalf("DeserializeSchema(%q) failed", serialized)
	}
	if got.Serialize() != serialized {
		t.Errorf("round trip mismatch: %q != %q", got.Serialize(), serialized)
	}
}

func TestDeserializeSchemaRejectsNonSchema(t *testing.T) {
	if _, ok := DeserializeSchema("1|alice"); ok {
		t.Error("expected DeserializeSchema to reject a non-SCHEMA record")
	}
}

func TestCreateTable(t *testing.T) {
	m := New(openTestRecords(t))

	schema, ok := m.CreateTable("Users", []string{"ID", "Name"}, []DataType{Int, Varchar}, 0)
	if !ok {
		t.Fatal("CreateTable failed")
	}
	if schema.TableName != "users" {
		t.Errorf("TableName = %q, want normalised 'users'", schema.TableName)
	}

	if _, ok := m.CreateTable("users", []string{"id"}, []DataType{Int}, 0); ok {
		t.Error("CreateTable should reject a duplicate table name")
	}
}

func TestCreateTableValidation(t *testing.T) {
	m := New(openTestRecords(t))

	if _, ok := m.CreateTable("t", []string{"a", "b"}, []DataType{Int}, 0); ok {
		t.Error("CreateTable should reject mismatched column/type counts")
	}
	if _, ok := m.CreateTable("t", []string{"a"}, []DataType{Int}, 5); ok {
		t.Error("CreateTable should reject an out-of-range primary key index")
	}
}

func TestGetSchemaAndListTables(t *testing.T) {
	m := New(openTestRecords(t))
	m.CreateTable("users", []string{"id"}, []DataType{Int}, 0)
	m.CreateTable("orders", []string{"id"}, []DataType{Int}, 0)

	if _, ok := m.GetSchema("USERS"); !ok {
		t.Error("GetSchema should be case-insensitive")
	}

	tables := m.ListTables()
	if len(tables) != 2 {
		t.Errorf("ListTables = %v, want 2 entries", tables)
	}
}

func TestColumnExists(t *testing.T) {
	m := New(openTestRecords(t))
	m.CreateTable("users", []string{"id", "name"}, []DataType{Int, Varchar}, 0)

	if !m.ColumnExists("users", "name") {
		t.Error("ColumnExists(users, name) should be true")
	}
	if m.ColumnExists("users", "missing") {
		t.Error("ColumnExists(users, missing) should be false")
	}
	if m.ColumnExists("missing_table", "id") {
		t.Error("ColumnExists on unknown table should be false")
	}
}

func TestFindSchemaRecordAndEvictCache(t *testing.T) {
	records := openTestRecords(t)
	m := New(records)
	m.CreateTable("users", []string{"id"}, []DataType{Int}, 0)

	id, ok := m.FindSchemaRecord("users")
	if !ok {
		t.Fatal("FindSchemaRecord should locate the persisted schema record")
	}
	data, err := records.Select(id)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	schema, ok := DeserializeSchema(string(data))
	if !ok || schema.TableName != "users" {
		t.Errorf("located record does not deserialize to the users schema: %q", data)
	}

	m.EvictCache("users")
	if _, ok := m.GetSchema("users"); ok {
		t.Error("GetSchema should miss after EvictCache")
	}
}

func TestLoadCatalogFromExistingRecords(t *testing.T) {
	records := openTestRecords(t)
	first := New(records)
	first.CreateTable("users", []string{"id", "name"}, []DataType{Int, Varchar}, 0)

	second := New(records)
	if _, ok := second.GetSchema("users"); !ok {
		t.Error("a fresh Manager over the same records should reload the users schema")
	}
}
