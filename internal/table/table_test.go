package table

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Limbo-corps/LimboDB/internal/catalog"
	"github.com/Limbo-corps/LimboDB/internal/index"
	"github.com/Limbo-corps/LimboDB/internal/recordstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	disk, err := recordstore.OpenDiskManager(filepath.Join(dir, "pages.db"))
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	records := recordstore.NewRecordManager(disk)
	cat := catalog.New(records)
	idx := index.New(dir)
	return New(cat, idx, records)
}

func TestCreateTableAutoIndexesPrimaryKey(t *testing.T) {
	m := newTestManager(t)

	if !m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0) {
		t.Fatal("CreateTable failed")
	}
	if !m.index.ColumnExists("users", "id") {
		t.Error("CreateTable should auto-index the primary key column")
	}
	if m.index.ColumnExists("users", "name") {
		t.Error("CreateTable should not index non-primary-key columns")
	}
}

func TestInsertAndSelect(t *testing.T) {
	m := newTestManager(t)
	m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0)

	id := m.InsertInto("users", []string{"1", "alice"})
	if id < 0 {
		t.Fatal("InsertInto failed")
	}

	values, ok := m.Select("users", id)
	if !ok {
		t.Fatal("Select failed")
	}
	if values[0] != "1" || values[1] != "alice" {
		t.Errorf("Select = %v, want [1 alice]", values)
	}
}

func TestInsertMaintainsIndex(t *testing.T) {
	m := newTestManager(t)
	m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0)

	id := m.InsertInto("users", []string{"1", "alice"})

	got := m.index.Search("users", "id", "1")
	if len(got) != 1 || got[0] != id {
		t.Errorf("index.Search(users, id, 1) = %v, want [%v]", got, id)
	}
}

func TestDeleteFromByID(t *testing.T) {
	m := newTestManager(t)
	m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0)
	id := m.InsertInto("users", []string{"1", "alice"})

	deleted := m.DeleteFrom("users", id)
	if deleted != 1 {
		t.Fatalf("DeleteFrom = %d, want 1", deleted)
	}
	if _, ok := m.Select("users", id); ok {
		t.Error("Select should fail after delete")
	}
	if got := m.index.Search("users", "id", "1"); len(got) != 0 {
		t.Errorf("index entry should be removed after delete, got %v", got)
	}
}

// TestDeleteFromAllPinsOpenQuestion asserts the chosen semantics for
// delete_from(table, -1): every data record with the table's column count
// is removed, and rows of a table with a different column count are kept.
func TestDeleteFromAllPinsOpenQuestion(t *testing.T) {
	m := newTestManager(t)
	m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0)
	m.CreateTable("orders", []string{"id"}, []catalog.DataType{catalog.Int}, 0)

	m.InsertInto("users", []string{"1", "alice"})
	m.InsertInto("users", []string{"2", "bob"})
	orderID := m.InsertInto("orders", []string{"99"})

	deleted := m.DeleteFrom("users", -1)
	if deleted != 2 {
		t.Fatalf("DeleteFrom(users, -1) = %d, want 2", deleted)
	}

	rows := m.Scan("users")
	if len(rows) != 0 {
		t.Errorf("Scan(users) after delete-all = %v, want empty", rows)
	}

	if _, ok := m.Select("orders", orderID); !ok {
		t.Error("delete_from(-1) on users should not touch orders' rows")
	}
}

func TestUpdateReindexes(t *testing.T) {
	m := newTestManager(t)
	m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0)
	id := m.InsertInto("users", []string{"1", "alice"})

	newID, ok := m.Update("users", id, []string{"2", "alice"})
	if !ok {
		t.Fatal("Update failed")
	}

	if got := m.index.Search("users", "id", "1"); len(got) != 0 {
		t.Errorf("old index entry '1' should be gone, got %v", got)
	}
	got := m.index.Search("users", "id", "2")
	if len(got) != 1 || got[0] != newID {
		t.Errorf("new index entry '2' = %v, want [%v]", got, newID)
	}
}

func TestUpdateReindexesUnderRelocatedID(t *testing.T) {
	m := newTestManager(t)
	m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0)
	idA := m.InsertInto("users", []string{"1", "a"})
	idB := m.InsertInto("users", []string{"2", "b"})

	if deleted := m.DeleteFrom("users", idA); deleted != 1 {
		t.Fatalf("DeleteFrom(users, idA) = %d, want 1", deleted)
	}

	longValue := strings.Repeat("x", 256)
	newID, ok := m.Update("users", idB, []string{"2", longValue})
	if !ok {
		t.Fatal("Update failed")
	}

	got := m.index.Search("users", "id", "2")
	if len(got) != 1 || got[0] != newID {
		t.Errorf("index entry '2' = %v, want [%v] (the relocated id), not the stale parameter id", got, newID)
	}

	values, ok := m.Select("users", newID)
	if !ok || values[1] != longValue {
		t.Errorf("Select(newID) = %v, %v; want row with grown name reachable at the relocated id", values, ok)
	}
}

func TestScanFiltersSchemaRecords(t *testing.T) {
	m := newTestManager(t)
	m.CreateTable("users", []string{"id", "name"}, []catalog.DataType{catalog.Int, catalog.Varchar}, 0)
	m.InsertInto("users", []string{"1", "alice"})
	m.InsertInto("users", []string{"2", "bob"})

	rows := m.Scan("users")
	if len(rows) != 2 {
		t.Fatalf("Scan(users) = %v, want 2 data rows (no schema record)", rows)
	}
}
