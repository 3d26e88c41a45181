// Package query is the query executor: it parses a small SQL-like
// statement language, dispatches WHERE predicates to an index lookup or
// a full table scan, re-checks fetched rows for correctness, and
// projects the result.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Limbo-corps/LimboDB/internal/catalog"
	"github.com/Limbo-corps/LimboDB/internal/index"
	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/internal/query/lexer"
	"github.com/Limbo-corps/LimboDB/internal/recordstore"
	"github.com/Limbo-corps/LimboDB/internal/table"
)

// sentinelNextByte marks "strictly greater than val": val + this byte
// compares just above val itself, so it bounds range scans that must
// exclude (">", "!=") or include ("<=") val. Strings that extend val with
// a \x00 byte also fall below it.
const sentinelNextByte = "\x01"

// Result is what Execute returns for any statement: the projected column
// names (empty for non-SELECT statements), the matching rows, and a
// human-readable status message for the REPL to print.
type Result struct {
	Columns []string
	Rows    [][]string
	Message string
}

// Executor ties the catalog, index, and table managers together to run
// one statement at a time.
type Executor struct {
	catalog *catalog.Manager
	index   *index.Manager
	table   *table.Manager
	log     *logging.Logger
}

// New constructs an Executor over the given managers.
func New(cat *catalog.Manager, idx *index.Manager, tbl *table.Manager) *Executor {
	return &Executor{catalog: cat, index: idx, table: tbl, log: logging.GetLogger("query")}
}

// Execute parses and runs one statement (without its trailing
// semicolon) and returns its result or a descriptive error.
func (e *Executor) Execute(stmt string) (Result, error) {
	stmt = lexer.TrimStatement(stmt)
	upper := strings.ToUpper(stmt)

	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return e.execCreateTable(stmt)
	case strings.HasPrefix(upper, "DROP TABLE"):
		return e.execDropTable(stmt)
	case strings.HasPrefix(upper, "INSERT INTO"):
		return e.execInsert(stmt)
	case strings.HasPrefix(upper, "DELETE FROM"):
		return e.execDelete(stmt)
	case strings.HasPrefix(upper, "UPDATE"):
		return e.execUpdate(stmt)
	case strings.HasPrefix(upper, "SELECT"):
		return e.execSelect(stmt)
	case strings.HasPrefix(upper, "CREATE INDEX"):
		return e.execCreateIndex(stmt)
	default:
		return Result{}, fmt.Errorf("parse error: unrecognised statement %q", stmt)
	}
}

// execCreateTable parses:
// CREATE TABLE <t> (<col> <TYPE>, ..., PRIMARY KEY (<col>));
func (e *Executor) execCreateTable(stmt string) (Result, error) {
	open := strings.Index(stmt, "(")
	closeIdx := strings.LastIndex(stmt, ")")
	if open < 0 || closeIdx < open {
		return Result{}, fmt.Errorf("parse error: malformed CREATE TABLE")
	}
	header := strings.TrimSpace(stmt[len("CREATE TABLE"):open])
	if header == "" {
		return Result{}, fmt.Errorf("parse error: missing table name")
	}
	tableName := header

	body := stmt[open+1 : closeIdx]
	parts := splitTopLevel(body, ',')

	var columns []string
	var types []catalog.DataType
	pkColumn := ""

	for _, part := range parts {
		part = strings.TrimSpace(part)
		upperPart := strings.ToUpper(part)
		if strings.HasPrefix(upperPart, "PRIMARY KEY") {
			pOpen := strings.Index(part, "(")
			pClose := strings.Index(part, ")")
			if pOpen < 0 || pClose < pOpen {
				return Result{}, fmt.Errorf("parse error: malformed PRIMARY KEY clause")
			}
			pkColumn = catalog.NormalizeIdentifier(part[pOpen+1 : pClose])
			continue
		}
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return Result{}, fmt.Errorf("parse error: malformed column definition %q", part)
		}
		col := catalog.NormalizeIdentifier(fields[0])
		if err := checkIdentifier(col); err != nil {
			return Result{}, err
		}
		columns = append(columns, col)
		types = append(types, catalog.ParseType(fields[1]))
	}

	if err := checkIdentifier(catalog.NormalizeIdentifier(tableName)); err != nil {
		return Result{}, err
	}

	pkIdx := -1
	for i, c := range columns {
		if c == pkColumn {
			pkIdx = i
			break
		}
	}
	if pkIdx < 0 {
		return Result{}, fmt.Errorf("semantic error: primary key column %q not declared", pkColumn)
	}

	if !e.table.CreateTable(tableName, columns, types, pkIdx) {
		return Result{}, fmt.Errorf("duplicate: table %q already exists", catalog.NormalizeIdentifier(tableName))
	}
	return Result{Message: fmt.Sprintf("table %q created", catalog.NormalizeIdentifier(tableName))}, nil
}

func (e *Executor) execDropTable(stmt string) (Result, error) {
	name := strings.TrimSpace(stmt[len("DROP TABLE"):])
	if name == "" {
		return Result{}, fmt.Errorf("parse error: missing table name")
	}
	normName := catalog.NormalizeIdentifier(name)

	if _, ok := e.catalog.GetSchema(normName); !ok {
		return Result{}, fmt.Errorf("semantic error: table %q does not exist", normName)
	}

	recID, found := e.catalog.FindSchemaRecord(normName)
	if !found {
		return Result{}, fmt.Errorf("semantic error: could not locate schema record for %q", normName)
	}

	deleted := e.table.DeleteFrom(normName, -1)

	// The schema record itself isn't a data row of any table, so it is
	// deleted directly rather than through DeleteFrom.
	if err := e.table.DeleteSchemaRecord(recID); err != nil {
		return Result{}, fmt.Errorf("i/o error: %w", err)
	}
	e.catalog.EvictCache(normName)

	return Result{Message: fmt.Sprintf("table %q dropped (%d data rows removed)", normName, deleted)}, nil
}

// execInsert parses:
// INSERT INTO <t> [(<col>,...)] VALUES (<v>,...);
func (e *Executor) execInsert(stmt string) (Result, error) {
	rest := strings.TrimSpace(stmt[len("INSERT INTO"):])
	valuesIdx := indexOfKeyword(rest, "VALUES")
	if valuesIdx < 0 {
		return Result{}, fmt.Errorf("parse error: missing VALUES clause")
	}
	head := strings.TrimSpace(rest[:valuesIdx])
	tail := strings.TrimSpace(rest[valuesIdx+len("VALUES"):])

	vOpen := strings.Index(tail, "(")
	vClose := strings.LastIndex(tail, ")")
	if vOpen < 0 || vClose < vOpen {
		return Result{}, fmt.Errorf("parse error: malformed VALUES list")
	}
	rawValues := splitTopLevel(tail[vOpen+1:vClose], ',')
	values := make([]string, len(rawValues))
	for i, v := range rawValues {
		values[i] = strings.TrimSpace(v)
	}

	var tableName string
	var colList []string
	if open := strings.Index(head, "("); open >= 0 {
		closeIdx := strings.LastIndex(head, ")")
		if closeIdx < open {
			return Result{}, fmt.Errorf("parse error: malformed column list")
		}
		tableName = strings.TrimSpace(head[:open])
		for _, c := range splitTopLevel(head[open+1:closeIdx], ',') {
			colList = append(colList, catalog.NormalizeIdentifier(c))
		}
	} else {
		tableName = head
	}

	normTable := catalog.NormalizeIdentifier(tableName)
	schema, ok := e.catalog.GetSchema(normTable)
	if !ok {
		return Result{}, fmt.Errorf("semantic error: table %q does not exist", normTable)
	}

	if colList != nil {
		if len(schema.Columns) != len(values) || len(colList) != len(values) {
			return Result{}, fmt.Errorf("semantic error: column list must name every column of %q", normTable)
		}
		reordered := make([]string, len(schema.Columns))
		for i, col := range colList {
			pos := columnPosition(schema, col)
			if pos < 0 {
				return Result{}, fmt.Errorf("semantic error: unknown column %q", col)
			}
			reordered[pos] = values[i]
		}
		values = reordered
	} else if len(values) != len(schema.Columns) {
		return Result{}, fmt.Errorf("semantic error: expected %d values, got %d", len(schema.Columns), len(values))
	}

	id := e.table.InsertInto(normTable, values)
	if id < 0 {
		return Result{}, fmt.Errorf("i/o error: insert failed")
	}
	return Result{Message: fmt.Sprintf("1 row inserted (id=%d)", id)}, nil
}

// execDelete parses: DELETE FROM <t> WHERE record_id = <id>;
// (limitation preserved from the spec: only deletion by record id.)
func (e *Executor) execDelete(stmt string) (Result, error) {
	rest := strings.TrimSpace(stmt[len("DELETE FROM"):])
	whereIdx := indexOfKeyword(rest, "WHERE")
	if whereIdx < 0 {
		return Result{}, fmt.Errorf("parse error: DELETE requires a WHERE record_id = <id> clause")
	}
	tableName := strings.TrimSpace(rest[:whereIdx])
	normTable := catalog.NormalizeIdentifier(tableName)
	if _, ok := e.catalog.GetSchema(normTable); !ok {
		return Result{}, fmt.Errorf("semantic error: table %q does not exist", normTable)
	}

	clause := strings.TrimSpace(rest[whereIdx+len("WHERE"):])
	eqIdx := strings.Index(clause, "=")
	if eqIdx < 0 || !strings.EqualFold(strings.TrimSpace(clause[:eqIdx]), "record_id") {
		return Result{}, fmt.Errorf("parse error: DELETE only supports WHERE record_id = <id>")
	}
	idStr := strings.TrimSpace(clause[eqIdx+1:])
	n, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parse error: invalid record id %q", idStr)
	}

	deleted := e.table.DeleteFrom(normTable, recordstore.RecordID(n))
	if deleted == 0 {
		return Result{Message: "not found: no row with that record_id"}, nil
	}
	return Result{Message: fmt.Sprintf("%d row deleted", deleted)}, nil
}

// execUpdate parses: UPDATE <t> SET <col>=<val>[,...] WHERE <col>=<val>;
func (e *Executor) execUpdate(stmt string) (Result, error) {
	rest := strings.TrimSpace(stmt[len("UPDATE"):])
	setIdx := indexOfKeyword(rest, "SET")
	if setIdx < 0 {
		return Result{}, fmt.Errorf("parse error: UPDATE requires a SET clause")
	}
	tableName := strings.TrimSpace(rest[:setIdx])
	normTable := catalog.NormalizeIdentifier(tableName)
	schema, ok := e.catalog.GetSchema(normTable)
	if !ok {
		return Result{}, fmt.Errorf("semantic error: table %q does not exist", normTable)
	}

	afterSet := rest[setIdx+len("SET"):]
	whereIdx := indexOfKeyword(afterSet, "WHERE")
	if whereIdx < 0 {
		return Result{}, fmt.Errorf("parse error: UPDATE requires a WHERE clause")
	}
	setClause := strings.TrimSpace(afterSet[:whereIdx])
	whereClause := strings.TrimSpace(afterSet[whereIdx+len("WHERE"):])

	assignments := splitTopLevel(setClause, ',')
	updates := make(map[string]string)
	for _, a := range assignments {
		eq := strings.Index(a, "=")
		if eq < 0 {
			return Result{}, fmt.Errorf("parse error: malformed SET assignment %q", a)
		}
		col := catalog.NormalizeIdentifier(a[:eq])
		val := strings.TrimSpace(a[eq+1:])
		updates[col] = val
	}

	pred, err := parsePredicate(whereClause)
	if err != nil {
		return Result{}, err
	}

	rows, err := e.resolveRows(normTable, schema, pred)
	if err != nil {
		return Result{}, err
	}

	count := 0
	for _, row := range rows {
		newValues := append([]string(nil), row.Values...)
		for col, val := range updates {
			pos := columnPosition(schema, col)
			if pos < 0 {
				return Result{}, fmt.Errorf("semantic error: unknown column %q", col)
			}
			newValues[pos] = val
		}
		if _, ok := e.table.Update(normTable, row.ID, newValues); ok {
			count++
		}
	}
	return Result{Message: fmt.Sprintf("%d row(s) updated", count)}, nil
}

// execSelect parses: SELECT <*|cols> FROM <t> [WHERE <col> <op> <val>];
func (e *Executor) execSelect(stmt string) (Result, error) {
	rest := strings.TrimSpace(stmt[len("SELECT"):])
	fromIdx := indexOfKeyword(rest, "FROM")
	if fromIdx < 0 {
		return Result{}, fmt.Errorf("parse error: SELECT requires FROM")
	}
	projClause := strings.TrimSpace(rest[:fromIdx])
	afterFrom := strings.TrimSpace(rest[fromIdx+len("FROM"):])

	var tableName, whereClause string
	if whereIdx := indexOfKeyword(afterFrom, "WHERE"); whereIdx >= 0 {
		tableName = strings.TrimSpace(afterFrom[:whereIdx])
		whereClause = strings.TrimSpace(afterFrom[whereIdx+len("WHERE"):])
	} else {
		tableName = afterFrom
	}

	normTable := catalog.NormalizeIdentifier(tableName)
	schema, ok := e.catalog.GetSchema(normTable)
	if !ok {
		return Result{}, fmt.Errorf("semantic error: table %q does not exist", normTable)
	}

	var projCols []string
	if projClause == "*" {
		projCols = schema.Columns
	} else {
		for _, c := range splitTopLevel(projClause, ',') {
			col := catalog.NormalizeIdentifier(c)
			if columnPosition(schema, col) < 0 {
				return Result{}, fmt.Errorf("semantic error: unknown column %q", col)
			}
			projCols = append(projCols, col)
		}
	}

	var rows []table.Row
	if whereClause == "" {
		rows = e.table.Scan(normTable)
	} else {
		pred, err := parsePredicate(whereClause)
		if err != nil {
			return Result{}, err
		}
		rows, err = e.resolveRows(normTable, schema, pred)
		if err != nil {
			return Result{}, err
		}
	}

	projected := make([][]string, len(rows))
	for i, row := range rows {
		out := make([]string, len(projCols))
		for j, col := range projCols {
			pos := columnPosition(schema, col)
			out[j] = row.Values[pos]
		}
		projected[i] = out
	}

	return Result{Columns: projCols, Rows: projected, Message: fmt.Sprintf("%d row(s)", len(projected))}, nil
}

func (e *Executor) execCreateIndex(stmt string) (Result, error) {
	rest := strings.TrimSpace(stmt[len("CREATE INDEX"):])
	rest = strings.TrimPrefix(strings.TrimSpace(rest), "ON")
	rest = strings.TrimSpace(rest)

	open := strings.Index(rest, "(")
	closeIdx := strings.LastIndex(rest, ")")
	if open < 0 || closeIdx < open {
		return Result{}, fmt.Errorf("parse error: malformed CREATE INDEX")
	}
	tableName := strings.TrimSpace(rest[:open])
	column := catalog.NormalizeIdentifier(rest[open+1 : closeIdx])
	normTable := catalog.NormalizeIdentifier(tableName)

	if err := checkIdentifier(column); err != nil {
		return Result{}, err
	}

	if !e.catalog.ColumnExists(normTable, column) {
		return Result{}, fmt.Errorf("semantic error: column %q does not exist on table %q", column, normTable)
	}
	if !e.index.CreateIndex(normTable, column) {
		return Result{}, fmt.Errorf("duplicate: index on %q.%q already exists", normTable, column)
	}
	return Result{Message: fmt.Sprintf("index created on %s.%s", normTable, column)}, nil
}

// predicate is a parsed WHERE <col> <op> <val> clause.
type predicate struct {
	column string
	op     string
	value  string
}

// parsePredicate scans clause for multi-character operators (>=, <=, !=)
// before single-character ones (=, >, <), so ">=" is never misread as "=".
func parsePredicate(clause string) (predicate, error) {
	ops := []string{">=", "<=", "!=", "=", ">", "<"}
	for _, op := range ops {
		if idx := strings.Index(clause, op); idx >= 0 {
			col := catalog.NormalizeIdentifier(clause[:idx])
			val := strings.TrimSpace(clause[idx+len(op):])
			return predicate{column: col, op: op, value: val}, nil
		}
	}
	return predicate{}, fmt.Errorf("parse error: no recognised operator in WHERE clause %q", clause)
}

// resolveRows runs predicate dispatch for pred against table t: an index
// lookup when one exists for pred.column, a full scan otherwise, always
// followed by a correctness-rechecking filter against the row's actual
// current field value.
func (e *Executor) resolveRows(t string, schema catalog.TableSchema, pred predicate) ([]table.Row, error) {
	pos := columnPosition(schema, pred.column)
	if pos < 0 {
		return nil, fmt.Errorf("semantic error: unknown column %q", pred.column)
	}

	indexed := e.index.ColumnExists(t, pred.column)

	var candidateIDs []recordstore.RecordID
	useScan := !indexed
	if indexed {
		switch pred.op {
		case "=":
			candidateIDs = e.index.Search(t, pred.column, pred.value)
		case "!=":
			lower := e.index.RangeSearch(t, pred.column, index.MinKey, pred.value)
			upper := e.index.RangeSearch(t, pred.column, pred.value+sentinelNextByte, index.MaxKey)
			candidateIDs = unionIDs(lower, upper)
		case "<":
			candidateIDs = e.index.RangeSearch(t, pred.column, index.MinKey, pred.value)
		case "<=":
			candidateIDs = e.index.RangeSearch(t, pred.column, index.MinKey, pred.value+sentinelNextByte)
		case ">":
			candidateIDs = e.index.RangeSearch(t, pred.column, pred.value+sentinelNextByte, index.MaxKey)
		case ">=":
			candidateIDs = e.index.RangeSearch(t, pred.column, pred.value, index.MaxKey)
		default:
			return nil, fmt.Errorf("parse error: unsupported operator %q", pred.op)
		}
	}

	var rows []table.Row
	if useScan {
		rows = e.table.Scan(t)
	} else {
		for _, id := range candidateIDs {
			values, ok := e.table.Select(t, id)
			if !ok {
				continue
			}
			rows = append(rows, table.Row{ID: id, Values: values})
		}
	}

	matches := rows[:0]
	for _, row := range rows {
		if matchPredicate(row.Values[pos], pred) {
			matches = append(matches, row)
		}
	}
	return matches, nil
}

func matchPredicate(fieldVal string, pred predicate) bool {
	switch pred.op {
	case "=":
		return fieldVal == pred.value
	case "!=":
		return fieldVal != pred.value
	case "<":
		return fieldVal < pred.value
	case "<=":
		return fieldVal <= pred.value
	case ">":
		return fieldVal > pred.value
	case ">=":
		return fieldVal >= pred.value
	default:
		return false
	}
}

func unionIDs(a, b []recordstore.RecordID) []recordstore.RecordID {
	seen := make(map[recordstore.RecordID]struct{}, len(a)+len(b))
	out := make([]recordstore.RecordID, 0, len(a)+len(b))
	for _, ids := range [][]recordstore.RecordID{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// checkIdentifier rejects table/column names containing an underscore:
// the index manager persists indexes as "<table>_<column>.idx" and
// splits the stem back apart at the first underscore on reload, so an
// identifier containing one would make that split ambiguous. Rejecting
// it at creation time is simpler than teaching the index manager a
// richer encoding.
func checkIdentifier(name string) error {
	if strings.Contains(name, "_") {
		return fmt.Errorf("semantic error: identifier %q must not contain '_' (reserved for index filenames)", name)
	}
	return nil
}

func columnPosition(schema catalog.TableSchema, col string) int {
	for i, c := range schema.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// indexOfKeyword finds the first top-level occurrence of keyword as a
// whole word (case-insensitive), used to split a statement into clauses.
func indexOfKeyword(s, keyword string) int {
	upper := strings.ToUpper(s)
	kw := strings.ToUpper(keyword)
	searchFrom := 0
	for {
		idx := strings.Index(upper[searchFrom:], kw)
		if idx < 0 {
			return -1
		}
		absIdx := searchFrom + idx
		before := absIdx == 0 || isBoundary(rune(upper[absIdx-1]))
		afterPos := absIdx + len(kw)
		after := afterPos >= len(upper) || isBoundary(rune(upper[afterPos]))
		if before && after {
			return absIdx
		}
		searchFrom = absIdx + 1
	}
}

func isBoundary(r rune) bool {
	return r == ' ' || r == '\t' || r == '(' || r == ')'
}

// splitTopLevel splits s on sep, ignoring occurrences inside parentheses.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
			cur.WriteRune(r)
		case ')':
			depth--
			cur.WriteRune(r)
		case sep:
			if depth == 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			} else {
				cur.WriteRune(r)
			}
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}
