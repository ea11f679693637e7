// Package importer is the thin SQL-to-Add bulk loader that proves
// spec.md §1's "add contract" is usable from an external import tool
// without the database itself growing a migration framework (SPEC_FULL.md
// §4.6). It opens a database/sql connection, runs one SELECT, and calls
// (*s4.Txn).Add once per row, committing every BatchSize rows so a
// mid-import crash loses at most one batch.
//
// Grounded on the teacher's internal/storage/dolt/store.go
// (openServerConnection's sql.Open("mysql", ...) for MySQL/Dolt-server
// DSNs) and embedded_uow.go (ParseDSN/NewConnector/sql.OpenDB for the
// embedded dolthub/driver connection) for driver selection; no counterpart
// in the teacher does the row-to-tuple mapping itself, since the teacher's
// importer works from parsed JSONL issues, not arbitrary SQL rows — that
// part is new code built directly against spec.md §4.2's Add contract.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	embedded "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"

	"github.com/relatedb/s4"
)

// ColumnMapping describes how to turn one SELECT row into an Add call.
// KeyACol, KeyBCol, and SrcCol name columns read as strings (spec.md §3:
// keys and sources are always string-valued). ValACol and ValBCol may
// resolve to either an int or a string per row — the driver's own Go type
// for that column decides which, not a static declaration, since a single
// mapping may import from heterogeneous source tables.
type ColumnMapping struct {
	Query     string
	KeyACol   string
	ValACol   string
	KeyBCol   string
	ValBCol   string
	SrcCol    string
	BatchSize int
}

// DefaultBatchSize is used when ColumnMapping.BatchSize is zero.
const DefaultBatchSize = 500

// ImportFromSQL opens dsn (scheme selects the driver: "mysql://" for
// go-sql-driver/mysql, "dolt://" for the embedded dolthub/driver), runs
// mapping.Query, and adds one tuple per row to h. It returns the number of
// rows successfully processed. This is deliberately thin: no schema
// translation, no type coercion beyond int/string, no retry beyond what
// database/sql gives for free.
func ImportFromSQL(ctx context.Context, h *s4.Handle, dsn string, mapping ColumnMapping) (int, error) {
	db, closeConn, err := openDSN(dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	defer closeConn()

	return importFromOpenedDB(ctx, h, db, mapping)
}

// importFromOpenedDB is ImportFromSQL's body against an already-open
// *sql.DB, split out so tests can drive it with an in-process fake driver
// instead of a real mysql:// or dolt:// connection.
func importFromOpenedDB(ctx context.Context, h *s4.Handle, db *sql.DB, mapping ColumnMapping) (int, error) {
	batchSize := mapping.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	rows, err := db.QueryContext(ctx, mapping.Query)
	if err != nil {
		return 0, fmt.Errorf("importer: query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("importer: reading columns: %w", err)
	}
	idx, err := columnIndex(cols, mapping)
	if err != nil {
		return 0, err
	}

	imported := 0
	txn := s4.Begin(h, 0)
	inBatch := 0

	for rows.Next() {
		dest := make([]interface{}, len(cols))
		scan := make([]interface{}, len(cols))
		for i := range dest {
			scan[i] = &dest[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return imported, fmt.Errorf("importer: scanning row %d: %w", imported, err)
		}

		keyA := asString(dest[idx.keyA])
		keyB := asString(dest[idx.keyB])
		src := asString(dest[idx.src])
		addValue(txn, keyA, dest[idx.valA], keyB, dest[idx.valB], src)

		imported++
		inBatch++
		if inBatch >= batchSize {
			if !txn.Commit() {
				return imported, fmt.Errorf("importer: commit failed at row %d", imported)
			}
			txn = s4.Begin(h, 0)
			inBatch = 0
		}
	}
	if err := rows.Err(); err != nil {
		return imported, fmt.Errorf("importer: iterating rows: %w", err)
	}

	if inBatch > 0 {
		if !txn.Commit() {
			return imported, fmt.Errorf("importer: final commit failed")
		}
	} else {
		txn.Abort()
	}

	return imported, nil
}

// addValue calls Add or AddInt depending on whichever of valA/valB
// resolves to an integer Go type; a mapping where one side is an int and
// the other a string still uses Add, since the facade's Add/AddInt pair
// only distinguishes "both sides int" from "both sides string" — a mixed
// row falls back to the string form with the int side formatted as text.
func addValue(txn *s4.Txn, keyA string, rawA interface{}, keyB string, rawB interface{}, src string) {
	iA, okA := asInt(rawA)
	iB, okB := asInt(rawB)
	if okA && okB {
		txn.AddInt(keyA, iA, keyB, iB, src)
		return
	}
	txn.Add(keyA, asString(rawA), keyB, asString(rawB), src)
}

type columnIndices struct {
	keyA, valA, keyB, valB, src int
}

func columnIndex(cols []string, mapping ColumnMapping) (columnIndices, error) {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	find := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("importer: query result has no column %q", name)
		}
		return i, nil
	}
	var idx columnIndices
	var err error
	if idx.keyA, err = find(mapping.KeyACol); err != nil {
		return idx, err
	}
	if idx.valA, err = find(mapping.ValACol); err != nil {
		return idx, err
	}
	if idx.keyB, err = find(mapping.KeyBCol); err != nil {
		return idx, err
	}
	if idx.valB, err = find(mapping.ValBCol); err != nil {
		return idx, err
	}
	if idx.src, err = find(mapping.SrcCol); err != nil {
		return idx, err
	}
	return idx, nil
}

// asString renders a scanned driver value as text, unwrapping the []byte
// most drivers hand back for text/varchar columns.
func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// asInt reports whether v is (or cleanly parses as) an integer, so a
// numeric SQL column can flow into AddInt instead of Add.
func asInt(v interface{}) (int32, bool) {
	switch t := v.(type) {
	case int64:
		return int32(t), true
	case int32:
		return t, true
	case int:
		return int32(t), true
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 32)
		return int32(n), err == nil
	default:
		return 0, false
	}
}

// openDSN selects the driver by dsn's scheme: "mysql://" strips the
// scheme and opens via go-sql-driver/mysql; "dolt://" opens an embedded
// dolthub/driver connector directly (no server process involved). The
// returned closer must be called alongside db.Close(): for the embedded
// driver, closing the *sql.DB alone leaves the connector's own engine
// locks on the repository held (embedded_uow.go's withEmbeddedDolt closes
// both for this reason).
func openDSN(dsn string) (*sql.DB, func(), error) {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		db, err := sql.Open("mysql", strings.TrimPrefix(dsn, "mysql://"))
		return db, func() {}, err
	case strings.HasPrefix(dsn, "dolt://"):
		rest := strings.TrimPrefix(dsn, "dolt://")
		cfg, err := embedded.ParseDSN(rest)
		if err != nil {
			return nil, func() {}, fmt.Errorf("importer: parsing dolt dsn: %w", err)
		}
		connector, err := embedded.NewConnector(cfg)
		if err != nil {
			return nil, func() {}, fmt.Errorf("importer: opening dolt connector: %w", err)
		}
		return sql.OpenDB(connector), func() { connector.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("importer: unrecognized dsn scheme in %q (expected mysql:// or dolt://)", dsn)
	}
}
