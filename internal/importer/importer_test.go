package importer

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relatedb/s4"
)

// fakeRow backs the in-process fake driver below: one row of (path, tagKey,
// tagVal, src), with tagVal typed per-row so addValue's int/string branch
// gets exercised by the same fixture.
type fakeRow struct {
	path, tagKey, src string
	tagVal            interface{}
}

var fakeRows []fakeRow

type fakeDriver struct{}
type fakeConn struct{}
type fakeStmt struct{}
type fakeRowsCursor struct {
	rows []fakeRow
	pos  int
}

func (fakeDriver) Open(name string) (driver.Conn, error) { return fakeConn{}, nil }

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return fakeStmt{}, nil }
func (fakeConn) Close() error                              { return nil }
func (fakeConn) Begin() (driver.Tx, error)                 { return nil, fmt.Errorf("not supported") }

func (fakeStmt) Close() error  { return nil }
func (fakeStmt) NumInput() int { return -1 }
func (fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, fmt.Errorf("not supported")
}
func (fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return &fakeRowsCursor{rows: fakeRows}, nil
}

func (c *fakeRowsCursor) Columns() []string { return []string{"path", "tag_key", "tag_val", "src"} }
func (c *fakeRowsCursor) Close() error      { return nil }
func (c *fakeRowsCursor) Next(dest []driver.Value) error {
	if c.pos >= len(c.rows) {
		return io.EOF
	}
	r := c.rows[c.pos]
	c.pos++
	dest[0] = r.path
	dest[1] = r.tagKey
	dest[2] = r.tagVal
	dest[3] = r.src
	return nil
}

func init() {
	sql.Register("s4importertest", fakeDriver{})
}

func newTestHandle(t *testing.T) *s4.Handle {
	t.Helper()
	h, err := s4.Open("", nil, s4.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestImportFromSQLMixedIntAndStringValues(t *testing.T) {
	fakeRows = []fakeRow{
		{path: "track_path_1", tagKey: "rating", tagVal: int64(5), src: "local"},
		{path: "track_path_2", tagKey: "genre", tagVal: "jazz", src: "musicbrainz"},
	}
	t.Cleanup(func() { fakeRows = nil })

	h := newTestHandle(t)
	mapping := ColumnMapping{
		Query:   "SELECT path, tag_key, tag_val, src FROM media_tags",
		KeyACol: "path", ValACol: "path",
		KeyBCol: "tag_key", ValBCol: "tag_val",
		SrcCol: "src",
	}

	n, err := importFromOpenedDB(context.Background(), h, mustOpenFake(t), mapping)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// mustOpenFake opens the registered fake driver directly, bypassing
// ImportFromSQL's dsn-scheme dispatch so the test exercises the row-scanning
// and batching logic without depending on a real mysql:// or dolt:// scheme.
func mustOpenFake(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("s4importertest", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestColumnIndexMissingColumn(t *testing.T) {
	mapping := ColumnMapping{
		KeyACol: "path", ValACol: "path",
		KeyBCol: "tag_key", ValBCol: "tag_val",
		SrcCol: "does_not_exist",
	}
	_, err := columnIndex([]string{"path", "tag_key", "tag_val", "src"}, mapping)
	assert.ErrorContains(t, err, "does_not_exist")
}

func TestColumnIndexResolvesAllFields(t *testing.T) {
	mapping := ColumnMapping{
		KeyACol: "a_key", ValACol: "a_val",
		KeyBCol: "b_key", ValBCol: "b_val",
		SrcCol: "src",
	}
	idx, err := columnIndex([]string{"a_val", "b_val", "a_key", "src", "b_key"}, mapping)
	require.NoError(t, err)
	assert.Equal(t, columnIndices{keyA: 2, valA: 0, keyB: 4, valB: 1, src: 3}, idx)
}

func TestAsStringUnwrapsByteSlice(t *testing.T) {
	assert.Equal(t, "hello", asString([]byte("hello")))
	assert.Equal(t, "", asString(nil))
	assert.Equal(t, "42", asString(42))
}

func TestAsIntRecognizesDriverIntTypes(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int32
		ok   bool
	}{
		{int64(7), 7, true},
		{int32(7), 7, true},
		{int(7), 7, true},
		{[]byte("123"), 123, true},
		{[]byte("not a number"), 0, false},
		{"string", 0, false},
	}
	for _, c := range cases {
		got, ok := asInt(c.in)
		assert.Equal(t, c.ok, ok, "input %#v", c.in)
		if ok {
			assert.Equal(t, c.want, got, "input %#v", c.in)
		}
	}
}

func TestOpenDSNRejectsUnknownScheme(t *testing.T) {
	_, closeConn, err := openDSN("postgres://localhost/db")
	closeConn()
	assert.ErrorContains(t, err, "unrecognized dsn scheme")
}
