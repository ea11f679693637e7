//go:build s4_import_integration

// Integration test against a throwaway Dolt server, gated behind a build
// tag the way the teacher gates its own container-backed tests behind
// build tags / short-mode skips rather than running them by default.
package importer

import (
	"context"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/relatedb/s4"
)

func TestImportFromSQLAgainstDoltServer(t *testing.T) {
	if os.Getenv("S4_IMPORT_INTEGRATION") != "1" {
		t.Skip("set S4_IMPORT_INTEGRATION=1 to run against a containerized Dolt server")
	}
	ctx := context.Background()

	container, err := dolt.Run(ctx, "dolthub/dolt-sql-server:latest",
		dolt.WithDatabase("mediadb"),
		dolt.WithScripts("testdata/seed.sql"))
	if err != nil {
		t.Fatalf("starting dolt container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminating dolt container: %v", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	h, err := s4.Open(t.TempDir()+"/import.s4", nil, s4.New)
	if err != nil {
		t.Fatalf("s4.Open: %v", err)
	}
	defer h.Close()

	mapping := ColumnMapping{
		Query:   "SELECT path, tag_key, tag_val, src FROM media_tags",
		KeyACol: "path", ValACol: "path",
		KeyBCol: "tag_key", ValBCol: "tag_val",
		SrcCol: "src",
	}

	n, err := ImportFromSQL(ctx, h, "mysql://"+dsn, mapping)
	if err != nil {
		t.Fatalf("ImportFromSQL: %v", err)
	}
	if n == 0 {
		t.Error("expected at least one row imported from the seed script")
	}
}
