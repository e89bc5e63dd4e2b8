package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
	dbtesting "github.com/ValentinKolb/docKV/lib/docstore/testing"
)

func factory(t testing.TB, clock func() time.Time) docstore.Connection {
	conn, err := NewDriver(&Options{Path: MemoryPath, Clock: clock}).Open(context.Background(), docstore.ConnectOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return conn
}

func Test(t *testing.T) {
	dbtesting.RunDocStoreTests(t, "SQLite", factory)
}

func Benchmark(b *testing.B) {
	dbtesting.RunDocStoreBenchmarks(b, "SQLite", factory)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	driver := NewDriver(nil)
	opts := docstore.ConnectOptions{Database: filepath.Join(dir, "persist")}

	conn, err := driver.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	col, err := conn.Define(context.Background(), "storage", docstore.Schema{Timestamps: docstore.DefaultTimestamps()}).Unwrap()
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := col.Save(context.Background(), &docstore.Record{Key: 1, Value: "Honoka Kosaka"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := conn.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := driver.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close(context.Background())

	col, err = reopened.Define(context.Background(), "storage", docstore.Schema{Timestamps: docstore.DefaultTimestamps()}).Unwrap()
	if err != nil {
		t.Fatalf("Define after reopen failed: %v", err)
	}
	rec, err := col.FindOne(context.Background(), 1)
	if err != nil || rec == nil {
		t.Fatalf("Expected record to survive reopen, got %v (%v)", rec, err)
	}
	if rec.Value != "Honoka Kosaka" {
		t.Errorf("Expected 'Honoka Kosaka', got %v", rec.Value)
	}
}

func TestNative(t *testing.T) {
	conn := factory(t, time.Now)
	defer conn.Close(context.Background())

	if _, ok := conn.Native().(*sql.DB); !ok {
		t.Errorf("Expected Native to return *sql.DB, got %T", conn.Native())
	}
	if conn.Engine() != docstore.ImplSQLite {
		t.Errorf("Expected engine %s, got %s", docstore.ImplSQLite, conn.Engine())
	}
}

func TestReservedName(t *testing.T) {
	conn := factory(t, time.Now)
	defer conn.Close(context.Background())

	res := conn.Define(context.Background(), "sqlite_master", docstore.Schema{})
	if res.Status != docstore.StatusFailed {
		t.Errorf("Expected Define(sqlite_master) to fail, got %s", res.Status)
	}
}

func TestQuotedName(t *testing.T) {
	conn := factory(t, time.Now)
	defer conn.Close(context.Background())

	col, err := conn.Define(context.Background(), `odd "name"; drop`, docstore.Schema{}).Unwrap()
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := col.Save(context.Background(), &docstore.Record{Key: "k", Value: "v"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if n, err := col.Count(context.Background()); err != nil || n != 1 {
		t.Errorf("Expected 1 record, got %d (%v)", n, err)
	}
}

func TestOpenWithoutPath(t *testing.T) {
	if _, err := NewDriver(nil).Open(context.Background(), docstore.ConnectOptions{}); err == nil {
		t.Errorf("Expected Open without path and database to fail")
	}
}
