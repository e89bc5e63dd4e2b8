package memdoc

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/ValentinKolb/docKV/lib/docstore/codec"
	dbtesting "github.com/ValentinKolb/docKV/lib/docstore/testing"
)

func factory(t testing.TB, clock func() time.Time) docstore.Connection {
	conn, err := NewDriver(&Options{Clock: clock}).Open(context.Background(), docstore.ConnectOptions{Database: "test"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return conn
}

func Test(t *testing.T) {
	dbtesting.RunDocStoreTests(t, "MemDoc", factory)
}

func TestJSONCodec(t *testing.T) {
	dbtesting.RunDocStoreTests(t, "MemDoc(JSON)", func(t testing.TB, clock func() time.Time) docstore.Connection {
		conn, err := NewDriver(&Options{Clock: clock, Codec: codec.NewJSONCodec()}).Open(context.Background(), docstore.ConnectOptions{})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return conn
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunDocStoreBenchmarks(b, "MemDoc", factory)
}

func TestGarbageCollector(t *testing.T) {
	clock := dbtesting.NewManualClock(time.Unix(1_700_000_000, 0))
	conn, err := NewDriver(&Options{Clock: clock.Now, GCInterval: 5 * time.Millisecond}).Open(context.Background(), docstore.ConnectOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close(context.Background())

	res := conn.Define(context.Background(), "gc", docstore.Schema{Timestamps: docstore.DefaultTimestamps(), TTL: time.Second})
	col, err := res.Unwrap()
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := col.Save(context.Background(), &docstore.Record{Key: "k", Value: "v"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	clock.Advance(2 * time.Second)

	impl := col.(*collectionImpl)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		impl.mu.Lock()
		n := len(impl.docs)
		impl.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Expected the collector to reclaim the expired document")
}

func TestDistinctConnections(t *testing.T) {
	driver := NewDriver(nil)
	a, err := driver.Open(context.Background(), docstore.ConnectOptions{Database: "db"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer a.Close(context.Background())
	b, err := driver.Open(context.Background(), docstore.ConnectOptions{Database: "db"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close(context.Background())

	if a.ID() == b.ID() {
		t.Errorf("Expected distinct connection IDs, got %s twice", a.ID())
	}
	if a.Engine() != docstore.ImplMemory {
		t.Errorf("Expected engine %s, got %s", docstore.ImplMemory, a.Engine())
	}
	if a.Native() != a {
		t.Errorf("Expected Native to return the connection itself")
	}
}

func TestOpenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDriver(nil).Open(ctx, docstore.ConnectOptions{}); err == nil {
		t.Errorf("Expected Open with canceled context to fail")
	}
}
