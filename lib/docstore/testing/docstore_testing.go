package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/google/uuid"
)

// ConnectionFactory opens a fresh connection for one test. Engines that keep their own
// time may ignore clock, the expiry tests are skipped for them.
type ConnectionFactory func(t testing.TB, clock func() time.Time) docstore.Connection

// ManualClock is a time source that only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock starting at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current time of the clock
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// RunDocStoreTests runs a comprehensive test suite for a docstore engine.
func RunDocStoreTests(t *testing.T, name string, factory ConnectionFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Define", func(t *testing.T) {
			testDefine(t, factory)
		})

		t.Run("InvalidName", func(t *testing.T) {
			testInvalidName(t, factory)
		})

		t.Run("Save&FindOne", func(t *testing.T) {
			testSaveFindOne(t, factory)
		})

		t.Run("SaveInPlace", func(t *testing.T) {
			testSaveInPlace(t, factory)
		})

		t.Run("FindOneAndDelete", func(t *testing.T) {
			testFindOneAndDelete(t, factory)
		})

		t.Run("Count", func(t *testing.T) {
			testCount(t, factory)
		})

		t.Run("KeyTypes", func(t *testing.T) {
			testKeyTypes(t, factory)
		})

		t.Run("Isolation", func(t *testing.T) {
			testIsolation(t, factory)
		})

		t.Run("Timestamps", func(t *testing.T) {
			testTimestamps(t, factory)
		})

		t.Run("TimestampsDisabled", func(t *testing.T) {
			testTimestampsDisabled(t, factory)
		})

		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, factory)
		})

		t.Run("ExpiryRefreshedOnUpdate", func(t *testing.T) {
			testExpiryRefresh(t, factory)
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory)
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the connection supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, conn docstore.Connection, feature docstore.Feature) {
	if !conn.SupportsFeature(feature) {
		t.Skip()
	}
}

// uniqueName returns a collection name no other test uses, engines backed by
// a shared server keep collections between runs.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}

func closeConn(t testing.TB, conn docstore.Connection) {
	if err := conn.Close(context.Background()); err != nil && !errors.Is(err, docstore.ErrClosed) {
		t.Errorf("Close failed: %v", err)
	}
}

func mustDefine(t testing.TB, conn docstore.Connection, name string, schema docstore.Schema) docstore.Collection {
	t.Helper()
	col, err := conn.Define(context.Background(), name, schema).Unwrap()
	if err != nil {
		t.Fatalf("Define(%q) failed: %v", name, err)
	}
	return col
}

func mustSave(t testing.TB, col docstore.Collection, rec *docstore.Record) {
	t.Helper()
	if err := col.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save(%v) failed: %v", rec.Key, err)
	}
}

func mustCount(t testing.TB, col docstore.Collection) int64 {
	t.Helper()
	n, err := col.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

// sameValue compares decoded values by their printed form, codecs differ in
// the numeric types they decode into.
func sameValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func defaultSchema() docstore.Schema {
	return docstore.Schema{Timestamps: docstore.DefaultTimestamps()}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testDefine(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)

	name := uniqueName("define")
	first := conn.Define(context.Background(), name, defaultSchema())
	if first.Status != docstore.StatusDefined {
		t.Fatalf("Expected first Define to return %s, got %s (%v)", docstore.StatusDefined, first.Status, first.Err)
	}

	second := conn.Define(context.Background(), name, docstore.Schema{TTL: time.Hour})
	if second.Status != docstore.StatusAlreadyDefined {
		t.Fatalf("Expected second Define to return %s, got %s (%v)", docstore.StatusAlreadyDefined, second.Status, second.Err)
	}

	if second.Collection == nil || second.Collection.Name() != name {
		t.Errorf("Expected AlreadyDefined to carry collection %q", name)
	}

	// both handles address the same documents
	mustSave(t, first.Collection, &docstore.Record{Key: "k", Value: "v"})
	rec, err := second.Collection.FindOne(context.Background(), "k")
	if err != nil || rec == nil {
		t.Fatalf("Expected record through second handle, got %v (%v)", rec, err)
	}
}

func testInvalidName(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)

	for _, name := range []string{"", "bad$name", "system.users"} {
		res := conn.Define(context.Background(), name, defaultSchema())
		if res.Status != docstore.StatusFailed {
			t.Errorf("Expected Define(%q) to fail, got %s", name, res.Status)
			continue
		}
		if !errors.Is(res.Err, docstore.ErrInvalidName) {
			t.Errorf("Expected ErrInvalidName for %q, got %v", name, res.Err)
		}
	}
}

func testSaveFindOne(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)
	col := mustDefine(t, conn, uniqueName("savefind"), defaultSchema())

	rec, err := col.FindOne(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindOne on missing key failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("Expected nil record for missing key, got %+v", rec)
	}

	tests := []struct {
		key   any
		value any
	}{
		{"name", "Honoka Kosaka"},
		{"int", 42},
		{"bool", true},
		{"empty", ""},
	}

	for _, tt := range tests {
		rec := &docstore.Record{Key: tt.key, Value: tt.value}
		mustSave(t, col, rec)
		if rec.ID == "" {
			t.Errorf("Expected Save to assign an ID for key %v", tt.key)
		}
	}

	for _, tt := range tests {
		rec, err := col.FindOne(context.Background(), tt.key)
		if err != nil {
			t.Fatalf("FindOne(%v) failed: %v", tt.key, err)
		}
		if rec == nil {
			t.Fatalf("Expected record for key %v", tt.key)
		}
		if !sameValue(rec.Value, tt.value) {
			t.Errorf("Expected value %v for key %v, got %v", tt.value, tt.key, rec.Value)
		}
		if !sameValue(rec.Key, tt.key) {
			t.Errorf("Expected key %v, got %v", tt.key, rec.Key)
		}
	}
}

func testSaveInPlace(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)
	col := mustDefine(t, conn, uniqueName("inplace"), defaultSchema())

	rec := &docstore.Record{Key: "k", Value: "v1"}
	mustSave(t, col, rec)
	id := rec.ID

	found, err := col.FindOne(context.Background(), "k")
	if err != nil || found == nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if found.ID != id {
		t.Errorf("Expected ID %s, got %s", id, found.ID)
	}

	found.Value = "v2"
	mustSave(t, col, found)

	if found.ID != id {
		t.Errorf("Expected update to keep ID %s, got %s", id, found.ID)
	}
	if n := mustCount(t, col); n != 1 {
		t.Errorf("Expected 1 record after update, got %d", n)
	}

	again, err := col.FindOne(context.Background(), "k")
	if err != nil || again == nil {
		t.Fatalf("FindOne after update failed: %v", err)
	}
	if !sameValue(again.Value, "v2") {
		t.Errorf("Expected updated value v2, got %v", again.Value)
	}
}

func testFindOneAndDelete(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)
	col := mustDefine(t, conn, uniqueName("delete"), defaultSchema())

	mustSave(t, col, &docstore.Record{Key: "k", Value: "v"})

	rec, err := col.FindOneAndDelete(context.Background(), "k")
	if err != nil {
		t.Fatalf("FindOneAndDelete failed: %v", err)
	}
	if rec == nil || !sameValue(rec.Value, "v") {
		t.Fatalf("Expected deleted record with value v, got %+v", rec)
	}

	rec, err = col.FindOneAndDelete(context.Background(), "k")
	if err != nil {
		t.Fatalf("Second FindOneAndDelete failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nil on second delete, got %+v", rec)
	}

	if found, _ := col.FindOne(context.Background(), "k"); found != nil {
		t.Errorf("Expected key to be gone, got %+v", found)
	}
	if n := mustCount(t, col); n != 0 {
		t.Errorf("Expected empty collection, got %d", n)
	}
}

func testCount(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)
	col := mustDefine(t, conn, uniqueName("count"), defaultSchema())

	if n := mustCount(t, col); n != 0 {
		t.Fatalf("Expected empty collection, got %d", n)
	}

	for i := 1; i <= 9; i++ {
		mustSave(t, col, &docstore.Record{Key: i, Value: fmt.Sprintf("value-%d", i)})
	}
	if n := mustCount(t, col); n != 9 {
		t.Errorf("Expected 9 records, got %d", n)
	}

	if _, err := col.FindOneAndDelete(context.Background(), 5); err != nil {
		t.Fatalf("FindOneAndDelete failed: %v", err)
	}
	if n := mustCount(t, col); n != 8 {
		t.Errorf("Expected 8 records, got %d", n)
	}
}

func testKeyTypes(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)
	col := mustDefine(t, conn, uniqueName("keytypes"), defaultSchema())

	mustSave(t, col, &docstore.Record{Key: 1, Value: "number"})
	mustSave(t, col, &docstore.Record{Key: "1", Value: "string"})

	num, err := col.FindOne(context.Background(), 1)
	if err != nil || num == nil {
		t.Fatalf("FindOne(1) failed: %v", err)
	}
	str, err := col.FindOne(context.Background(), "1")
	if err != nil || str == nil {
		t.Fatalf("FindOne(\"1\") failed: %v", err)
	}

	if !sameValue(num.Value, "number") {
		t.Errorf("Expected numeric key to hold 'number', got %v", num.Value)
	}
	if !sameValue(str.Value, "string") {
		t.Errorf("Expected string key to hold 'string', got %v", str.Value)
	}

	// numbers compare by value regardless of their Go type
	for _, key := range []any{int32(1), int64(1), 1.0} {
		rec, err := col.FindOne(context.Background(), key)
		if err != nil || rec == nil || !sameValue(rec.Value, "number") {
			t.Errorf("Expected FindOne(%T(%v)) to find the numeric key, got %+v (%v)", key, key, rec, err)
		}
	}
}

func testIsolation(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)
	a := mustDefine(t, conn, uniqueName("iso_a"), defaultSchema())
	b := mustDefine(t, conn, uniqueName("iso_b"), defaultSchema())

	mustSave(t, a, &docstore.Record{Key: "shared", Value: "from-a"})

	if rec, _ := b.FindOne(context.Background(), "shared"); rec != nil {
		t.Errorf("Expected collection b not to see a's record, got %+v", rec)
	}
	if n := mustCount(t, b); n != 0 {
		t.Errorf("Expected collection b to be empty, got %d", n)
	}
}

func testTimestamps(t *testing.T, factory ConnectionFactory) {
	clock := NewManualClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	conn := factory(t, clock.Now)
	defer closeConn(t, conn)
	requireFeature(t, conn, docstore.FeatureTimestamps)

	col := mustDefine(t, conn, uniqueName("timestamps"), defaultSchema())

	mustSave(t, col, &docstore.Record{Key: "k", Value: "v1"})
	first, err := col.FindOne(context.Background(), "k")
	if err != nil || first == nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatalf("Expected both timestamps to be set, got %+v", first)
	}
	if first.UpdatedAt.Before(first.CreatedAt) {
		t.Errorf("Expected updated_at >= created_at, got %s < %s", first.UpdatedAt, first.CreatedAt)
	}

	clock.Advance(time.Second)
	time.Sleep(5 * time.Millisecond)

	first.Value = "v2"
	mustSave(t, col, first)

	second, err := col.FindOne(context.Background(), "k")
	if err != nil || second == nil {
		t.Fatalf("FindOne after update failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Expected created_at to stay %s, got %s", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("Expected updated_at to move past %s, got %s", first.UpdatedAt, second.UpdatedAt)
	}
}

func testTimestampsDisabled(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)

	col := mustDefine(t, conn, uniqueName("notimestamps"), docstore.Schema{})

	mustSave(t, col, &docstore.Record{Key: "k", Value: "v"})
	rec, err := col.FindOne(context.Background(), "k")
	if err != nil || rec == nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if !rec.CreatedAt.IsZero() || !rec.UpdatedAt.IsZero() {
		t.Errorf("Expected zero timestamps, got created=%s updated=%s", rec.CreatedAt, rec.UpdatedAt)
	}
}

func testExpiry(t *testing.T, factory ConnectionFactory) {
	clock := NewManualClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	conn := factory(t, clock.Now)
	defer closeConn(t, conn)
	requireFeature(t, conn, docstore.FeatureTTL|docstore.FeatureLazyExpiry)

	ttl := time.Minute
	col := mustDefine(t, conn, uniqueName("expiry"), docstore.Schema{Timestamps: docstore.DefaultTimestamps(), TTL: ttl})
	keep := mustDefine(t, conn, uniqueName("noexpiry"), defaultSchema())

	mustSave(t, col, &docstore.Record{Key: "k", Value: "v"})
	mustSave(t, keep, &docstore.Record{Key: "k", Value: "v"})

	clock.Advance(ttl - time.Second)
	if rec, _ := col.FindOne(context.Background(), "k"); rec == nil {
		t.Fatalf("Expected record to be alive before its TTL passed")
	}

	clock.Advance(2 * time.Second)
	rec, err := col.FindOne(context.Background(), "k")
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected record to be expired, got %+v", rec)
	}
	if n := mustCount(t, col); n != 0 {
		t.Errorf("Expected expired record to be excluded from count, got %d", n)
	}

	if rec, _ := keep.FindOne(context.Background(), "k"); rec == nil {
		t.Errorf("Expected record without TTL to survive")
	}
}

func testExpiryRefresh(t *testing.T, factory ConnectionFactory) {
	clock := NewManualClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	conn := factory(t, clock.Now)
	defer closeConn(t, conn)
	requireFeature(t, conn, docstore.FeatureTTL|docstore.FeatureLazyExpiry)

	ttl := time.Minute
	col := mustDefine(t, conn, uniqueName("refresh"), docstore.Schema{Timestamps: docstore.DefaultTimestamps(), TTL: ttl})

	mustSave(t, col, &docstore.Record{Key: "k", Value: "v1"})

	clock.Advance(40 * time.Second)
	rec, err := col.FindOne(context.Background(), "k")
	if err != nil || rec == nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	rec.Value = "v2"
	mustSave(t, col, rec)

	// 80s after insert but only 40s after the update
	clock.Advance(40 * time.Second)
	rec, err = col.FindOne(context.Background(), "k")
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if rec == nil {
		t.Fatalf("Expected update to refresh the expiry")
	}
	if !sameValue(rec.Value, "v2") {
		t.Errorf("Expected v2, got %v", rec.Value)
	}

	clock.Advance(ttl)
	if rec, _ := col.FindOne(context.Background(), "k"); rec != nil {
		t.Errorf("Expected record to expire after inactivity, got %+v", rec)
	}
}

func testClosed(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	col := mustDefine(t, conn, uniqueName("closed"), defaultSchema())

	if conn.Closed() {
		t.Fatalf("Expected an open connection to report Closed() == false")
	}
	if err := conn.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !conn.Closed() {
		t.Errorf("Expected Closed() == true after Close")
	}

	if _, err := col.FindOne(context.Background(), "k"); err == nil {
		t.Errorf("Expected FindOne on closed connection to fail")
	}
	if err := col.Save(context.Background(), &docstore.Record{Key: "k", Value: "v"}); err == nil {
		t.Errorf("Expected Save on closed connection to fail")
	}
	if _, err := col.Count(context.Background()); err == nil {
		t.Errorf("Expected Count on closed connection to fail")
	}
	if res := conn.Define(context.Background(), uniqueName("late"), defaultSchema()); res.Status != docstore.StatusFailed {
		t.Errorf("Expected Define on closed connection to fail, got %s", res.Status)
	}
	if err := conn.Close(context.Background()); err == nil {
		t.Errorf("Expected second Close to fail")
	}
}

func testConcurrent(t *testing.T, factory ConnectionFactory) {
	conn := factory(t, time.Now)
	defer closeConn(t, conn)
	col := mustDefine(t, conn, uniqueName("concurrent"), defaultSchema())

	numWorkers := 8
	perWorker := 50
	var failures atomic.Int64
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := col.Save(context.Background(), &docstore.Record{Key: key, Value: i}); err != nil {
					failures.Add(1)
					continue
				}
				if rec, err := col.FindOne(context.Background(), key); err != nil || rec == nil {
					failures.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	if f := failures.Load(); f != 0 {
		t.Fatalf("Expected no failures, got %d", f)
	}
	if n := mustCount(t, col); n != int64(numWorkers*perWorker) {
		t.Errorf("Expected %d records, got %d", numWorkers*perWorker, n)
	}
}
