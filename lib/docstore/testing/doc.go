// Package testing provides standardised tests and benchmarks for
// engines that satisfy the docstore.Driver / docstore.Connection contract.
//
// The package contains:
//   - RunDocStoreTests: a conformance suite for define, save, find-one,
//     find-one-and-delete, count, timestamps and expiry
//   - RunDocStoreBenchmarks: throughput measurements for the same operations
//   - ManualClock: a time source for engines that accept an injected clock,
//     used by the expiry tests
//
// Tests that need a capability are skipped when the connection does not report
// the matching docstore.Feature (e.g. expiry tests need FeatureLazyExpiry, since
// a server-side TTL monitor runs on its own schedule).
//
// Example usage:
//
//	factory := func(t testing.TB, clock func() time.Time) docstore.Connection {
//		conn, err := mydriver.NewDriver(clock).Open(context.Background(), docstore.ConnectOptions{Database: "test"})
//		if err != nil {
//			t.Fatal(err)
//		}
//		return conn
//	}
//
//	dbtesting.RunDocStoreTests(t, "MyEngine", factory)
//	dbtesting.RunDocStoreBenchmarks(b, "MyEngine", factory)
package testing
