// Package store provides a key-value interface over a document database.
// One Adapter holds one connection, shared by any number of named namespaces;
// each namespace is a collection whose schema (timestamps and an optional expiry
// index) is defined once, on its first lookup.
//
// The package focuses on:
//   - A unified interface (IStore) with count / get / set / remove on opaque keys and values
//   - Lazy, race-free namespace registration per adapter
//   - Dual completion: every operation returns a Future and accepts callbacks
//   - Unified error reporting through *Error and its return codes
//
// Key Components:
//
//   - Adapter: The connection manager and namespace registry. Connect opens the
//     connection through a docstore.Driver (MongoDB by default) unless one was
//     injected with WithConnection; injected connections are never closed.
//     Storage(ctx, name) returns the cached *Storage of a namespace or defines it.
//     A name that is already bound on the connection (e.g. by another adapter
//     sharing it) is reused instead of reported as an error.
//
//   - Storage: The key-value store of one namespace. Set is a read-then-write
//     upsert and not atomic: concurrent sets of the same key can lose a write.
//
//   - SingleStore: An adapter bound to one namespace taken from the configuration
//     (name / table / table_name, default "storage").
//
//   - Future / Callback: Each operation runs on its own goroutine. Await, Result or
//     Done wait for the outcome; every callback passed to the operation is invoked
//     exactly once with (err, result) after the future settled.
//
//   - Error System: *Error carries a RetCode (ConnectionError, DisconnectionError,
//     NotConnected, StoreError, InvalidArgument), a message and the driver cause.
//     errors.Is(err, store.ErrStore) and friends match by code.
//
//   - Metrics: operation counters, error counters and latency histograms per
//     namespace, kept in a VictoriaMetrics set and exported with WriteMetrics.
//
// Example usage:
//
//	adapter := store.New(store.Config{Database: "app", TTL: 3600})
//	if err := adapter.Connect(ctx).Err(); err != nil {
//		return err
//	}
//	defer adapter.Disconnect(ctx)
//
//	users, err := adapter.Storage(ctx, "users")
//	if err != nil {
//		return err
//	}
//	users.Set(ctx, 1, "Honoka Kosaka", func(err error, _ store.Void) {
//		// called once the write finished
//	})
//	value, err := users.Get(ctx, 1).Await(ctx)
package store
