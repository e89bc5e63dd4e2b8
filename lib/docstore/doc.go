// Package docstore defines the contract between the key-value adapter in lib/store
// and the document databases it runs on.
//
// The package focuses on:
//   - A small collaborator surface (Driver, Connection, Collection) covering exactly
//     what a flat key→value mapping needs: open/close, define a collection with a
//     schema, find-one, save, find-one-and-delete and count
//   - A typed DefineResult (Defined / AlreadyDefined / Failed) so callers never need
//     to inspect driver error types to learn that a name is already bound
//   - Feature flags so shared tests and callers can adapt to engine capabilities
//
// Key Components:
//
//   - Driver: opens a Connection from resolved ConnectOptions. One driver exists per
//     engine (mongo, memdoc, sqlite).
//
//   - Connection: the single shared handle. Define binds a collection name to a Schema
//     at most once per connection; later calls return AlreadyDefined with the first
//     collection.
//
//   - Collection: key/value documents with automatic created-at / updated-at tracking
//     and an optional TTL index on the updated-at field.
//
// Implementations:
//
//   - mongo (lib/docstore/engines/mongo): MongoDB through the official v2 driver.
//   - memdoc (lib/docstore/engines/memdoc): process-local, used for tests and local runs.
//   - sqlite (lib/docstore/engines/sqlite): embedded, pure-Go SQLite.
//
// Every engine is checked by the conformance suite in lib/docstore/testing.
package docstore
