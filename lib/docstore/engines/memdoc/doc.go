// Package memdoc implements a process-local document store behind the
// docstore.Driver interface. It is the default engine for tests and for
// local runs of the CLI, and mirrors the behavior of the MongoDB engine for
// everything the key-value adapter relies on.
//
// Key Components:
//
//   - connectionImpl: one isolated database per opened connection. Collections are
//     kept in a concurrent map, so Define is a LoadOrCompute and a second Define of
//     the same name returns AlreadyDefined. A garbage collector goroutine drops expired
//     documents in a fixed interval until Close is called.
//
//   - collectionImpl: documents indexed by id and by key identity (the codec-encoded key),
//     guarded by a mutex. Keys are compared by their encoded bytes, so 1 and "1" are
//     different keys.
//
//   - Expiry: collections with a TTL track every document in a util.MapHeap keyed by id
//     with the deadline updated_at+TTL as priority. Every operation first pops the
//     documents whose deadline has passed, so expiry is exact with respect to the
//     configured clock (FeatureLazyExpiry).
//
// The clock and the value codec are injectable through Options.
package memdoc
