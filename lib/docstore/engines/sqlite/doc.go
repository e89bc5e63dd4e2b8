// Package sqlite implements the docstore engine on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
//
// Every collection is one table with the columns id, key_id, key, value,
// created_at and updated_at. Keys and values are stored as codec-encoded blobs,
// key_id is indexed for lookups. Timestamps are unix nanoseconds taken from the
// configured clock.
//
// Expired documents are filtered at read time and purged before counting,
// there is no background monitor.
package sqlite
