package store

import (
	"context"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for interacting with a key-value store.
// Every operation runs asynchronously and returns a *Future. Each callback passed
// to an operation is invoked exactly once after the future settled, so both
// completion styles can be mixed freely.
//
// Keys and values are opaque: any value the underlying document store can
// persist is accepted.
type IStore interface {
	// Count returns the number of records in the store.
	Count(ctx context.Context, cbs ...Callback[int64]) *Future[int64]
	// Get returns the value stored for key, or nil if there is none. A miss is not an error.
	Get(ctx context.Context, key any, cbs ...Callback[any]) *Future[any]
	// Set stores value under key, overwriting the value of an existing record in place.
	Set(ctx context.Context, key, value any, cbs ...Callback[Void]) *Future[Void]
	// Remove deletes the record of key. Removing a missing key succeeds.
	Remove(ctx context.Context, key any, cbs ...Callback[Void]) *Future[Void]
}

var (
	_ IStore = (*Storage)(nil)
	_ IStore = (*SingleStore)(nil)
)
