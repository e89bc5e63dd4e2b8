package store

import (
	"context"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
)

// Storage is the key-value store of one namespace. It is obtained from
// Adapter.Storage and stays valid until the adapter disconnects.
type Storage struct {
	name       string
	ttl        time.Duration
	collection docstore.Collection
	metrics    *opMetrics
}

// Name returns the namespace name
func (s *Storage) Name() string {
	return s.name
}

// TTL returns the record expiry of the namespace, zero when disabled
func (s *Storage) TTL() time.Duration {
	return s.ttl
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Storage) Count(ctx context.Context, cbs ...Callback[int64]) *Future[int64] {
	return run(ctx, s.count, cbs)
}

func (s *Storage) Get(ctx context.Context, key any, cbs ...Callback[any]) *Future[any] {
	return run(ctx, func(ctx context.Context) (any, error) {
		return s.get(ctx, key)
	}, cbs)
}

func (s *Storage) Set(ctx context.Context, key, value any, cbs ...Callback[Void]) *Future[Void] {
	return run(ctx, func(ctx context.Context) (Void, error) {
		return Void{}, s.set(ctx, key, value)
	}, cbs)
}

func (s *Storage) Remove(ctx context.Context, key any, cbs ...Callback[Void]) *Future[Void] {
	return run(ctx, func(ctx context.Context) (Void, error) {
		return Void{}, s.remove(ctx, key)
	}, cbs)
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

func (s *Storage) count(ctx context.Context) (n int64, err error) {
	defer s.observe("count", time.Now(), &err)

	n, err = s.collection.Count(ctx)
	if err != nil {
		return 0, wrapError(RetCStoreError, err, "count %q", s.name)
	}
	return n, nil
}

func (s *Storage) get(ctx context.Context, key any) (value any, err error) {
	defer s.observe("get", time.Now(), &err)

	rec, err := s.collection.FindOne(ctx, key)
	if err != nil {
		return nil, wrapError(RetCStoreError, err, "get %v from %q", key, s.name)
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Value, nil
}

// set looks the key up and then writes, the two steps are not atomic.
// Concurrent sets of a missing key can insert two records (the first one wins
// on reads) and concurrent overwrites are last-write-wins.
func (s *Storage) set(ctx context.Context, key, value any) (err error) {
	defer s.observe("set", time.Now(), &err)

	rec, err := s.collection.FindOne(ctx, key)
	if err != nil {
		return wrapError(RetCStoreError, err, "set %v in %q", key, s.name)
	}
	if rec == nil {
		rec = &docstore.Record{Key: key}
	}
	rec.Value = value

	if err := s.collection.Save(ctx, rec); err != nil {
		return wrapError(RetCStoreError, err, "set %v in %q", key, s.name)
	}
	return nil
}

func (s *Storage) remove(ctx context.Context, key any) (err error) {
	defer s.observe("remove", time.Now(), &err)

	if _, err := s.collection.FindOneAndDelete(ctx, key); err != nil {
		return wrapError(RetCStoreError, err, "remove %v from %q", key, s.name)
	}
	return nil
}

func (s *Storage) observe(op string, start time.Time, err *error) {
	s.metrics.observe(op, s.name, start, *err)
}
