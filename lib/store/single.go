package store

import (
	"context"

	"github.com/ValentinKolb/docKV/lib/docstore"
)

// SingleStore is an adapter bound to a single namespace, named by the
// Name / Table / TableName configuration (default "storage"). The namespace is
// defined on the first key-value operation after Connect.
type SingleStore struct {
	adapter *Adapter
	name    string
	opts    []NamespaceOption
}

// NewSingle creates a single-namespace store for cfg
func NewSingle(cfg Config, opts ...Option) *SingleStore {
	return &SingleStore{
		adapter: New(cfg, opts...),
		name:    cfg.ResolvedTableName(),
	}
}

// WithNamespaceOptions sets the options applied when the namespace is defined
func (s *SingleStore) WithNamespaceOptions(opts ...NamespaceOption) *SingleStore {
	s.opts = opts
	return s
}

// Name returns the namespace name
func (s *SingleStore) Name() string {
	return s.name
}

// Adapter returns the underlying adapter
func (s *SingleStore) Adapter() *Adapter {
	return s.adapter
}

func (s *SingleStore) Connect(ctx context.Context, cbs ...Callback[Void]) *Future[Void] {
	return s.adapter.Connect(ctx, cbs...)
}

func (s *SingleStore) Disconnect(ctx context.Context, cbs ...Callback[Void]) *Future[Void] {
	return s.adapter.Disconnect(ctx, cbs...)
}

func (s *SingleStore) GetConnection() docstore.Connection {
	return s.adapter.GetConnection()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *SingleStore) Count(ctx context.Context, cbs ...Callback[int64]) *Future[int64] {
	return run(ctx, func(ctx context.Context) (int64, error) {
		st, err := s.storage(ctx)
		if err != nil {
			return 0, err
		}
		return st.count(ctx)
	}, cbs)
}

func (s *SingleStore) Get(ctx context.Context, key any, cbs ...Callback[any]) *Future[any] {
	return run(ctx, func(ctx context.Context) (any, error) {
		st, err := s.storage(ctx)
		if err != nil {
			return nil, err
		}
		return st.get(ctx, key)
	}, cbs)
}

func (s *SingleStore) Set(ctx context.Context, key, value any, cbs ...Callback[Void]) *Future[Void] {
	return run(ctx, func(ctx context.Context) (Void, error) {
		st, err := s.storage(ctx)
		if err != nil {
			return Void{}, err
		}
		return Void{}, st.set(ctx, key, value)
	}, cbs)
}

func (s *SingleStore) Remove(ctx context.Context, key any, cbs ...Callback[Void]) *Future[Void] {
	return run(ctx, func(ctx context.Context) (Void, error) {
		st, err := s.storage(ctx)
		if err != nil {
			return Void{}, err
		}
		return Void{}, st.remove(ctx, key)
	}, cbs)
}

func (s *SingleStore) storage(ctx context.Context) (*Storage, error) {
	return s.adapter.Storage(ctx, s.name, s.opts...)
}
