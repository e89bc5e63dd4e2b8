package store

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/ValentinKolb/docKV/lib/docstore/engines/mongo"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Option configures an Adapter
type Option func(*Adapter)

// WithDriver sets the driver used by Connect (default: MongoDB)
func WithDriver(driver docstore.Driver) Option {
	return func(a *Adapter) {
		a.driver = driver
	}
}

// WithConnection injects an already open connection. The adapter uses it as is
// and never closes it, Connect and Disconnect are no-ops for it.
func WithConnection(conn docstore.Connection) Option {
	return func(a *Adapter) {
		if conn != nil {
			a.conn = conn
			a.borrowed = true
		}
	}
}

// WithMetricsSet records operation metrics in set instead of a private set.
// Every metric carries the label adapter=name, adapters sharing a set must use
// distinct names or their namespace gauges collide.
func WithMetricsSet(set *metrics.Set, name string) Option {
	return func(a *Adapter) {
		a.metrics = newOpMetrics(set, name)
	}
}

// --------------------------------------------------------------------------
// Adapter
// --------------------------------------------------------------------------

// Adapter manages one connection to a document store and the namespaces defined on it.
//
// Thread-safety: all methods are safe for concurrent use.
type Adapter struct {
	cfg    Config
	driver docstore.Driver

	mu       sync.Mutex // guards conn and borrowed
	conn     docstore.Connection
	borrowed bool

	namespaces *xsync.MapOf[string, *Storage]
	metrics    *opMetrics
}

// New creates an adapter for cfg. No connection is opened until Connect is called
// (unless one is injected with WithConnection).
func New(cfg Config, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:        cfg,
		namespaces: xsync.NewMapOf[string, *Storage](),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.driver == nil {
		a.driver = mongo.NewDriver(nil)
	}
	if a.metrics == nil {
		a.metrics = newOpMetrics(nil, "")
	}
	a.metrics.gauge("dockv_namespaces", func() float64 {
		return float64(a.namespaces.Size())
	})
	return a
}

// Config returns the configuration the adapter was created with
func (a *Adapter) Config() Config {
	return a.cfg
}

// Driver returns the driver used to open connections
func (a *Adapter) Driver() docstore.Driver {
	return a.driver
}

// GetConnection returns the current connection or nil if there is none
func (a *Adapter) GetConnection() docstore.Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// Connected reports whether the adapter holds a connection
func (a *Adapter) Connected() bool {
	return a.GetConnection() != nil
}

// WriteMetrics writes the operation metrics of the adapter in Prometheus text format
func (a *Adapter) WriteMetrics(w io.Writer) {
	a.metrics.write(w)
}

// --------------------------------------------------------------------------
// Connection Management
// --------------------------------------------------------------------------

// Connect opens the connection. It is a no-op if the adapter already holds an open one,
// an owned connection that was closed underneath is replaced.
// Failures are reported as ErrConnection and are not retried.
func (a *Adapter) Connect(ctx context.Context, cbs ...Callback[Void]) *Future[Void] {
	return run(ctx, func(ctx context.Context) (Void, error) {
		start := time.Now()
		err := a.connect(ctx)
		a.metrics.observe("connect", "", start, err)
		return Void{}, err
	}, cbs)
}

func (a *Adapter) connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		if a.borrowed || !a.conn.Closed() {
			return nil
		}
		Logger.Warningf("connection %s was closed, opening a new one", a.conn.ID())
		a.dropConnLocked()
	}

	opts := a.cfg.ConnectOptions()
	if opts.Database == "" {
		return NewError(RetCConnectionError, "no database configured (set database or keyspace)")
	}

	conn, err := a.driver.Open(ctx, opts)
	if err != nil {
		Logger.Errorf("connecting to %s database %q failed: %v", a.driver.Implementation(), opts.Database, err)
		return wrapError(RetCConnectionError, err, "connect to %s database %q", a.driver.Implementation(), opts.Database)
	}

	a.conn = conn
	a.borrowed = false
	Logger.Infof("connected to %s database %q (connection %s)", conn.Engine(), opts.Database, conn.ID())
	return nil
}

// Disconnect closes an owned connection and drops all cached namespaces.
// It is a no-op if the adapter never connected or uses an injected connection.
// A failing close is reported as ErrDisconnection. The connection stays in place
// for a retry, unless the driver reports it closed regardless.
func (a *Adapter) Disconnect(ctx context.Context, cbs ...Callback[Void]) *Future[Void] {
	return run(ctx, func(ctx context.Context) (Void, error) {
		start := time.Now()
		err := a.disconnect(ctx)
		a.metrics.observe("disconnect", "", start, err)
		return Void{}, err
	}, cbs)
}

func (a *Adapter) disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil || a.borrowed {
		return nil
	}

	id := a.conn.ID()
	if err := a.conn.Close(ctx); err != nil {
		Logger.Errorf("closing connection %s failed: %v", id, err)
		if a.conn.Closed() {
			a.dropConnLocked()
		}
		return wrapError(RetCDisconnectionError, err, "disconnect %s", id)
	}

	Logger.Infof("disconnected connection %s", id)
	a.dropConnLocked()
	return nil
}

// dropConnLocked forgets the connection and every namespace defined on it, a.mu must be held
func (a *Adapter) dropConnLocked() {
	a.conn = nil
	a.namespaces.Clear()
}

// --------------------------------------------------------------------------
// Namespace Registry
// --------------------------------------------------------------------------

// NamespaceOption configures a namespace on its first lookup
type NamespaceOption func(*namespaceOptions)

type namespaceOptions struct {
	ttl        time.Duration
	timestamps *docstore.Timestamps
}

// WithTTL sets the expiry of records in seconds. Zero falls back to the adapter default.
func WithTTL(seconds int64) NamespaceOption {
	return func(o *namespaceOptions) {
		if seconds > 0 {
			o.ttl = time.Duration(seconds) * time.Second
		}
	}
}

// WithTimestamps overrides the created-at / updated-at field names.
// An empty UpdatedAt disables tracking and with it the expiry index.
func WithTimestamps(ts docstore.Timestamps) NamespaceOption {
	return func(o *namespaceOptions) {
		o.timestamps = &ts
	}
}

// Storage returns the key-value store of the namespace name, defining its
// collection on the first call. Later calls return the same *Storage and ignore opts.
func (a *Adapter) Storage(ctx context.Context, name string, opts ...NamespaceOption) (*Storage, error) {
	if name == "" {
		return nil, NewError(RetCInvalidArgument, "namespace name must not be empty")
	}
	if s, ok := a.namespaces.Load(name); ok {
		return s, nil
	}

	conn := a.GetConnection()
	if conn == nil {
		return nil, NewError(RetCNotConnected, "connect before requesting a namespace")
	}

	// define runs under the bucket lock of name, so only one caller defines it.
	// Lookups of other names sharing the bucket block until it returns, the
	// fast path above keeps defined namespaces lock free.
	var defineErr error
	s, ok := a.namespaces.Compute(name, func(old *Storage, loaded bool) (*Storage, bool) {
		if loaded {
			return old, false
		}
		s, err := a.define(ctx, conn, name, opts)
		if err != nil {
			defineErr = err
			return nil, true
		}
		return s, false
	})
	if !ok {
		return nil, defineErr
	}
	return s, nil
}

// define builds the schema of a namespace and binds it on conn
func (a *Adapter) define(ctx context.Context, conn docstore.Connection, name string, opts []NamespaceOption) (*Storage, error) {
	o := namespaceOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	schema := docstore.Schema{Timestamps: docstore.DefaultTimestamps()}
	if o.timestamps != nil {
		schema.Timestamps = *o.timestamps
	}
	schema.TTL = o.ttl
	if schema.TTL == 0 {
		schema.TTL = a.cfg.DefaultTTL()
	}

	start := time.Now()
	res := conn.Define(ctx, name, schema)
	col, err := res.Unwrap()
	if err != nil {
		err = wrapError(RetCStoreError, err, "define namespace %q", name)
	}
	a.metrics.observe("define", name, start, err)
	if err != nil {
		return nil, err
	}

	if res.Status == docstore.StatusAlreadyDefined {
		Logger.Debugf("namespace %q was already defined on connection %s, reusing it", name, conn.ID())
	} else {
		Logger.Debugf("defined namespace %q (ttl %s) on connection %s", name, schema.TTL, conn.ID())
	}

	return &Storage{
		name:       name,
		ttl:        schema.TTL,
		collection: col,
		metrics:    a.metrics,
	}, nil
}

// Namespaces returns the names of all cached namespaces, sorted
func (a *Adapter) Namespaces() []string {
	names := make([]string, 0, a.namespaces.Size())
	a.namespaces.Range(func(name string, _ *Storage) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
