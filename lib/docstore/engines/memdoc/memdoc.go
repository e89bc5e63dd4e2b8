package memdoc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/ValentinKolb/docKV/lib/docstore/codec"
	"github.com/ValentinKolb/docKV/lib/docstore/util"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("docstore")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the memdoc engine
type Options struct {
	Codec      codec.IValueCodec // Encoding of keys and values (nil = BSON)
	Clock      func() time.Time  // Time source for timestamps and expiry (nil = time.Now)
	GCInterval time.Duration     // Time between GC runs (0 = use default)
}

// DefaultOptions returns the default memdoc options
func DefaultOptions() *Options {
	return &Options{
		Codec:      codec.NewBSONCodec(),
		Clock:      time.Now,
		GCInterval: defaultGCInterval,
	}
}

func (o *Options) withDefaults() *Options {
	def := DefaultOptions()
	if o == nil {
		return def
	}
	res := *o
	if res.Codec == nil {
		res.Codec = def.Codec
	}
	if res.Clock == nil {
		res.Clock = def.Clock
	}
	if res.GCInterval <= 0 {
		res.GCInterval = def.GCInterval
	}
	return &res
}

// --------------------------------------------------------------------------
// Driver
// --------------------------------------------------------------------------

type driverImpl struct {
	opts *Options
}

// NewDriver creates a driver for process-local document databases.
// Every opened connection owns a separate, empty database.
func NewDriver(opts *Options) docstore.Driver {
	return &driverImpl{opts: opts.withDefaults()}
}

func (d *driverImpl) Implementation() docstore.Implementation {
	return docstore.ImplMemory
}

func (d *driverImpl) Open(ctx context.Context, opts docstore.ConnectOptions) (docstore.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := &connectionImpl{
		id:          uuid.NewString(),
		database:    opts.Database,
		opts:        d.opts,
		collections: xsync.NewMapOf[string, *collectionImpl](),
		stopGC:      make(chan struct{}),
	}
	conn.startGC()

	Logger.Debugf("opened memory connection %s (database %q)", conn.id, conn.database)
	return conn, nil
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type connectionImpl struct {
	id          string
	database    string
	opts        *Options
	collections *xsync.MapOf[string, *collectionImpl]

	closed atomic.Bool
	stopGC chan struct{}
	gcDone sync.WaitGroup
}

func (c *connectionImpl) ID() string {
	return c.id
}

func (c *connectionImpl) Engine() docstore.Implementation {
	return docstore.ImplMemory
}

// Native returns the connection itself, there is no handle below it.
func (c *connectionImpl) Native() any {
	return c
}

// Database returns the database name the connection was opened with
func (c *connectionImpl) Database() string {
	return c.database
}

func (c *connectionImpl) SupportsFeature(feature docstore.Feature) bool {
	supported := docstore.FeatureTTL | docstore.FeatureLazyExpiry | docstore.FeatureTimestamps
	return feature&supported == feature
}

func (c *connectionImpl) Define(ctx context.Context, name string, schema docstore.Schema) docstore.DefineResult {
	if c.closed.Load() {
		return docstore.Failed(docstore.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return docstore.Failed(err)
	}
	if err := docstore.ValidateName(name); err != nil {
		return docstore.Failed(err)
	}

	col, loaded := c.collections.LoadOrCompute(name, func() *collectionImpl {
		return newCollection(c, name, schema)
	})
	if loaded {
		return docstore.AlreadyDefined(col)
	}

	Logger.Debugf("defined collection %q (ttl %s) on %s", name, schema.TTL, c.id)
	return docstore.Defined(col)
}

func (c *connectionImpl) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return docstore.ErrClosed
	}
	close(c.stopGC)
	c.gcDone.Wait()

	Logger.Debugf("closed memory connection %s", c.id)
	return nil
}

func (c *connectionImpl) Closed() bool {
	return c.closed.Load()
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the garbage collector, it runs until the connection is closed
func (c *connectionImpl) startGC() {
	c.gcDone.Add(1)
	go c.garbageCollector()
}

// garbageCollector drops expired documents of every collection in a fixed interval.
// Reads hide expired documents on their own, the collector only reclaims memory.
func (c *connectionImpl) garbageCollector() {
	defer c.gcDone.Done()

	ticker := time.NewTicker(c.opts.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopGC:
			return
		case <-ticker.C:
			now := c.opts.Clock()
			c.collections.Range(func(_ string, col *collectionImpl) bool {
				col.mu.Lock()
				if n := col.collectLocked(now); n > 0 {
					Logger.Debugf("gc removed %d expired documents from %q", n, col.name)
				}
				col.mu.Unlock()
				return true
			})
		}
	}
}

// --------------------------------------------------------------------------
// Collection
// --------------------------------------------------------------------------

// document is the stored form of a record, key and value are encoded by the codec
type document struct {
	id        string
	keyID     string
	key       []byte
	value     []byte
	createdAt time.Time
	updatedAt time.Time
}

type collectionImpl struct {
	name   string
	schema docstore.Schema
	conn   *connectionImpl

	mu     sync.Mutex
	docs   map[string]*document // id -> document
	byKey  map[string][]string  // key identity -> ids in insertion order
	expiry *util.MapHeap        // id -> expiry deadline (unix nano)
}

func newCollection(conn *connectionImpl, name string, schema docstore.Schema) *collectionImpl {
	return &collectionImpl{
		name:   name,
		schema: schema,
		conn:   conn,
		docs:   make(map[string]*document),
		byKey:  make(map[string][]string),
		expiry: util.NewMapHeap(),
	}
}

func (c *collectionImpl) Name() string {
	return c.name
}

func (c *collectionImpl) FindOne(ctx context.Context, key any) (*docstore.Record, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	keyID, err := codec.KeyID(c.conn.opts.Codec, key)
	if err != nil {
		return nil, fmt.Errorf("memdoc: encode key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.collectLocked(c.conn.opts.Clock())

	doc := c.firstLocked(keyID)
	if doc == nil {
		return nil, nil
	}
	return c.toRecord(doc)
}

func (c *collectionImpl) Save(ctx context.Context, rec *docstore.Record) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("memdoc: save: nil record")
	}

	keyBytes, err := c.conn.opts.Codec.Encode(rec.Key)
	if err != nil {
		return fmt.Errorf("memdoc: encode key: %w", err)
	}
	valueBytes, err := c.conn.opts.Codec.Encode(rec.Value)
	if err != nil {
		return fmt.Errorf("memdoc: encode value: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.conn.opts.Clock()
	c.collectLocked(now)

	if rec.ID != "" {
		if doc, ok := c.docs[rec.ID]; ok {
			doc.value = valueBytes
			doc.updatedAt = now
			c.trackLocked(doc)
			c.stampRecord(rec, doc)
			return nil
		}
	}

	// insert (or re-insert a record that vanished since it was read)
	doc := &document{
		id:        rec.ID,
		keyID:     string(keyBytes),
		key:       keyBytes,
		value:     valueBytes,
		createdAt: now,
		updatedAt: now,
	}
	if doc.id == "" {
		doc.id = uuid.NewString()
	}
	c.docs[doc.id] = doc
	c.byKey[doc.keyID] = append(c.byKey[doc.keyID], doc.id)
	c.trackLocked(doc)

	rec.ID = doc.id
	c.stampRecord(rec, doc)
	return nil
}

func (c *collectionImpl) FindOneAndDelete(ctx context.Context, key any) (*docstore.Record, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	keyID, err := codec.KeyID(c.conn.opts.Codec, key)
	if err != nil {
		return nil, fmt.Errorf("memdoc: encode key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.collectLocked(c.conn.opts.Clock())

	doc := c.firstLocked(keyID)
	if doc == nil {
		return nil, nil
	}
	c.removeLocked(doc)
	return c.toRecord(doc)
}

func (c *collectionImpl) Count(ctx context.Context) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.collectLocked(c.conn.opts.Clock())

	return int64(len(c.docs)), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// check fails for closed connections and done contexts
func (c *collectionImpl) check(ctx context.Context) error {
	if c.conn.closed.Load() {
		return docstore.ErrClosed
	}
	return ctx.Err()
}

// expires reports whether documents of this collection expire at all
func (c *collectionImpl) expires() bool {
	return c.schema.TTL > 0 && c.schema.Timestamps.Enabled()
}

// trackLocked (re)schedules the expiry of doc. The caller must hold c.mu.
func (c *collectionImpl) trackLocked(doc *document) {
	if c.expires() {
		c.expiry.AddItem(doc.id, doc.updatedAt.Add(c.schema.TTL).UnixNano())
	}
}

// collectLocked removes all documents whose deadline has passed and returns their number.
// The caller must hold c.mu.
func (c *collectionImpl) collectLocked(now time.Time) int {
	if !c.expires() {
		return 0
	}
	ids := c.expiry.PopUntil(now.UnixNano())
	for _, id := range ids {
		if doc, ok := c.docs[id]; ok {
			c.removeLocked(doc)
		}
	}
	return len(ids)
}

// firstLocked returns the oldest document with the given key identity. The caller must hold c.mu.
func (c *collectionImpl) firstLocked(keyID string) *document {
	ids := c.byKey[keyID]
	if len(ids) == 0 {
		return nil
	}
	return c.docs[ids[0]]
}

// removeLocked drops doc from all indexes. The caller must hold c.mu.
func (c *collectionImpl) removeLocked(doc *document) {
	delete(c.docs, doc.id)
	c.expiry.RemoveByKey(doc.id)

	ids := c.byKey[doc.keyID]
	for i, id := range ids {
		if id == doc.id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(c.byKey, doc.keyID)
	} else {
		c.byKey[doc.keyID] = ids
	}
}

// toRecord decodes a stored document
func (c *collectionImpl) toRecord(doc *document) (*docstore.Record, error) {
	key, err := c.conn.opts.Codec.Decode(doc.key)
	if err != nil {
		return nil, fmt.Errorf("memdoc: decode key: %w", err)
	}
	value, err := c.conn.opts.Codec.Decode(doc.value)
	if err != nil {
		return nil, fmt.Errorf("memdoc: decode value: %w", err)
	}
	rec := &docstore.Record{ID: doc.id, Key: key, Value: value}
	c.stampRecord(rec, doc)
	return rec, nil
}

// stampRecord copies the timestamps the schema exposes onto rec
func (c *collectionImpl) stampRecord(rec *docstore.Record, doc *document) {
	if c.schema.Timestamps.CreatedAt != "" {
		rec.CreatedAt = doc.createdAt
	}
	if c.schema.Timestamps.UpdatedAt != "" {
		rec.UpdatedAt = doc.updatedAt
	}
}
