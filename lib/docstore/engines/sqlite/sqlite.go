package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/ValentinKolb/docKV/lib/docstore/codec"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	_ "modernc.org/sqlite"
)

var Logger = logger.GetLogger("docstore")

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the sqlite engine
type Options struct {
	// Path of the database file. Empty uses "<database>.db" from the connect options,
	// MemoryPath keeps everything in memory.
	Path  string
	Codec codec.IValueCodec // Encoding of keys and values (nil = BSON)
	Clock func() time.Time  // Time source for timestamps and expiry (nil = time.Now)
}

func (o *Options) withDefaults() *Options {
	res := Options{}
	if o != nil {
		res = *o
	}
	if res.Codec == nil {
		res.Codec = codec.NewBSONCodec()
	}
	if res.Clock == nil {
		res.Clock = time.Now
	}
	return &res
}

// --------------------------------------------------------------------------
// Driver
// --------------------------------------------------------------------------

type driverImpl struct {
	opts *Options
}

// NewDriver creates a driver for embedded SQLite databases
func NewDriver(opts *Options) docstore.Driver {
	return &driverImpl{opts: opts.withDefaults()}
}

func (d *driverImpl) Implementation() docstore.Implementation {
	return docstore.ImplSQLite
}

func (d *driverImpl) Open(ctx context.Context, opts docstore.ConnectOptions) (docstore.Connection, error) {
	path := d.opts.Path
	if path == "" {
		if opts.Database == "" {
			return nil, fmt.Errorf("sqlite: no path and no database name given")
		}
		path = opts.Database + ".db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// a single connection serializes writers and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}
	if path != MemoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	conn := &connectionImpl{
		id:          uuid.NewString(),
		path:        path,
		db:          db,
		opts:        d.opts,
		collections: xsync.NewMapOf[string, *collectionImpl](),
	}
	Logger.Debugf("opened sqlite connection %s (%s)", conn.id, path)
	return conn, nil
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type connectionImpl struct {
	id          string
	path        string
	db          *sql.DB
	opts        *Options
	collections *xsync.MapOf[string, *collectionImpl]
	closed      atomic.Bool
}

func (c *connectionImpl) ID() string {
	return c.id
}

func (c *connectionImpl) Engine() docstore.Implementation {
	return docstore.ImplSQLite
}

// Native returns the *sql.DB
func (c *connectionImpl) Native() any {
	return c.db
}

func (c *connectionImpl) SupportsFeature(feature docstore.Feature) bool {
	supported := docstore.FeatureTTL | docstore.FeatureLazyExpiry | docstore.FeatureTimestamps
	return feature&supported == feature
}

func (c *connectionImpl) Define(ctx context.Context, name string, schema docstore.Schema) docstore.DefineResult {
	if c.closed.Load() {
		return docstore.Failed(docstore.ErrClosed)
	}
	if err := docstore.ValidateName(name); err != nil {
		return docstore.Failed(err)
	}
	if strings.HasPrefix(strings.ToLower(name), "sqlite_") {
		return docstore.Failed(fmt.Errorf("%w: %q uses the reserved sqlite_ prefix", docstore.ErrInvalidName, name))
	}

	// the table is created under the map's bucket lock, concurrent definitions
	// of the same name wait for the first one to finish. Names hashed to the
	// same bucket wait as well, which is bounded by one local DDL statement.
	var createErr error
	loaded := false
	col, ok := c.collections.Compute(name, func(old *collectionImpl, exists bool) (*collectionImpl, bool) {
		if exists {
			loaded = true
			return old, false
		}
		col := &collectionImpl{name: name, table: quoteIdent(name), schema: schema, conn: c}
		if createErr = col.create(ctx); createErr != nil {
			return nil, true
		}
		return col, false
	})
	if loaded {
		return docstore.AlreadyDefined(col)
	}
	if !ok {
		return docstore.Failed(fmt.Errorf("sqlite: define %q: %w", name, createErr))
	}

	Logger.Debugf("defined collection %q (ttl %s) on %s", name, schema.TTL, c.id)
	return docstore.Defined(col)
}

func (c *connectionImpl) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return docstore.ErrClosed
	}
	Logger.Debugf("closed sqlite connection %s", c.id)
	return c.db.Close()
}

// Closed reports true once Close was called, *sql.DB is unusable afterwards even if Close failed
func (c *connectionImpl) Closed() bool {
	return c.closed.Load()
}

// --------------------------------------------------------------------------
// Collection
// --------------------------------------------------------------------------

type collectionImpl struct {
	name   string
	table  string
	schema docstore.Schema
	conn   *connectionImpl
}

// create makes sure the table and its key index exist
func (c *collectionImpl) create(ctx context.Context) error {
	stmt := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id         TEXT PRIMARY KEY,
		key_id     BLOB NOT NULL,
		key        BLOB NOT NULL,
		value      BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (key_id);`,
		c.table, quoteIdent(c.name+"_key_id"))

	_, err := c.conn.db.ExecContext(ctx, stmt)
	return err
}

func (c *collectionImpl) Name() string {
	return c.name
}

func (c *collectionImpl) FindOne(ctx context.Context, key any) (*docstore.Record, error) {
	if c.conn.closed.Load() {
		return nil, docstore.ErrClosed
	}
	keyID, err := codec.KeyID(c.conn.opts.Codec, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode key: %w", err)
	}

	row := c.conn.db.QueryRowContext(ctx,
		"SELECT id, key, value, created_at, updated_at FROM "+c.table+
			" WHERE key_id = ? AND updated_at > ? ORDER BY rowid LIMIT 1",
		[]byte(keyID), c.cutoff())
	return c.scan(row)
}

func (c *collectionImpl) Save(ctx context.Context, rec *docstore.Record) error {
	if c.conn.closed.Load() {
		return docstore.ErrClosed
	}
	if rec == nil {
		return fmt.Errorf("sqlite: save: nil record")
	}

	keyBytes, err := c.conn.opts.Codec.Encode(rec.Key)
	if err != nil {
		return fmt.Errorf("sqlite: encode key: %w", err)
	}
	valueBytes, err := c.conn.opts.Codec.Encode(rec.Value)
	if err != nil {
		return fmt.Errorf("sqlite: encode value: %w", err)
	}
	now := c.conn.opts.Clock()

	if rec.ID != "" {
		res, err := c.conn.db.ExecContext(ctx,
			"UPDATE "+c.table+" SET value = ?, updated_at = ? WHERE id = ?",
			valueBytes, now.UnixNano(), rec.ID)
		if err != nil {
			return fmt.Errorf("sqlite: update: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			if c.schema.Timestamps.UpdatedAt != "" {
				rec.UpdatedAt = now
			}
			return nil
		}
	}

	// insert (or re-insert a record that vanished since it was read)
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err = c.conn.db.ExecContext(ctx,
		"INSERT INTO "+c.table+" (id, key_id, key, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, keyBytes, keyBytes, valueBytes, now.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}

	rec.ID = id
	c.stamp(rec, now, now)
	return nil
}

func (c *collectionImpl) FindOneAndDelete(ctx context.Context, key any) (*docstore.Record, error) {
	if c.conn.closed.Load() {
		return nil, docstore.ErrClosed
	}
	keyID, err := codec.KeyID(c.conn.opts.Codec, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode key: %w", err)
	}

	tx, err := c.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT id, key, value, created_at, updated_at FROM "+c.table+
			" WHERE key_id = ? AND updated_at > ? ORDER BY rowid LIMIT 1",
		[]byte(keyID), c.cutoff())
	rec, err := c.scan(row)
	if err != nil || rec == nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+c.table+" WHERE id = ?", rec.ID); err != nil {
		return nil, fmt.Errorf("sqlite: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return rec, nil
}

func (c *collectionImpl) Count(ctx context.Context) (int64, error) {
	if c.conn.closed.Load() {
		return 0, docstore.ErrClosed
	}

	if c.expires() {
		res, err := c.conn.db.ExecContext(ctx, "DELETE FROM "+c.table+" WHERE updated_at <= ?", c.cutoff())
		if err != nil {
			return 0, fmt.Errorf("sqlite: purge: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			Logger.Debugf("purged %d expired documents from %q", n, c.name)
		}
	}

	var n int64
	if err := c.conn.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// quoteIdent quotes a table or index name for use in a statement
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (c *collectionImpl) expires() bool {
	return c.schema.TTL > 0 && c.schema.Timestamps.Enabled()
}

// cutoff returns the updated_at value (unix nano) at or below which documents are expired
func (c *collectionImpl) cutoff() int64 {
	if !c.expires() {
		return math.MinInt64
	}
	return c.conn.opts.Clock().Add(-c.schema.TTL).UnixNano()
}

// scan reads one row into a record, sql.ErrNoRows yields nil
func (c *collectionImpl) scan(row *sql.Row) (*docstore.Record, error) {
	var (
		id                   string
		keyBytes, valueBytes []byte
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &keyBytes, &valueBytes, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: scan: %w", err)
	}

	key, err := c.conn.opts.Codec.Decode(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: decode key: %w", err)
	}
	value, err := c.conn.opts.Codec.Decode(valueBytes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: decode value: %w", err)
	}

	rec := &docstore.Record{ID: id, Key: key, Value: value}
	c.stamp(rec, time.Unix(0, createdAt), time.Unix(0, updatedAt))
	return rec, nil
}

// stamp copies the timestamps the schema exposes onto rec
func (c *collectionImpl) stamp(rec *docstore.Record, createdAt, updatedAt time.Time) {
	if c.schema.Timestamps.CreatedAt != "" {
		rec.CreatedAt = createdAt
	}
	if c.schema.Timestamps.UpdatedAt != "" {
		rec.UpdatedAt = updatedAt
	}
}
