package mongo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var Logger = logger.GetLogger("docstore")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultHost = "localhost"
	DefaultPort = 27017

	fieldKey   = "key"
	fieldValue = "value"

	defaultConnectTimeout = 10 * time.Second
)

// credentialKeys are connect option keys that never end up in the query string
var credentialKeys = map[string]bool{
	"user":     true,
	"username": true,
	"pass":     true,
	"password": true,
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the MongoDB engine
type Options struct {
	ConnectTimeout time.Duration    // Upper bound for connecting and the initial ping (0 = 10s)
	Clock          func() time.Time // Time source for created-at / updated-at (nil = time.Now)
}

func (o *Options) withDefaults() *Options {
	res := Options{}
	if o != nil {
		res = *o
	}
	if res.ConnectTimeout <= 0 {
		res.ConnectTimeout = defaultConnectTimeout
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

// NewDriver creates a driver for MongoDB deployments
func NewDriver(opts *Options) docstore.Driver {
	return &driverImpl{opts: opts.withDefaults()}
}

func (d *driverImpl) Implementation() docstore.Implementation {
	return docstore.ImplMongo
}

func (d *driverImpl) Open(ctx context.Context, opts docstore.ConnectOptions) (docstore.Connection, error) {
	uri, err := BuildURI(opts)
	if err != nil {
		return nil, err
	}

	client, err := mongod.Connect(options.Client().
		ApplyURI(uri).
		SetConnectTimeout(d.opts.ConnectTimeout).
		SetServerSelectionTimeout(d.opts.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping %s: %w", redact(uri), err)
	}

	conn := &connectionImpl{
		id:          uuid.NewString(),
		client:      client,
		database:    client.Database(opts.Database),
		opts:        d.opts,
		collections: xsync.NewMapOf[string, *collectionImpl](),
	}
	Logger.Infof("connected to %s (connection %s)", redact(uri), conn.id)
	return conn, nil
}

// BuildURI assembles the connection string mongodb://[user:pass@]host:port/database?options.
// Credential keys in opts.Options are ignored, the query keys are sorted.
func BuildURI(opts docstore.ConnectOptions) (string, error) {
	if err := validateDatabase(opts.Database); err != nil {
		return "", err
	}

	host := opts.Host
	if host == "" {
		host = DefaultHost
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return "", fmt.Errorf("mongo: invalid port %d", port)
	}

	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + opts.Database,
	}
	if opts.Username != "" {
		u.User = url.UserPassword(opts.Username, opts.Password)
	}

	keys := make([]string, 0, len(opts.Options))
	for k := range opts.Options {
		if !credentialKeys[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	query := url.Values{}
	for _, k := range keys {
		query.Set(k, fmt.Sprint(opts.Options[k]))
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// validateDatabase applies the MongoDB rules for database names
func validateDatabase(name string) error {
	if name == "" {
		return fmt.Errorf("mongo: database name required")
	}
	if strings.ContainsAny(name, "/\\. \"$\x00") {
		return fmt.Errorf("mongo: invalid database name %q", name)
	}
	return nil
}

// redact removes the password from a connection string for logging
func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "mongodb://<invalid>"
	}
	return u.Redacted()
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type connectionImpl struct {
	id          string
	client      *mongod.Client
	database    *mongod.Database
	opts        *Options
	collections *xsync.MapOf[string, *collectionImpl]
	closeMu     sync.Mutex // serializes Close
	closed      atomic.Bool
}

func (c *connectionImpl) ID() string {
	return c.id
}

func (c *connectionImpl) Engine() docstore.Implementation {
	return docstore.ImplMongo
}

// Native returns the *mongo.Client
func (c *connectionImpl) Native() any {
	return c.client
}

// Expiry is done by the server's TTL monitor, which runs about once a minute,
// so there is no FeatureLazyExpiry.
func (c *connectionImpl) SupportsFeature(feature docstore.Feature) bool {
	supported := docstore.FeatureTTL | docstore.FeatureTimestamps
	return feature&supported == feature
}

func (c *connectionImpl) Define(ctx context.Context, name string, schema docstore.Schema) docstore.DefineResult {
	if c.closed.Load() {
		return docstore.Failed(docstore.ErrClosed)
	}
	if err := docstore.ValidateName(name); err != nil {
		return docstore.Failed(err)
	}

	// the collection is created under the map's bucket lock, concurrent
	// definitions of the same name wait for the first one to finish. Other names
	// hashed to the same bucket also wait for the index round trips, definitions
	// happen once per namespace and connection so this stays off the hot path.
	var createErr error
	loaded := false
	col, ok := c.collections.Compute(name, func(old *collectionImpl, exists bool) (*collectionImpl, bool) {
		if exists {
			loaded = true
			return old, false
		}
		col := &collectionImpl{name: name, schema: schema, conn: c, coll: c.database.Collection(name)}
		if createErr = col.ensureIndexes(ctx); createErr != nil {
			return nil, true
		}
		return col, false
	})
	if loaded {
		return docstore.AlreadyDefined(col)
	}
	if !ok {
		return docstore.Failed(fmt.Errorf("mongo: define %q: %w", name, createErr))
	}

	Logger.Debugf("defined collection %q (ttl %s) on %s", name, schema.TTL, c.id)
	return docstore.Defined(col)
}

func (c *connectionImpl) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return docstore.ErrClosed
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo: disconnect: %w", err)
	}
	c.closed.Store(true)
	Logger.Infof("disconnected connection %s", c.id)
	return nil
}

func (c *connectionImpl) Closed() bool {
	return c.closed.Load()
}

// --------------------------------------------------------------------------
// Collection
// --------------------------------------------------------------------------

type collectionImpl struct {
	name   string
	schema docstore.Schema
	conn   *connectionImpl
	coll   *mongod.Collection
}

// Server error codes of an index that exists with other options or another key spec
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// ensureIndexes creates the lookup index on key and, if configured, the TTL index.
// An index that already exists with other options is not a definition error: the
// key index is kept as is and the expiry of a TTL index is updated in place.
func (c *collectionImpl) ensureIndexes(ctx context.Context) error {
	keyIndex := mongod.IndexModel{Keys: bson.D{{Key: fieldKey, Value: 1}}}
	if _, err := c.coll.Indexes().CreateOne(ctx, keyIndex); err != nil {
		if !isIndexConflict(err) {
			return err
		}
		Logger.Warningf("collection %q already has a key index with other options, keeping it: %v", c.name, err)
	}

	if c.schema.TTL <= 0 {
		return nil
	}
	if !c.schema.Timestamps.Enabled() {
		Logger.Warningf("collection %q has a ttl of %s but no updated-at field, skipping expiry index", c.name, c.schema.TTL)
		return nil
	}

	seconds := ttlSeconds(c.schema.TTL)
	ttlKeys := bson.D{{Key: c.schema.Timestamps.UpdatedAt, Value: 1}}
	ttlIndex := mongod.IndexModel{
		Keys:    ttlKeys,
		Options: options.Index().SetExpireAfterSeconds(seconds),
	}
	_, err := c.coll.Indexes().CreateOne(ctx, ttlIndex)
	if err == nil || !isIndexConflict(err) {
		return err
	}

	// the index exists with another expiry (e.g. a restart with a new ttl)
	cmd := bson.D{
		{Key: "collMod", Value: c.name},
		{Key: "index", Value: bson.D{
			{Key: "keyPattern", Value: ttlKeys},
			{Key: "expireAfterSeconds", Value: seconds},
		}},
	}
	if err := c.conn.database.RunCommand(ctx, cmd).Err(); err != nil {
		Logger.Warningf("collection %q: updating the expiry index to %ds failed, the old expiry stays in effect: %v", c.name, seconds, err)
		return nil
	}
	Logger.Infof("collection %q: updated expiry index to %ds", c.name, seconds)
	return nil
}

// isIndexConflict reports whether err says an index exists with other options
func isIndexConflict(err error) bool {
	var se mongod.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(codeIndexOptionsConflict) || se.HasErrorCode(codeIndexKeySpecsConflict)
}

// ttlSeconds converts ttl to the whole seconds of an expiry index, at least one
func ttlSeconds(ttl time.Duration) int32 {
	seconds := int32(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (c *collectionImpl) Name() string {
	return c.name
}

func (c *collectionImpl) FindOne(ctx context.Context, key any) (*docstore.Record, error) {
	if c.conn.closed.Load() {
		return nil, docstore.ErrClosed
	}

	var m bson.M
	err := c.coll.FindOne(ctx, bson.M{fieldKey: key},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongo: find %q: %w", c.name, err)
	}
	return c.toRecord(m)
}

func (c *collectionImpl) Save(ctx context.Context, rec *docstore.Record) error {
	if c.conn.closed.Load() {
		return docstore.ErrClosed
	}
	if rec == nil {
		return fmt.Errorf("mongo: save: nil record")
	}
	now := c.conn.opts.Clock().UTC()

	if rec.ID == "" {
		oid := bson.NewObjectID()
		doc := bson.D{
			{Key: "_id", Value: oid},
			{Key: fieldKey, Value: rec.Key},
			{Key: fieldValue, Value: rec.Value},
		}
		if f := c.schema.Timestamps.CreatedAt; f != "" {
			doc = append(doc, bson.E{Key: f, Value: now})
		}
		if f := c.schema.Timestamps.UpdatedAt; f != "" {
			doc = append(doc, bson.E{Key: f, Value: now})
		}

		if _, err := c.coll.InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("mongo: insert into %q: %w", c.name, err)
		}
		rec.ID = oid.Hex()
		c.stamp(rec, now, now)
		return nil
	}

	oid, err := bson.ObjectIDFromHex(rec.ID)
	if err != nil {
		return fmt.Errorf("mongo: invalid record id %q: %w", rec.ID, err)
	}

	set := bson.M{fieldValue: rec.Value}
	setOnInsert := bson.M{fieldKey: rec.Key}
	if f := c.schema.Timestamps.UpdatedAt; f != "" {
		set[f] = now
	}
	if f := c.schema.Timestamps.CreatedAt; f != "" {
		setOnInsert[f] = now
	}

	// upsert re-creates a document that vanished since it was read
	_, err = c.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set, "$setOnInsert": setOnInsert},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: update %q: %w", c.name, err)
	}
	if c.schema.Timestamps.UpdatedAt != "" {
		rec.UpdatedAt = now.Truncate(time.Millisecond)
	}
	return nil
}

func (c *collectionImpl) FindOneAndDelete(ctx context.Context, key any) (*docstore.Record, error) {
	if c.conn.closed.Load() {
		return nil, docstore.ErrClosed
	}

	var m bson.M
	err := c.coll.FindOneAndDelete(ctx, bson.M{fieldKey: key},
		options.FindOneAndDelete().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongo: delete from %q: %w", c.name, err)
	}
	return c.toRecord(m)
}

func (c *collectionImpl) Count(ctx context.Context) (int64, error) {
	if c.conn.closed.Load() {
		return 0, docstore.ErrClosed
	}

	n, err := c.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongo: count %q: %w", c.name, err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// toRecord converts a decoded document into a record
func (c *collectionImpl) toRecord(m bson.M) (*docstore.Record, error) {
	rec := &docstore.Record{Key: m[fieldKey], Value: m[fieldValue]}

	switch id := m["_id"].(type) {
	case bson.ObjectID:
		rec.ID = id.Hex()
	default:
		return nil, fmt.Errorf("mongo: unexpected _id type %T in %q", id, c.name)
	}

	if f := c.schema.Timestamps.CreatedAt; f != "" {
		rec.CreatedAt = asTime(m[f])
	}
	if f := c.schema.Timestamps.UpdatedAt; f != "" {
		rec.UpdatedAt = asTime(m[f])
	}
	return rec, nil
}

// stamp copies the timestamps the schema exposes onto rec
func (c *collectionImpl) stamp(rec *docstore.Record, createdAt, updatedAt time.Time) {
	if c.schema.Timestamps.CreatedAt != "" {
		rec.CreatedAt = createdAt.Truncate(time.Millisecond)
	}
	if c.schema.Timestamps.UpdatedAt != "" {
		rec.UpdatedAt = updatedAt.Truncate(time.Millisecond)
	}
}

// asTime converts a stored date into a time.Time, anything else yields the zero time
func asTime(v any) time.Time {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	default:
		return time.Time{}
	}
}
