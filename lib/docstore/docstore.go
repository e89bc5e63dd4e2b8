package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrClosed is returned by connections and collections used after Close.
	ErrClosed = errors.New("docstore: connection closed")
	// ErrInvalidName is returned by Define for names the engine cannot use as a collection name.
	ErrInvalidName = errors.New("docstore: invalid collection name")
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMongo  Implementation = "mongodb"
	ImplMemory Implementation = "memory"
	ImplSQLite Implementation = "sqlite"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureTTL         Feature = 1 << iota // Support for expiry indexes on the updated-at field
	FeatureLazyExpiry                      // Expired documents are hidden at read time (not only by a background monitor)
	FeatureTimestamps                      // Automatic created-at / updated-at maintenance
)

func (f Feature) String() string {
	switch f {
	case FeatureTTL:
		return "TTL"
	case FeatureLazyExpiry:
		return "LazyExpiry"
	case FeatureTimestamps:
		return "Timestamps"
	default:
		return "Unknown"
	}
}

// ConnectOptions holds the resolved parameters used to open a connection.
type ConnectOptions struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	// Options is merged into the engine-level connection parameters.
	Options map[string]any
}

// Timestamps names the document fields maintained automatically on insert and update.
// An empty UpdatedAt disables automatic tracking (and with it the expiry index).
type Timestamps struct {
	CreatedAt string
	UpdatedAt string
}

// DefaultTimestamps returns the created_at / updated_at field pair.
func DefaultTimestamps() Timestamps {
	return Timestamps{CreatedAt: "created_at", UpdatedAt: "updated_at"}
}

// Enabled reports whether updates are tracked.
func (t Timestamps) Enabled() bool {
	return t.UpdatedAt != ""
}

// Schema is the document shape of a collection: key, value and the timestamp fields.
type Schema struct {
	Timestamps Timestamps
	// TTL > 0 attaches an index on Timestamps.UpdatedAt that expires documents
	// after TTL of inactivity. Ignored when timestamps are disabled.
	TTL time.Duration
}

// Record is the persisted unit, one document per key.
type Record struct {
	ID        string // engine-assigned, empty for records not yet saved
	Key       any
	Value     any
	CreatedAt time.Time // zero when timestamps are disabled
	UpdatedAt time.Time // zero when timestamps are disabled
}

// ValidateName checks a collection name against the rules shared by all engines:
// non-empty, no NUL byte, no '$' and no reserved "system." prefix.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidName, name)
	case strings.Contains(name, "$"):
		return fmt.Errorf("%w: %q contains '$'", ErrInvalidName, name)
	case strings.HasPrefix(name, "system."):
		return fmt.Errorf("%w: %q uses the reserved system. prefix", ErrInvalidName, name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Define Result
// --------------------------------------------------------------------------

// DefineStatus tells how Define ended.
type DefineStatus int

const (
	StatusDefined        DefineStatus = iota // the collection was defined by this call
	StatusAlreadyDefined                     // the name was already bound on the connection, the existing collection is returned
	StatusFailed                             // the definition failed, see Err
)

func (s DefineStatus) String() string {
	switch s {
	case StatusDefined:
		return "Defined"
	case StatusAlreadyDefined:
		return "AlreadyDefined"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DefineResult is the typed outcome of Connection.Define.
type DefineResult struct {
	Status     DefineStatus
	Collection Collection
	Err        error
}

// Defined wraps a freshly defined collection.
func Defined(c Collection) DefineResult {
	return DefineResult{Status: StatusDefined, Collection: c}
}

// AlreadyDefined wraps a collection that was bound to the name before.
func AlreadyDefined(c Collection) DefineResult {
	return DefineResult{Status: StatusAlreadyDefined, Collection: c}
}

// Failed wraps a genuine definition error.
func Failed(err error) DefineResult {
	return DefineResult{Status: StatusFailed, Err: err}
}

// Unwrap returns the collection for both success variants and the error otherwise.
func (r DefineResult) Unwrap() (Collection, error) {
	if r.Status == StatusFailed {
		return nil, r.Err
	}
	return r.Collection, nil
}

// --------------------------------------------------------------------------
// Engine Interfaces
// --------------------------------------------------------------------------

// Driver opens connections to one kind of document store.
type Driver interface {
	// Open opens a new connection. It fails if the store is unreachable,
	// the credentials are rejected or the database name is invalid.
	Open(ctx context.Context, opts ConnectOptions) (Connection, error)

	// Implementation names the engine behind this driver.
	Implementation() Implementation
}

// Connection is one open handle to a document store, shared by all collections defined on it.
type Connection interface {
	// ID identifies this connection, a fresh value for each opened connection.
	ID() string

	// Engine names the implementation this connection belongs to.
	Engine() Implementation

	// Native returns the engine-native handle (e.g. *mongo.Client, *sql.DB).
	Native() any

	// Define binds a collection named name with the given schema.
	// Defining a name twice on the same connection returns AlreadyDefined with the
	// collection of the first definition, the second schema is ignored.
	Define(ctx context.Context, name string, schema Schema) DefineResult

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) bool

	// Close closes the connection. Collections defined on it fail with ErrClosed afterwards.
	// A failing Close leaves the connection open unless Closed reports otherwise.
	Close(ctx context.Context) error

	// Closed reports whether the connection was closed and can no longer be used.
	Closed() bool
}

// Collection is a named set of key/value documents.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// FindOne returns the first record whose key equals key, or nil if there is none.
	FindOne(ctx context.Context, key any) (*Record, error)

	// Save inserts rec if rec.ID is empty (assigning ID and both timestamps) and
	// otherwise overwrites the stored value in place and bumps the updated-at timestamp.
	Save(ctx context.Context, rec *Record) error

	// FindOneAndDelete removes the first record whose key equals key and returns it.
	// A missing key returns nil without error.
	FindOneAndDelete(ctx context.Context, key any) (*Record, error)

	// Count returns the number of live records.
	Count(ctx context.Context) (int64, error)
}
