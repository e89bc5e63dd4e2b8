package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
)

const (
	DefaultHost      = "localhost"
	DefaultPort      = 27017
	DefaultTableName = "storage"
)

// --------------------------------------------------------------------------
// Adapter configuration struct
// --------------------------------------------------------------------------

// Config holds the connection parameters of an Adapter. Several fields are
// aliases of each other, see the accessor methods for their precedence.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Database names the database, Keyspace is its legacy alias
	Database string `mapstructure:"database"`
	Keyspace string `mapstructure:"keyspace"`

	// Credentials (Username / User and Password / Pass are aliases)
	Username string `mapstructure:"username"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Pass     string `mapstructure:"pass"`

	// Options is merged into the driver-level connection parameters
	Options map[string]any `mapstructure:"options"`

	// TTL is the default expiry of records in seconds (0 = disabled)
	TTL int64 `mapstructure:"ttl"`

	// Namespace of the single-namespace variant (Name / Table / TableName are aliases)
	Name      string `mapstructure:"name"`
	Table     string `mapstructure:"table"`
	TableName string `mapstructure:"table_name"`
}

// ResolvedHost returns Host or "localhost"
func (c Config) ResolvedHost() string {
	if c.Host != "" {
		return c.Host
	}
	return DefaultHost
}

// ResolvedPort returns Port or 27017
func (c Config) ResolvedPort() int {
	if c.Port != 0 {
		return c.Port
	}
	return DefaultPort
}

// ResolvedDatabase returns Database, falling back to Keyspace
func (c Config) ResolvedDatabase() string {
	return firstNonEmpty(c.Database, c.Keyspace)
}

// ResolvedUsername returns the first non-empty of Username, Options["username"], User, Options["user"]
func (c Config) ResolvedUsername() string {
	return firstNonEmpty(c.Username, c.option("username"), c.User, c.option("user"))
}

// ResolvedPassword returns the first non-empty of Password, Options["password"], Pass, Options["pass"]
func (c Config) ResolvedPassword() string {
	return firstNonEmpty(c.Password, c.option("password"), c.Pass, c.option("pass"))
}

// ResolvedTableName returns the first non-empty of Name, Table, TableName or "storage"
func (c Config) ResolvedTableName() string {
	return firstNonEmpty(c.Name, c.Table, c.TableName, DefaultTableName)
}

// DefaultTTL returns the default record expiry, zero when disabled
func (c Config) DefaultTTL() time.Duration {
	if c.TTL <= 0 {
		return 0
	}
	return time.Duration(c.TTL) * time.Second
}

// ConnectOptions converts the configuration into the parameters passed to docstore.Driver.Open
func (c Config) ConnectOptions() docstore.ConnectOptions {
	opts := make(map[string]any, len(c.Options))
	for k, v := range c.Options {
		switch strings.ToLower(k) {
		case "username", "user", "password", "pass":
			continue
		}
		opts[k] = v
	}

	return docstore.ConnectOptions{
		Host:     c.ResolvedHost(),
		Port:     c.ResolvedPort(),
		Database: c.ResolvedDatabase(),
		Username: c.ResolvedUsername(),
		Password: c.ResolvedPassword(),
		Options:  opts,
	}
}

// String returns a formatted string representation of the configuration
func (c Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Connection")
	addField("Host", c.ResolvedHost())
	addField("Port", fmt.Sprintf("%d", c.ResolvedPort()))
	addField("Database", c.ResolvedDatabase())
	addField("Username", c.ResolvedUsername())
	if c.ResolvedPassword() != "" {
		addField("Password", "********")
	} else {
		addField("Password", "")
	}

	if len(c.Options) > 0 {
		addSection("Options")
		keys := make([]string, 0, len(c.Options))
		for k := range c.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch strings.ToLower(k) {
			case "password", "pass":
				addField(k, "********")
			default:
				addField(k, fmt.Sprint(c.Options[k]))
			}
		}
	}

	addSection("Storage")
	if ttl := c.DefaultTTL(); ttl > 0 {
		addField("Default TTL", ttl.String())
	} else {
		addField("Default TTL", "disabled")
	}
	addField("Table Name", c.ResolvedTableName())

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// option returns Options[key] as a string
func (c Config) option(key string) string {
	v, ok := c.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
