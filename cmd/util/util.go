package util

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ValentinKolb/docKV/lib/common"
	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/ValentinKolb/docKV/lib/docstore/engines/memdoc"
	"github.com/ValentinKolb/docKV/lib/docstore/engines/mongo"
	"github.com/ValentinKolb/docKV/lib/docstore/engines/sqlite"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the connection flags shared by all store commands
func SetupClientFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, string(docstore.ImplMongo), WrapString("The document store to use (mongodb, sqlite, memory)"))

	key = "host"
	cmd.PersistentFlags().String(key, store.DefaultHost, WrapString("Host of the MongoDB server"))

	key = "port"
	cmd.PersistentFlags().Int(key, store.DefaultPort, WrapString("Port of the MongoDB server"))

	key = "database"
	cmd.PersistentFlags().String(key, "", WrapString("Name of the database, defaults to dockv (for sqlite the file is <database>.db unless --sqlite-path is set)"))

	key = "username"
	cmd.PersistentFlags().String(key, "", WrapString("User to authenticate as"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("Password of the user"))

	key = "ttl"
	cmd.PersistentFlags().Int64(key, 0, WrapString("Expiry of records in seconds (0 disables expiry)"))

	key = "namespace"
	cmd.PersistentFlags().String(key, "", WrapString("Namespace (collection) the commands operate on, defaults to storage"))

	key = "sqlite-path"
	cmd.PersistentFlags().String(key, "", WrapString("Path of the SQLite database file, use :memory: for a transient database"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of every operation"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the operation metrics in Prometheus format on exit"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dockv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// aliases without a flag are only seen by Unmarshal once bound
	for _, key := range configAliases {
		_ = viper.BindEnv(key)
	}
}

// configAliases are the store.Config keys that have no flag of their own
var configAliases = []string{"keyspace", "user", "pass", "name", "table", "table_name"}

// BindCommandFlags binds a command's flags to viper and reads the config file if one is given.
// It also applies the configured log level.
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s failed: %w", path, err)
		}
	}

	return common.InitLoggers(viper.GetString("log-level"), os.Stderr)
}

// DefaultDatabase is used if neither database nor keyspace is configured
const DefaultDatabase = "dockv"

// GetStoreConfig reads the adapter configuration from viper. Flags, environment
// and config file all fill store.Config, so its aliases (keyspace, user, pass,
// name, table, table_name, options.user, options.pass) work from every source.
func GetStoreConfig() (store.Config, error) {
	var conf store.Config
	if err := viper.Unmarshal(&conf); err != nil {
		return conf, fmt.Errorf("invalid configuration: %w", err)
	}

	// --namespace is the flag spelling of name
	if ns := viper.GetString("namespace"); ns != "" {
		conf.Name = ns
	}
	if conf.ResolvedDatabase() == "" {
		conf.Database = DefaultDatabase
	}

	return conf, nil
}

// GetDriver creates the document store driver based on configuration
func GetDriver() (docstore.Driver, error) {
	timeout := GetTimeout()

	switch docstore.Implementation(strings.ToLower(viper.GetString("engine"))) {
	case docstore.ImplMongo:
		return mongo.NewDriver(&mongo.Options{ConnectTimeout: timeout}), nil
	case docstore.ImplSQLite:
		return sqlite.NewDriver(&sqlite.Options{Path: viper.GetString("sqlite-path")}), nil
	case docstore.ImplMemory:
		return memdoc.NewDriver(nil), nil
	default:
		return nil, fmt.Errorf("invalid engine %s", viper.GetString("engine"))
	}
}

// GetTimeout returns the configured operation timeout
func GetTimeout() time.Duration {
	return time.Duration(viper.GetInt("timeout")) * time.Second
}

// Context returns a context bounded by the configured timeout
func Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), GetTimeout())
}
