package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/docKV/lib/docstore"
	"github.com/spf13/viper"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Line exceeds %d characters: %q", Wrap, line)
		}
	}
	if got := WrapString("short text"); got != "short text" {
		t.Errorf("Expected short text to stay on one line, got %q", got)
	}
}

func TestGetDriver(t *testing.T) {
	tests := []struct {
		engine  string
		want    docstore.Implementation
		wantErr bool
	}{
		{"mongodb", docstore.ImplMongo, false},
		{"SQLite", docstore.ImplSQLite, false},
		{"memory", docstore.ImplMemory, false},
		{"redis", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			viper.Reset()
			viper.Set("engine", tt.engine)

			driver, err := GetDriver()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for engine %s", tt.engine)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if driver.Implementation() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, driver.Implementation())
			}
		})
	}
}

func TestGetStoreConfig(t *testing.T) {
	viper.Reset()
	viper.Set("host", "db.local")
	viper.Set("port", 27018)
	viper.Set("database", "app")
	viper.Set("username", "eli")
	viper.Set("password", "secret")
	viper.Set("ttl", 60)
	viper.Set("namespace", "user")
	viper.Set("options", map[string]any{"authSource": "admin"})

	conf, err := GetStoreConfig()
	if err != nil {
		t.Fatalf("GetStoreConfig failed: %v", err)
	}
	opts := conf.ConnectOptions()

	if opts.Host != "db.local" || opts.Port != 27018 || opts.Database != "app" {
		t.Errorf("Unexpected connection parameters %+v", opts)
	}
	if opts.Username != "eli" || opts.Password != "secret" {
		t.Errorf("Unexpected credentials %s / %s", opts.Username, opts.Password)
	}
	if conf.ResolvedTableName() != "user" || conf.DefaultTTL().Seconds() != 60 {
		t.Errorf("Unexpected namespace %s or ttl %s", conf.ResolvedTableName(), conf.DefaultTTL())
	}
	// viper may lower-case the option keys
	if len(opts.Options) != 1 {
		t.Fatalf("Expected one option, got %v", opts.Options)
	}
	for _, v := range opts.Options {
		if v != "admin" {
			t.Errorf("Expected authSource option, got %v", opts.Options)
		}
	}
}

func TestGetStoreConfigAliases(t *testing.T) {
	tests := []struct {
		name         string
		values       map[string]any
		wantDatabase string
		wantUser     string
		wantPassword string
		wantTable    string
	}{
		{
			name:         "defaults",
			values:       map[string]any{},
			wantDatabase: DefaultDatabase,
			wantTable:    "storage",
		},
		{
			name: "legacy aliases",
			values: map[string]any{
				"keyspace":   "legacy",
				"user":       "alice",
				"pass":       "secret",
				"table_name": "sessions",
			},
			wantDatabase: "legacy",
			wantUser:     "alice",
			wantPassword: "secret",
			wantTable:    "sessions",
		},
		{
			name: "credentials nested in options",
			values: map[string]any{
				"options": map[string]any{"user": "eli", "pass": "pw"},
				"table":   "members",
			},
			wantDatabase: DefaultDatabase,
			wantUser:     "eli",
			wantPassword: "pw",
			wantTable:    "members",
		},
		{
			name: "primary names win over aliases",
			values: map[string]any{
				"database":  "app",
				"keyspace":  "legacy",
				"username":  "umi",
				"user":      "alice",
				"namespace": "users",
				"name":      "ignored",
			},
			wantDatabase: "app",
			wantUser:     "umi",
			wantTable:    "users",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			for k, v := range tt.values {
				viper.Set(k, v)
			}

			conf, err := GetStoreConfig()
			if err != nil {
				t.Fatalf("GetStoreConfig failed: %v", err)
			}
			if got := conf.ResolvedDatabase(); got != tt.wantDatabase {
				t.Errorf("Expected database %q, got %q", tt.wantDatabase, got)
			}
			if got := conf.ResolvedUsername(); got != tt.wantUser {
				t.Errorf("Expected username %q, got %q", tt.wantUser, got)
			}
			if got := conf.ResolvedPassword(); got != tt.wantPassword {
				t.Errorf("Expected password %q, got %q", tt.wantPassword, got)
			}
			if got := conf.ResolvedTableName(); got != tt.wantTable {
				t.Errorf("Expected table %q, got %q", tt.wantTable, got)
			}
		})
	}
}

func TestGetStoreConfigEnvAliases(t *testing.T) {
	viper.Reset()
	t.Setenv("DOCKV_KEYSPACE", "from_env")
	t.Setenv("DOCKV_TABLE", "env_table")
	InitClientConfig()

	conf, err := GetStoreConfig()
	if err != nil {
		t.Fatalf("GetStoreConfig failed: %v", err)
	}
	if conf.ResolvedDatabase() != "from_env" || conf.ResolvedTableName() != "env_table" {
		t.Errorf("Expected env aliases to be used, got database %q table %q", conf.ResolvedDatabase(), conf.ResolvedTableName())
	}
}
