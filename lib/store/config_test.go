package store

import (
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{}
	if c.ResolvedHost() != "localhost" {
		t.Errorf("Expected default host localhost, got %s", c.ResolvedHost())
	}
	if c.ResolvedPort() != 27017 {
		t.Errorf("Expected default port 27017, got %d", c.ResolvedPort())
	}
	if c.ResolvedTableName() != "storage" {
		t.Errorf("Expected default table name storage, got %s", c.ResolvedTableName())
	}
	if c.DefaultTTL() != 0 {
		t.Errorf("Expected ttl disabled, got %s", c.DefaultTTL())
	}
}

func TestConfigAliases(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantDatabase string
		wantUser     string
		wantPassword string
		wantTable    string
	}{
		{
			name:         "primary fields win",
			cfg:          Config{Database: "db", Keyspace: "ks", Username: "u1", User: "u3", Password: "p1", Pass: "p3", Name: "n", Table: "t", TableName: "tn", Options: map[string]any{"username": "u2", "user": "u4", "password": "p2", "pass": "p4"}},
			wantDatabase: "db", wantUser: "u1", wantPassword: "p1", wantTable: "n",
		},
		{
			name:         "options before legacy fields",
			cfg:          Config{Keyspace: "ks", User: "u3", Pass: "p3", Table: "t", TableName: "tn", Options: map[string]any{"username": "u2", "user": "u4", "password": "p2", "pass": "p4"}},
			wantDatabase: "ks", wantUser: "u2", wantPassword: "p2", wantTable: "t",
		},
		{
			name:         "legacy fields before legacy options",
			cfg:          Config{User: "u3", Pass: "p3", TableName: "tn", Options: map[string]any{"user": "u4", "pass": "p4"}},
			wantDatabase: "", wantUser: "u3", wantPassword: "p3", wantTable: "tn",
		},
		{
			name:         "legacy options last",
			cfg:          Config{Options: map[string]any{"user": "u4", "pass": "p4"}},
			wantDatabase: "", wantUser: "u4", wantPassword: "p4", wantTable: "storage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolvedDatabase(); got != tt.wantDatabase {
				t.Errorf("database: expected %q, got %q", tt.wantDatabase, got)
			}
			if got := tt.cfg.ResolvedUsername(); got != tt.wantUser {
				t.Errorf("username: expected %q, got %q", tt.wantUser, got)
			}
			if got := tt.cfg.ResolvedPassword(); got != tt.wantPassword {
				t.Errorf("password: expected %q, got %q", tt.wantPassword, got)
			}
			if got := tt.cfg.ResolvedTableName(); got != tt.wantTable {
				t.Errorf("table: expected %q, got %q", tt.wantTable, got)
			}
		})
	}
}

func TestConfigConnectOptions(t *testing.T) {
	c := Config{
		Host:     "db.local",
		Port:     27018,
		Keyspace: "app",
		User:     "admin",
		Options:  map[string]any{"replicaSet": "rs0", "pass": "secret", "Username": "ignored"},
	}

	opts := c.ConnectOptions()
	if opts.Host != "db.local" || opts.Port != 27018 || opts.Database != "app" {
		t.Errorf("Unexpected address %+v", opts)
	}
	if opts.Username != "admin" || opts.Password != "secret" {
		t.Errorf("Expected resolved credentials admin/secret, got %s/%s", opts.Username, opts.Password)
	}
	if len(opts.Options) != 1 || opts.Options["replicaSet"] != "rs0" {
		t.Errorf("Expected only replicaSet to be passed on, got %v", opts.Options)
	}
	if _, ok := c.Options["pass"]; !ok {
		t.Errorf("Expected the config options to stay untouched")
	}
}

func TestConfigTTL(t *testing.T) {
	if ttl := (Config{TTL: 90}).DefaultTTL(); ttl != 90*time.Second {
		t.Errorf("Expected 90s, got %s", ttl)
	}
	if ttl := (Config{TTL: -1}).DefaultTTL(); ttl != 0 {
		t.Errorf("Expected negative ttl to disable expiry, got %s", ttl)
	}
}

func TestConfigString(t *testing.T) {
	c := Config{Database: "app", Username: "admin", Password: "secret", TTL: 60, Options: map[string]any{"pass": "other", "replicaSet": "rs0"}}
	out := c.String()

	if strings.Contains(out, "secret") || strings.Contains(out, "other") {
		t.Errorf("Expected passwords to be masked, got:\n%s", out)
	}
	for _, want := range []string{"CONNECTION", "localhost", "app", "admin", "replicaSet", "rs0", "1m0s", "storage"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in config report, got:\n%s", want, out)
		}
	}
}
