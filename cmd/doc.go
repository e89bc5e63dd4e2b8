// Package cmd implements the command-line interface of docKV. It opens a
// connection to the configured document store and runs key-value operations
// against one namespace.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (count, get, set, del, namespaces, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through the environment (DOCKV_<FLAG>, dashes
// replaced by underscores) or a .env / .env.local file.
//
// See dockv -help for a list of all commands.
package cmd
