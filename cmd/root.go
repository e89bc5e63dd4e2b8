package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/docKV/cmd/kv"
	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dockv",
		Short: "key-value storage on document databases",
		Long: fmt.Sprintf(`docKV (v%s)

A key-value storage adapter written in Go that keeps namespaced
key-value records in MongoDB, SQLite or an in-process document store.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of docKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("docKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("Log level (debug, info, warn, error)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("Optional config file (yaml, json or toml), flags and environment variables take precedence"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
