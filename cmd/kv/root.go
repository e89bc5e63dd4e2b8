package kv

import (
	"os"

	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	Logger = logger.GetLogger("cmd")

	adapter *store.Adapter
	kvStore store.IStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: teardownKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add connection flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().Bool("json", false, util.WrapString("Parse keys and values as JSON literals (e.g. 1, true, {\"a\":1}) instead of plain strings"))

	// Add subcommands
	KeyValueCommands.AddCommand(countCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(namespacesCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects the adapter and resolves the configured namespace
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	driver, err := util.GetDriver()
	if err != nil {
		return err
	}

	config, err := util.GetStoreConfig()
	if err != nil {
		return err
	}
	adapter = store.New(config, store.WithDriver(driver))
	Logger.Debugf("using %s with configuration:%s", driver.Implementation(), config)

	ctx, cancel := util.Context()
	defer cancel()

	if err := adapter.Connect(ctx).Err(); err != nil {
		return err
	}

	kvStore, err = adapter.Storage(ctx, config.ResolvedTableName())
	return err
}

// teardownKVClient closes the connection and prints the metrics if requested
func teardownKVClient(_ *cobra.Command, _ []string) error {
	if adapter == nil {
		return nil
	}

	ctx, cancel := util.Context()
	defer cancel()

	if err := adapter.Disconnect(ctx).Err(); err != nil {
		return err
	}

	if viper.GetBool("metrics") {
		adapter.WriteMetrics(os.Stdout)
	}
	return nil
}
