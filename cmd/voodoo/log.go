package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tblumenau/voodoo-ss-extension/internal/logsink"
	"github.com/tblumenau/voodoo-ss-extension/internal/storage"
)

var clearLog bool

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the persisted diagnostic log",
	Long: `Prints the log lines the daemon has recorded, oldest first.
The daemon must not be running, since it holds the state database open.`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

func init() {
	logCmd.Flags().BoolVar(&clearLog, "clear", false, "empty the log after printing it")
}

func runLog(cmd *cobra.Command, args []string) error {
	store, err := storage.NewDuckStore(appConfig.GetDatabasePath(), logger,
		storage.WithThreads(appConfig.Advanced.DuckDBThreads),
		storage.WithMemoryLimit(appConfig.Advanced.DuckDBMemoryLimit))
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	sink := logsink.New(store, nil, appConfig.Advanced.LogCapacity, logger)
	entries, err := sink.Entries(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintln(out, e.String())
	}
	if clearLog {
		return sink.Clear(ctx)
	}
	return nil
}
