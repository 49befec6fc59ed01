package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lazaret/lazaret/internal/engine"
)

var restoreFlags struct {
	storeConfig
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id> <dest-dir>",
	Short: "Restore a quarantined file",
	Long: `Copy a quarantined file into the destination directory under a
restored_ prefixed name and move the record to the restored status.
The quarantined copy is retained until its retention elapses.`,
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	addStoreFlags(restoreCmd, &restoreFlags.storeConfig)
}

func runRestore(cmd *cobra.Command, args []string) error {
	restoreFlags.apply(cfg)

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("record id %q is not a number", args[0])
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	eng := engine.New(engine.Config{
		Store:  st,
		Logger: logger,
	})

	destPath, err := eng.Restore(context.Background(), id, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Record %d restored to %s\n", id, destPath)
	return nil
}
