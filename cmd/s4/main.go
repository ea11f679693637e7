// Command s4 is a thin debugging CLI over the s4 library: open a
// database, add/delete tuples, run a query, force a sync. It deliberately
// stays a few hundred lines — every interesting algorithm lives in
// internal/*, reachable and tested without this CLI — the way the teacher
// keeps cmd/bd as a cobra wrapper around internal/beads rather than
// growing its own logic.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relatedb/s4"
	"github.com/relatedb/s4/internal/config"
	"github.com/relatedb/s4/internal/debug"
)

var (
	dbPath     string
	configPath string
	bIndices   []string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "s4",
	Short: "s4 - embedded media-library metadata database",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetVerbose(verbose)
	},
}

func loadConfig() *s4.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil
	}
	return cfg
}

func openHandle() (*s4.Handle, error) {
	indices := bIndices
	cfg := loadConfig()
	if !rootCmd.PersistentFlags().Changed("b-index") && cfg != nil && len(cfg.BIndices) > 0 {
		indices = cfg.BIndices
	}
	return s4.Open(dbPath, indices, 0, cfg)
}

var addCmd = &cobra.Command{
	Use:   "add <keyA> <valA> <keyB> <valB> <src>",
	Short: "add a tuple and commit",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHandle()
		if err != nil {
			return err
		}
		defer h.Close()

		txn := s4.Begin(h, 0)
		txn.Add(args[0], args[1], args[2], args[3], args[4])
		if !txn.Commit() {
			return fmt.Errorf("s4: commit failed")
		}
		debug.PrintlnNormal("added")
		return nil
	},
}

var delCmd = &cobra.Command{
	Use:   "del <keyA> <valA> <keyB> <valB> <src>",
	Short: "delete a tuple and commit",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHandle()
		if err != nil {
			return err
		}
		defer h.Close()

		txn := s4.Begin(h, 0)
		changed := txn.Del(args[0], args[1], args[2], args[3], args[4])
		if !txn.Commit() {
			return fmt.Errorf("s4: commit failed")
		}
		if changed {
			debug.PrintlnNormal("deleted")
		} else {
			debug.PrintlnNormal("no such tuple")
		}
		return nil
	},
}

var watchSync bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "force a checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHandle()
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Sync(); err != nil {
			return err
		}
		debug.PrintlnNormal("synced")

		if !watchSync || configPath == "" {
			return nil
		}

		ctx := cmd.Context()
		w, err := config.WatchFile(configPath, func(*config.Config) {
			if err := h.Sync(); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				return
			}
			debug.PrintlnNormal("synced (config changed)")
		})
		if err != nil {
			return err
		}
		defer w.Close()

		<-ctx.Done()
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "manage the engine config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "write a starter config file with the engine's defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteStarter(args[0]); err != nil {
			return err
		}
		debug.PrintlnNormal("wrote", args[0])
		return nil
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "s4.db", "database file path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringSliceVar(&bIndices, "b-index", nil, "keys to declare a b-index for")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug tracing")
	syncCmd.Flags().BoolVar(&watchSync, "watch", false, "keep running and re-sync whenever --config changes, until interrupted")

	registerQueryCmd()
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(addCmd, delCmd, queryCmd, syncCmd, configCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
