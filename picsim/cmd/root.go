// Package cmd provides the command-line interface of picsim.
package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// Environment variables that provide flag defaults.
const (
	EnvTraceDB         = "PICSIM_TRACE_DB"
	EnvTraceJSON       = "PICSIM_TRACE_JSON"
	EnvMonitorPort     = "PICSIM_MONITOR_PORT"
	EnvCheckpointCodec = "PICSIM_CHECKPOINT_CODEC"
)

var envFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "picsim",
		Short: "picsim simulates priority interrupt controllers.",
		Long: `picsim runs scripted scenarios against chains of 8-level ` +
			`priority interrupt controllers, records what the processor ` +
			`observes and inspects the checkpoints taken along the way.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnv(envFile)
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "",
		"Load environment variables from this file instead of ./.env")

	root.AddCommand(newRunCmd(), newInspectCmd(), newVersionCmd())

	return root
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

// loadEnv loads the given file, or ./.env if it exists. Variables already set
// in the environment win.
func loadEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}

	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// flagFromEnv sets a flag from the environment unless it was given on the
// command line.
func flagFromEnv(cmd *cobra.Command, flag, key string) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}

	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}

	return cmd.Flags().Set(flag, value)
}
