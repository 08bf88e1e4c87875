package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "devpool",
	Short:         "Mirror priced partner issues into the DevPool directory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		log := clog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		cmd.SetContext(clog.WithLogger(cmd.Context(), log))
	}
	rootCmd.AddCommand(syncCmd, serveCmd, statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "devpool: %v", err)
	}
}
