package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vigil/internal/greeter"
)

// greeterCmd is the child side of the greeter host. It is started by vigild
// itself with the payload on an inherited descriptor.
var greeterCmd = &cobra.Command{
	Use:    greeter.DefaultCommand,
	Short:  "Run a greeter (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runGreeter,
}

func init() {
	rootCmd.AddCommand(greeterCmd)
}

func runGreeter(cmd *cobra.Command, args []string) error {
	p, err := greeter.OpenPayload()
	if err != nil {
		return fmt.Errorf("failed to read greeter payload: %w", err)
	}

	logger := newLogger(os.Stderr, globalOpts.verbose || p.Verbose).With("greeter", os.Getpid())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := greeter.Run(ctx, p, logger); code != 0 {
		return exitError{code: code}
	}
	return nil
}
