package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vigil/internal/config"
	"github.com/jmylchreest/vigil/internal/greeter"
	"github.com/jmylchreest/vigil/internal/theme"
)

var previewCmd = &cobra.Command{
	Use:   "preview [theme-dir]",
	Short: "Render a theme in a window for testing",
	Long: `Render a greeter theme in a regular window on the current display.

No lock is taken, no display server is started and login or power actions
are disabled. Without an argument the configured theme is previewed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr, globalOpts.verbose)

	cfg, err := config.Load(globalOpts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var d *theme.Descriptor
	if len(args) == 1 {
		d, err = theme.ReadDir(args[0])
	} else {
		resolver := theme.NewResolver(logger)
		resolver.Strict = true
		d, err = resolver.Resolve(cfg.ThemesDir(), cfg.CurrentTheme())
	}
	if err != nil {
		return err
	}

	p := greeter.NewPayload(cfg, os.Getenv("DISPLAY"), nil, d)
	p.Preview = true
	p.Verbose = globalOpts.verbose

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("previewing theme", "theme", d.Name, "path", d.BasePath)
	if code := greeter.Run(ctx, p, logger); code != 0 {
		return exitError{code: code}
	}
	return nil
}
