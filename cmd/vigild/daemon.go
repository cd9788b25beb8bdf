package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vigil/internal/config"
	"github.com/jmylchreest/vigil/internal/daemon"
	"github.com/jmylchreest/vigil/internal/display"
	"github.com/jmylchreest/vigil/internal/greeter"
	"github.com/jmylchreest/vigil/internal/lock"
	"github.com/jmylchreest/vigil/internal/session"
	"github.com/jmylchreest/vigil/internal/state"
	"github.com/jmylchreest/vigil/internal/theme"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr, globalOpts.verbose)

	loader := config.NewLoader(globalOpts.configPath)

	// The lock path comes from the startup configuration; later edits to it
	// take effect on the next start.
	startup, startupErr := loader.Load()
	if startupErr != nil {
		startup = config.DefaultConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := daemon.New(daemon.Deps{
		Lock: func() (daemon.Releaser, error) {
			return acquireLock(startup.LockFile(), loader.Path(), startupErr, logger)
		},
		Config:  loader,
		Themes:  theme.NewResolver(logger),
		Display: display.NewXServer(startup.Server, logger),
		NewSession: func(cfg *config.Config) daemon.SessionController {
			return session.NewManager(session.Options{
				Sessions:      cfg.Sessions,
				AutoLogin:     cfg.AutoLogin,
				Authenticator: session.HelperAuthenticator{Path: cfg.Auth.Helper},
				Logger:        logger,
			})
		},
		Greeter: daemon.HostSpawner{Host: greeter.NewHost(logger)},
		State:   state.NewFile(startup.General.StateFile),
		Verbose: globalOpts.verbose,
		Logger:  logger,
	})

	err := orch.Run(ctx)
	switch {
	case err == nil:
		logger.Info("vigild stopped")
		return nil
	case errors.Is(err, daemon.ErrAlreadyRunning):
		return exitError{code: 1}
	case errors.Is(err, daemon.ErrDisplayStart):
		// Already reported at critical level.
		return exitError{code: 1}
	default:
		logger.Error("vigild stopped", "error", err)
		return exitError{code: 1}
	}
}

// acquireLock takes the single-instance lock and only then announces the
// start, so a second instance exits without output.
func acquireLock(path, configPath string, startupErr error, logger *slog.Logger) (daemon.Releaser, error) {
	lk, err := lock.Acquire(path)
	if err != nil {
		return nil, err
	}
	logger.Info("starting vigild", "version", version, "config", configPath)
	if startupErr != nil {
		logger.Debug("startup config unreadable, using default lock and state paths", "error", startupErr)
	}
	return lk, nil
}
