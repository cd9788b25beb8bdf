package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vigil/internal/model"
	"github.com/jmylchreest/vigil/internal/theme"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and the active theme",
	Long: `Validate the configuration file and resolve the active theme without the
fallback to the bundled default, so a broken theme is reported instead of
silently replaced. The sessions directory is checked as well.`,
	Args: cobra.NoArgs,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	// The configuration itself was loaded and validated by the root command.
	fmt.Printf("%s configuration\n", okStyle.Render("ok"))

	resolver := theme.NewResolver(logger)
	resolver.Strict = true
	d, err := resolver.Resolve(cfg.ThemesDir(), cfg.CurrentTheme())
	if err != nil {
		fmt.Printf("%s theme: %v\n", errStyle.Render("error"), err)
		return err
	}
	if _, err := d.ReadMainScript(); err != nil {
		fmt.Printf("%s theme %s: %v\n", errStyle.Render("error"), d.Name, err)
		return err
	}
	source := d.BasePath
	if d.Embedded {
		source = "bundled"
	}
	fmt.Printf("%s theme %s (%s)\n", okStyle.Render("ok"), d.Name, source)

	sessions, err := model.LoadSessions(cfg.Sessions.Dir, logger)
	switch {
	case err != nil:
		fmt.Printf("%s sessions: %v\n", errStyle.Render("warning"), err)
	case len(sessions) == 0:
		fmt.Printf("%s sessions: none found in %s\n", errStyle.Render("warning"), cfg.Sessions.Dir)
	default:
		fmt.Printf("%s %d sessions\n", okStyle.Render("ok"), len(sessions))
	}

	if cfg.AutoUser() != "" {
		if _, err := model.LookupUser(model.PasswdPath, cfg.AutoUser()); err != nil {
			fmt.Printf("%s auto-login user %q: %v\n", errStyle.Render("error"), cfg.AutoUser(), err)
			return err
		}
		fmt.Printf("%s auto-login user %s\n", okStyle.Render("ok"), cfg.AutoUser())
	}
	return nil
}
