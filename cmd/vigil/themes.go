package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vigil/internal/theme"
)

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List available greeter themes",
	Long: `List the themes installed in the configured themes directory followed by
the themes bundled with vigil. The active theme is marked with '*'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		renderThemes(os.Stdout, theme.List(cfg.ThemesDir()), cfg.CurrentTheme())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(themesCmd)
}

func renderThemes(w io.Writer, themes []theme.Info, current string) {
	if current == "" {
		current = theme.DefaultThemeName
	}
	for _, t := range themes {
		marker := " "
		if t.Name == current {
			marker = okStyle.Render("*")
		}

		title := t.Title
		if title == "" {
			title = t.Name
		}
		line := fmt.Sprintf("%s %s", marker, headerStyle.Render(title))
		if t.Title != "" && t.Title != t.Name {
			line += " " + labelStyle.Render("("+t.Name+")")
		}
		if t.Bundled {
			line += " " + labelStyle.Render("[bundled]")
		}
		fmt.Fprintln(w, line)

		switch {
		case t.Err != nil:
			fmt.Fprintf(w, "    %s\n", errStyle.Render(t.Err.Error()))
		case t.Description != "":
			fmt.Fprintf(w, "    %s\n", t.Description)
		}
	}
}
