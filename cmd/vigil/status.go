package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/jmylchreest/vigil/internal/lock"
	"github.com/jmylchreest/vigil/internal/state"
)

var statusOpts struct {
	json bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the runtime status of vigild",
	Long: `Show whether vigild is running and what its loop is currently doing.

The status is read from the state file written by vigild on every phase
change. Exit code is 0 when vigild is running and 1 otherwise.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusOpts.json, "json", false,
		"Output the raw status as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := state.Load(cfg.General.StateFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	pid := lock.HolderPID(cfg.LockFile())
	running := processAlive(pid)

	if statusOpts.json {
		if st == nil {
			st = &state.Status{Phase: state.PhaseStopped}
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(st); err != nil {
			return err
		}
	} else {
		renderStatus(os.Stdout, st, running, time.Now())
	}

	if !running {
		os.Exit(1)
	}
	return nil
}

// processAlive reports whether pid names a live process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// renderStatus writes a human-readable status report.
func renderStatus(w io.Writer, st *state.Status, running bool, now time.Time) {
	var b strings.Builder

	b.WriteString(headerStyle.Render("vigild") + " ")
	if running {
		b.WriteString(okStyle.Render("running"))
	} else {
		b.WriteString(errStyle.Render("not running"))
	}
	b.WriteString("\n")

	if st == nil {
		b.WriteString(labelStyle.Render("No status recorded") + "\n")
		fmt.Fprint(w, b.String())
		return
	}

	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-11s", label+":")), value)
	}

	row("PID", fmt.Sprint(st.PID))
	if st.StartedAt > 0 {
		row("Started", humanize.RelTime(time.Unix(st.StartedAt, 0), now, "ago", "from now"))
	}
	row("Phase", st.Phase.String())
	if st.Iteration > 0 {
		row("Iteration", fmt.Sprintf("%d%s", st.Iteration, iterationAge(st.IterationID, now)))
	}
	row("Display", st.Display)
	row("Theme", st.Theme)
	if st.GreeterPID > 0 {
		row("Greeter", fmt.Sprint(st.GreeterPID))
	}
	if st.UpdatedAt > 0 {
		row("Updated", humanize.RelTime(time.Unix(st.UpdatedAt, 0), now, "ago", "from now"))
	}
	if st.Error != "" {
		row("Error", errStyle.Render(st.Error))
	}

	fmt.Fprint(w, b.String())
}

// iterationAge describes when the iteration started, from its ULID.
func iterationAge(id string, now time.Time) string {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (started %s)", humanize.RelTime(ulid.Time(parsed.Time()), now, "ago", "from now"))
}
