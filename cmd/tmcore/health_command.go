package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"tmcore/internal/sqlitedb"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check TM and snapshot database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := ctx.tmStore()
			if err != nil {
				return err
			}
			snaps, err := ctx.snapshotStore()
			if err != nil {
				return err
			}
			tmHealth, err := tm.Health(cmd.Context())
			if err != nil {
				return err
			}
			snapHealth, err := snaps.Health(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]sqlitedb.Health{"tm": tmHealth, "snapshots": snapHealth})
			}

			report := newHealthReport(cmd.OutOrStdout())
			report.section("Translation memory", tmHealth)
			report.section("Snapshots", snapHealth)
			return nil
		},
	}
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiBlue   = "\x1b[34m"
	labelWidth = 12
)

// healthReport prints labelled check lines, colored only on a terminal.
type healthReport struct {
	out   io.Writer
	color bool
}

func newHealthReport(out io.Writer) healthReport {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return healthReport{out: out, color: color}
}

func (r healthReport) section(title string, h sqlitedb.Health) {
	heading := "== " + title + " =="
	r.println(ansiBlue, heading)
	r.println(ansiBlue, strings.Repeat("-", len(heading)))
	r.check("Database", "", h.DBPath)
	r.check("Readable", verdict(h.DatabaseReadable), yesNo(h.DatabaseReadable))
	r.check("Schema", "", h.SchemaVersion)
	r.check("Integrity", verdict(h.Integrity == "ok"), h.Integrity)
	r.check("Tables", "", strconv.Itoa(len(h.Tables)))
	if h.Error != "" {
		r.check("Error", "ERROR", h.Error)
	}
	fmt.Fprintln(r.out)
}

// check prints one line; an empty status is informational.
func (r healthReport) check(label, status, message string) {
	color := ansiBlue
	switch status {
	case "OK":
		color = ansiGreen
	case "ERROR":
		color = ansiRed
	case "":
		status = "INFO"
	}
	r.println(color, fmt.Sprintf("  %-*s [%s] %s", labelWidth, label+":", status, message))
}

func (r healthReport) println(color, line string) {
	if r.color {
		line = color + line + ansiReset
	}
	fmt.Fprintln(r.out, line)
}

func verdict(ok bool) string {
	if ok {
		return "OK"
	}
	return "ERROR"
}
