package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	tscalias "github.com/ThomasWhyne/tsc-alias"
)

var validFormats = []string{"json", "text"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

// writeReport prints the run summary in format. The warnings and errors
// among diags and runErr are included in the JSON envelope; text output
// leaves them to the logger and the caller.
func writeReport(w io.Writer, format, project string, rep tscalias.Report, diags []tscalias.Diagnostic, runErr error) error {
	if format == "json" {
		out := CLIReport{
			Project:             project,
			FilesScanned:        rep.FilesScanned,
			FilesChanged:        rep.FilesChanged,
			FilesSkipped:        rep.FilesSkipped,
			SpecifiersRewritten: rep.SpecifiersRewritten,
			Diagnostics:         rep.Diagnostics,
			DurationMS:          rep.Duration.Milliseconds(),
		}
		for _, d := range diags {
			if d.Level < tscalias.LevelWarn {
				continue
			}
			out.Problems = append(out.Problems, CLIDiagnostic{
				Level:     d.Level.String(),
				Code:      d.Code,
				File:      d.File,
				Specifier: d.Specifier,
				Message:   d.Message,
			})
		}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	formatReportText(w, rep)
	return nil
}

// formatReportText formats a Report as a one-line summary.
func formatReportText(w io.Writer, rep tscalias.Report) {
	fmt.Fprintf(w, "Rewrote %d specifier(s) in %d of %d file(s)", rep.SpecifiersRewritten, rep.FilesChanged, rep.FilesScanned)
	if rep.FilesSkipped > 0 {
		fmt.Fprintf(w, ", %d unchanged since last run", rep.FilesSkipped)
	}
	if rep.Diagnostics > 0 {
		fmt.Fprintf(w, ", %d warning(s)", rep.Diagnostics)
	}
	fmt.Fprintf(w, " in %s\n", rep.Duration.Round(time.Millisecond))
}
