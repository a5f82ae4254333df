package sandbox

import (
	"fmt"
	"strings"

	"github.com/blindmansion/sandlot/pkg/bundler"
	"github.com/blindmansion/sandlot/pkg/typecheck"
)

// formatDiagnostics renders diagnostics for a human terminal:
// SEVERITY: file:line:col: message.
func formatDiagnostics(diags []typecheck.Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		b.WriteString(strings.ToUpper(string(d.Severity)))
		b.WriteString(": ")
		if d.File != "" {
			b.WriteString(d.File)
			if d.Line > 0 {
				fmt.Fprintf(&b, ":%d:%d", d.Line, d.Column)
			}
			b.WriteString(": ")
		}
		b.WriteString(d.Message)
		b.WriteByte('\n')
	}
	return b.String()
}

// formatBundleErrors renders bundle errors with the offending source
// line and a caret pointing at the column.
func formatBundleErrors(errs []bundler.Error) string {
	var b strings.Builder
	for _, e := range errs {
		b.WriteString("ERROR: ")
		if e.File != "" {
			fmt.Fprintf(&b, "%s:%d:%d: ", e.File, e.Line, e.Column)
		}
		b.WriteString(e.Text)
		b.WriteByte('\n')
		if e.LineText != "" {
			fmt.Fprintf(&b, "  %s\n", e.LineText)
			if e.Column > 0 {
				fmt.Fprintf(&b, "  %s^\n", strings.Repeat(" ", e.Column-1))
			}
		}
	}
	return b.String()
}

// formatWarnings renders bundle warnings in the diagnostic style.
func formatWarnings(warnings []bundler.Warning) string {
	var b strings.Builder
	for _, w := range warnings {
		b.WriteString("WARNING: ")
		if w.File != "" {
			fmt.Fprintf(&b, "%s:%d:%d: ", w.File, w.Line, w.Column)
		}
		b.WriteString(w.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
