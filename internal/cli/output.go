package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"flinkctl/internal/apperrors"
	"flinkctl/internal/jobmanager"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	headerColor  = color.New(color.Bold)
	runningColor = color.New(color.FgGreen)
	failedColor  = color.New(color.FgRed)
	pendingColor = color.New(color.FgYellow)
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return apperrors.Validation("output", fmt.Sprintf("unknown output format %q (want table, json or yaml)", format))
	}
}

// render writes v as JSON or YAML, or calls table for the table format.
func (a *app) render(v any, table func(w *tabwriter.Writer)) error {
	switch a.output {
	case outputJSON:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
		table(w)
		return w.Flush()
	}
}

// header writes a bold tab-separated header row.
func header(w io.Writer, columns ...string) {
	_, _ = fmt.Fprintln(w, headerColor.Sprint(strings.Join(columns, "\t")))
}

func row(w io.Writer, values ...string) {
	_, _ = fmt.Fprintln(w, strings.Join(values, "\t"))
}

// colorState highlights job and deployment states.
func colorState(state string) string {
	switch strings.ToUpper(state) {
	case string(jobmanager.Running), "SUCCEEDED", string(jobmanager.Finished):
		return runningColor.Sprint(state)
	case string(jobmanager.Failed), string(jobmanager.Failing):
		return failedColor.Sprint(state)
	case string(jobmanager.Created), string(jobmanager.Restarting), string(jobmanager.Cancelling),
		"PENDING", "SAVEPOINTED":
		return pendingColor.Sprint(state)
	default:
		return state
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
