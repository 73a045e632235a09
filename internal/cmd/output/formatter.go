// Package output renders reconciliation results for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ctxkeep/ctxkeep/pkg/reconciler"
)

// Format types for output.
type Format string

const (
	// FormatTable represents table output format.
	FormatTable Format = "table"
	// FormatJSON represents JSON output format.
	FormatJSON Format = "json"
	// FormatYAML represents YAML output format.
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatYAML:
		return Format(s), nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json, or yaml)", s)
}

// titleCaser renders change types and headers for table output.
var titleCaser = cases.Title(language.English)

// WriteReport renders a pass's change report in the requested format.
func WriteReport(w io.Writer, result *reconciler.Result, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, reportDocument(result))
	case FormatYAML:
		return writeYAML(w, reportDocument(result))
	default:
		return writeTable(w, result)
	}
}

// reportDocument is the structured form of a pass result.
func reportDocument(result *reconciler.Result) map[string]any {
	doc := map[string]any{
		"summary": result.Summary(),
		"dry_run": result.DryRun,
		"force":   result.Force,
		"changes": result.Report(),
	}
	if failed := result.FailedKinds(); len(failed) > 0 {
		failures := make(map[string]string)
		for _, kr := range result.Kinds {
			if kr.Err != nil {
				failures[kr.Kind.String()] = kr.Err.Error()
			}
		}
		doc["failures"] = failures
	}
	if len(result.Warnings) > 0 {
		doc["warnings"] = result.Warnings
	}
	return doc
}

func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func writeYAML(w io.Writer, data any) error {
	yamlData, err := yaml.MarshalWithOptions(data,
		yaml.Indent(2),
		yaml.IndentSequence(false),
	)
	if err != nil {
		return err
	}
	_, err = w.Write(yamlData)
	return err
}

func writeTable(w io.Writer, result *reconciler.Result) error {
	entries := result.Report()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No changes.")
	} else {
		table := tablewriter.NewTable(w)
		table.Header("File", "Field", "Change", "Value", "Reason")
		for _, entry := range entries {
			if err := table.Append(
				entry.File,
				entry.Field,
				titleCaser.String(string(entry.Type)),
				changeValue(entry),
				entry.Reason,
			); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	for _, kr := range result.Kinds {
		if kr.Err != nil {
			fmt.Fprintf(w, "failed: %s: %v\n", kr.Kind, kr.Err)
		}
	}
	fmt.Fprintln(w, result.Summary())
	return nil
}

// changeValue renders the value column: old -> new for modifications, the
// surviving value otherwise.
func changeValue(entry reconciler.ReportEntry) string {
	switch {
	case entry.OldValue != nil && entry.NewValue != nil:
		return fmt.Sprintf("%s -> %s", compact(entry.OldValue), compact(entry.NewValue))
	case entry.NewValue != nil:
		return compact(entry.NewValue)
	case entry.OldValue != nil:
		return compact(entry.OldValue)
	}
	return ""
}

const maxValueWidth = 48

// compact renders an arbitrary field value on one bounded line.
func compact(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	default:
		data, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(data)
		}
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxValueWidth {
		s = s[:maxValueWidth-3] + "..."
	}
	return s
}
