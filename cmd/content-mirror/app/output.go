package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/resolve"
	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", formatJSON, "Output format (json|table)")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", fmt.Errorf("failed to get output flag: %w", err)
	}
	switch format {
	case formatJSON, formatTable:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q, expected json or table", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecords(w io.Writer, records []content.Record, format string) error {
	if format == formatJSON {
		if records == nil {
			records = []content.Record{}
		}
		return printJSON(w, records)
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Type", "Content Type", "Fields")
	for _, r := range records {
		if err := table.Append([]string{r.ID, string(r.Kind), r.ContentType, fieldNames(r.Fields)}); err != nil {
			return err
		}
	}
	return table.Render()
}

func printResolved(w io.Writer, records []resolve.ResolvedRecord, format string) error {
	if format == formatJSON {
		if records == nil {
			records = []resolve.ResolvedRecord{}
		}
		return printJSON(w, records)
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Content Type", "Fields", "Unresolved")
	for _, r := range records {
		var unresolved []string
		for _, u := range r.Unresolved() {
			unresolved = append(unresolved, fmt.Sprintf("%s (%s)", u.Link, u.Reason))
		}

		row := []string{r.ID, r.ContentType, fieldNames(r.Fields), strings.Join(unresolved, ", ")}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func printSyncResult(w io.Writer, result *mirrorsync.Result, format string) error {
	if format == formatJSON {
		return printJSON(w, result)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Round", "Cursor", "Initial", "No-op", "Entries +/-", "Assets +/-", "Duration")
	row := []string{
		result.RoundID,
		result.Cursor,
		strconv.FormatBool(result.Initial),
		strconv.FormatBool(result.NoOp),
		fmt.Sprintf("%d/%d", result.EntriesUpserted, result.EntriesDeleted),
		fmt.Sprintf("%d/%d", result.AssetsUpserted, result.AssetsDeleted),
		result.Duration.String(),
	}
	if err := table.Append(row); err != nil {
		return err
	}
	return table.Render()
}

// fieldNames lists the field names of a record, sorted
func fieldNames[V any](fields map[string]V) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
