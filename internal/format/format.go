// Package format renders listings and reports to the output formats the CLI
// supports: JSON, CSV, aligned tables, indented trees, and XLSX workbooks.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hyperjump/partcli/internal/models"
	"github.com/hyperjump/partcli/internal/propagate"
)

// Format selects an output rendering.
type Format string

const (
	JSON  Format = "json"
	CSV   Format = "csv"
	Table Format = "table"
	Tree  Format = "tree"
)

// Parse converts a flag value to a Format.
func Parse(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case JSON:
		return JSON, nil
	case CSV:
		return CSV, nil
	case Table:
		return Table, nil
	case Tree:
		return Tree, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, csv, table, or tree)", s)
	}
}

// WriteJSON writes v as JSON, indented when pretty is set.
func WriteJSON(w io.Writer, v interface{}, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// WriteFoldersTable writes folders as an aligned table.
func WriteFoldersTable(w io.Writer, folders models.FolderList) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, f := range folders {
		fmt.Fprintf(tw, "%d\t%s\n", f.ID, f.Name)
	}
	return tw.Flush()
}

// WriteModelsTable writes models as an aligned table.
func WriteModelsTable(w io.Writer, ms []models.Model) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tFOLDER\tASSEMBLY\tTYPE\tUNITS\tSTATE")
	for _, m := range ms {
		folder := m.FolderName
		if folder == "" {
			folder = fmt.Sprintf("%d", m.FolderID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\t%s\t%s\n",
			m.UUID, m.Name, folder, m.IsAssembly, m.FileType, m.Units, m.State)
	}
	return tw.Flush()
}

// WriteMatchesTable writes match candidates as an aligned table, best first.
func WriteMatchesTable(w io.Writer, matches []models.ModelMatch) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MATCH\tREVERSE\tID\tNAME\tFOLDER")
	for _, m := range matches {
		folder := m.MatchedModel.FolderName
		if folder == "" {
			folder = fmt.Sprintf("%d", m.MatchedModel.FolderID)
		}
		fmt.Fprintf(tw, "%.4f\t%.4f\t%s\t%s\t%s\n",
			m.MatchPercentage, m.ReverseMatchPercentage, m.MatchedModel.UUID, m.MatchedModel.Name, folder)
	}
	return tw.Flush()
}

// WritePropagationTable writes a propagation report as an aligned table with
// a summary line.
func WritePropagationTable(w io.Writer, r *propagate.Report) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MODEL_UUID\tNAME\tOUTCOME\tVALUE\tSCORE\tREASON")
	for _, o := range r.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%s\n",
			o.ModelUUID, o.ModelName, o.Outcome, o.Value, o.Confidence, o.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	mode := "applied"
	if r.DryRun {
		mode = "dry-run"
	}
	_, err := fmt.Fprintf(w, "\n%s pass (%s): %d assigned, %d deleted, %d unchanged, %d skipped, %d failed. Re-run to converge further.\n",
		r.Property, mode, r.Assigned, r.Deleted, r.Unchanged, r.Skipped, r.Failed)
	return err
}
