package format

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/hyperjump/partcli/internal/assembly"
	"github.com/hyperjump/partcli/internal/matchgraph"
	"github.com/hyperjump/partcli/internal/models"
	"github.com/hyperjump/partcli/internal/propagate"
)

// newCSV returns a CSV writer with CRLF line endings, matching the
// platform's other CSV surfaces.
func newCSV(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	return cw
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// WriteFoldersCSV writes folders as CSV.
func WriteFoldersCSV(w io.Writer, folders models.FolderList) error {
	cw := newCSV(w)
	if err := cw.Write([]string{"ID", "NAME"}); err != nil {
		return err
	}
	for _, f := range folders {
		if err := cw.Write([]string{strconv.FormatUint(uint64(f.ID), 10), f.Name}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// metadataColumns returns the sorted union of metadata keys across rows.
func metadataColumns(metas []map[string]string) []string {
	seen := make(map[string]bool)
	for _, m := range metas {
		for k := range m {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteModelsCSV writes models as CSV. Metadata maps, when present, become
// extra columns in sorted key order.
func WriteModelsCSV(w io.Writer, ms []models.Model) error {
	metas := make([]map[string]string, len(ms))
	for i, m := range ms {
		metas[i] = m.Metadata
	}
	metaCols := metadataColumns(metas)

	cw := newCSV(w)
	header := []string{"ID", "NAME", "FOLDER_ID", "IS_ASSEMBLY", "FILE_TYPE", "UNITS", "STATE"}
	header = append(header, metaCols...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, m := range ms {
		row := []string{
			m.UUID.String(), m.Name,
			strconv.FormatUint(uint64(m.FolderID), 10),
			strconv.FormatBool(m.IsAssembly),
			m.FileType, m.Units, m.State,
		}
		for _, k := range metaCols {
			row = append(row, m.Metadata[k])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatchesCSV writes match candidates as CSV.
func WriteMatchesCSV(w io.Writer, matches []models.ModelMatch) error {
	cw := newCSV(w)
	header := []string{"MATCH_PERCENTAGE", "REVERSE_MATCH_PERCENTAGE", "ID", "NAME", "FOLDER_ID"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, m := range matches {
		row := []string{
			score(m.MatchPercentage), score(m.ReverseMatchPercentage),
			m.MatchedModel.UUID.String(), m.MatchedModel.Name,
			strconv.FormatUint(uint64(m.MatchedModel.FolderID), 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// duplicateHeader is the fixed part of the duplicate report column set.
var duplicateHeader = []string{
	"MODEL_NAME", "MODEL_UUID", "FOLDER",
	"MATCH_NAME", "MATCH_UUID", "MATCH_FOLDER",
	"FORWARD", "REVERSE",
}

// WriteDuplicateCSV writes the duplicate report. Source metadata, when rows
// carry any, becomes extra columns in sorted key order.
func WriteDuplicateCSV(w io.Writer, rows []matchgraph.DuplicateRow) error {
	metas := make([]map[string]string, len(rows))
	for i, r := range rows {
		metas[i] = r.Metadata
	}
	metaCols := metadataColumns(metas)

	cw := newCSV(w)
	header := append(append([]string(nil), duplicateHeader...), metaCols...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			r.SourceName, r.SourceUUID.String(), r.SourceFolder,
			r.MatchName, r.MatchUUID.String(), r.MatchFolder,
			score(r.Forward), score(r.Reverse),
		}
		for _, k := range metaCols {
			row = append(row, r.Metadata[k])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePropagationCSV writes a propagation report as CSV.
func WritePropagationCSV(w io.Writer, r *propagate.Report) error {
	cw := newCSV(w)
	if err := cw.Write([]string{"MODEL_UUID", "NAME", "OUTCOME", "VALUE", "MATCH_SCORE", "REASON"}); err != nil {
		return err
	}
	for _, o := range r.Outcomes {
		row := []string{
			o.ModelUUID.String(), o.ModelName, string(o.Outcome),
			o.Value, score(o.Confidence), o.Reason,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBOMCSV writes a flattened bill of materials as CSV.
func WriteBOMCSV(w io.Writer, lines []assembly.BOMLine) error {
	cw := newCSV(w)
	if err := cw.Write([]string{"COUNT", "UUID", "NAME", "FOLDER"}); err != nil {
		return err
	}
	for _, l := range lines {
		row := []string{fmt.Sprintf("%d", l.Count), l.Node.UUID.String(), l.Node.Name, l.Node.FolderName}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
