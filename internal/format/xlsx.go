package format

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/partcli/internal/matchgraph"
)

const duplicateSheet = "Duplicates"

// WriteDuplicateXLSX writes the duplicate report as an XLSX workbook with one
// sheet, same column set as the CSV export.
func WriteDuplicateXLSX(w io.Writer, rows []matchgraph.DuplicateRow) error {
	metas := make([]map[string]string, len(rows))
	for i, r := range rows {
		metas[i] = r.Metadata
	}
	metaCols := metadataColumns(metas)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", duplicateSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := append(append([]string(nil), duplicateHeader...), metaCols...)
	writeRow := func(rowNum int, values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		return f.SetSheetRow(duplicateSheet, cell, &values)
	}

	headerVals := make([]interface{}, len(header))
	for i, h := range header {
		headerVals[i] = h
	}
	if err := writeRow(1, headerVals); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range rows {
		values := []interface{}{
			r.SourceName, r.SourceUUID.String(), r.SourceFolder,
			r.MatchName, r.MatchUUID.String(), r.MatchFolder,
			r.Forward, r.Reverse,
		}
		for _, k := range metaCols {
			values = append(values, r.Metadata[k])
		}
		if err := writeRow(i+2, values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
