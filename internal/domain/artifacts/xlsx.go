package artifacts

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

// GenerateXLSX lays the same sections out as a workbook, one sheet each.
// Numeric cells are written as numbers so spreadsheets can sort them.
func GenerateXLSX(r analysis.Result, artifactKind string) (Download, error) {
	sections, err := buildSections(r, artifactKind)
	if err != nil {
		return Download{}, err
	}

	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	for i, s := range sections {
		name := s.Title
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return Download{}, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return Download{}, fmt.Errorf("add sheet %s: %w", name, err)
		}
		for y, row := range s.Rows {
			cells := make([]any, len(row))
			for x, v := range row {
				cells[x] = cellValue(v, y == 0 || x == 0)
			}
			axis, err := excelize.CoordinatesToCellName(1, y+1)
			if err != nil {
				return Download{}, err
			}
			if err := f.SetSheetRow(name, axis, &cells); err != nil {
				return Download{}, fmt.Errorf("write sheet %s: %w", name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Download{}, fmt.Errorf("write xlsx: %w", err)
	}
	return Download{
		Filename:    DefaultFilename(r.AnalysisType, artifactKind, r.SessionID, FormatXLSX),
		ContentType: ContentTypeXLSX,
		Data:        buf.Bytes(),
		Generated:   true,
	}, nil
}

func cellValue(v string, label bool) any {
	if label || v == "" {
		return v
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}
