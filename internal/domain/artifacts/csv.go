package artifacts

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

// utf8BOM makes spreadsheet tools detect the encoding of non-ASCII names.
const utf8BOM = "\ufeff"

// GenerateCSV builds a CSV artifact from a canonical result when the remote
// export endpoint cannot serve one. Sections are separated by a blank line.
func GenerateCSV(r analysis.Result, artifactKind string) (Download, error) {
	sections, err := buildSections(r, artifactKind)
	if err != nil {
		return Download{}, err
	}

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	for i, s := range sections {
		if i > 0 {
			if err := w.Write([]string{}); err != nil {
				return Download{}, fmt.Errorf("write csv: %w", err)
			}
		}
		if err := w.Write([]string{s.Title}); err != nil {
			return Download{}, fmt.Errorf("write csv: %w", err)
		}
		if err := w.WriteAll(s.Rows); err != nil {
			return Download{}, fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Download{}, fmt.Errorf("write csv: %w", err)
	}

	return Download{
		Filename:    DefaultFilename(r.AnalysisType, artifactKind, r.SessionID, FormatCSV),
		ContentType: ContentTypeCSV,
		Data:        buf.Bytes(),
		Generated:   true,
	}, nil
}

// Generate dispatches on the output format.
func Generate(r analysis.Result, artifactKind, format string) (Download, error) {
	switch format {
	case "", FormatCSV:
		return GenerateCSV(r, artifactKind)
	case FormatXLSX:
		return GenerateXLSX(r, artifactKind)
	default:
		return Download{}, fmt.Errorf("unsupported export format %q", format)
	}
}
