package artifacts

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
)

// Artifact kinds the export endpoints and the local generator understand.
const (
	KindResults     = "results"
	KindLoadings    = "loadings"
	KindEigenvalues = "eigenvalues"
	KindVariance    = "variance"
	KindScores      = "scores"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrInconsistentResult is returned when a canonical result cannot be laid
// out as a table (ragged matrices, mismatched vector lengths, nothing to
// export). No file is produced in that case.
var ErrInconsistentResult = errors.New("analysis result is structurally inconsistent")

// KnownKinds lists the artifact kinds accepted by the download route.
func KnownKinds() []string {
	return []string{KindResults, KindLoadings, KindEigenvalues, KindVariance, KindScores}
}

// Download is a file ready to hand to a Saver.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
	// Generated is true when the bytes were produced locally because the
	// remote export endpoint was unavailable.
	Generated bool
	// ArchiveURL is set when the generated file was archived to object storage.
	ArchiveURL string
}

// DefaultFilename builds {analysisType}_{artifactKind}_{sessionId}.{ext}.
func DefaultFilename(analysisType, artifactKind string, sessionID int64, ext string) string {
	if ext == "" {
		ext = FormatCSV
	}
	return fmt.Sprintf("%s_%s_%d.%s", analysisType, artifactKind, sessionID, ext)
}

// FilenameFromDisposition extracts the filename parameter of a
// Content-Disposition header. Path components are stripped.
func FilenameFromDisposition(header string) (string, bool) {
	if strings.TrimSpace(header) == "" {
		return "", false
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}
	name := strings.TrimSpace(params["filename"])
	if name == "" {
		return "", false
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "", false
	}
	return name, true
}

// Disposition renders an attachment header for a filename. Non-ASCII names
// get an RFC 5987 filename* parameter next to an ASCII fallback.
func Disposition(filename string) string {
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	h := fmt.Sprintf(`attachment; filename="%s"`, ascii)
	if ascii != filename {
		h += "; filename*=UTF-8''" + url.PathEscape(filename)
	}
	return h
}

// Saver delivers a finished download somewhere: an HTTP response, a file on
// disk. Generation never depends on how the bytes are saved.
type Saver interface {
	Save(ctx context.Context, d Download) error
}
