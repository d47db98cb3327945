package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/artifacts"
)

// errCommitted marks a failure after the status line went out. The response
// can no longer carry an error body.
var errCommitted = errors.New("response already committed")

// AttachmentSaver writes a download as an HTTP attachment response.
type AttachmentSaver struct {
	W http.ResponseWriter
}

func (s *AttachmentSaver) Save(_ context.Context, d artifacts.Download) error {
	h := s.W.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Disposition", artifacts.Disposition(d.Filename))
	h.Set("Content-Length", strconv.Itoa(len(d.Data)))
	h.Set(HeaderGenerated, strconv.FormatBool(d.Generated))
	if d.ArchiveURL != "" {
		h.Set(HeaderArtifactURL, d.ArchiveURL)
	}
	s.W.WriteHeader(http.StatusOK)
	if _, err := s.W.Write(d.Data); err != nil {
		return fmt.Errorf("%w: write %s: %v", errCommitted, d.Filename, err)
	}
	return nil
}
