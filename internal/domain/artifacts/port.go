package artifacts

import (
	"context"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

// Exporter is the remote typed download endpoint.
type Exporter interface {
	Export(ctx context.Context, kind analysis.Kind, artifact string, id int64) (Download, error)
}

// Archive keeps a copy of locally generated files and returns where.
type Archive interface {
	Put(ctx context.Context, key string, d Download) (string, error)
}
