package analysis

import (
	"context"
	"io"
)

// Upload is the input file of an analyze call.
type Upload struct {
	Filename string
	Data     io.Reader
}

// Source is the remote analytics service as the reconciler sees it.
type Source interface {
	Analyze(ctx context.Context, rc RequestContext, up Upload) (Envelope, error)
	SessionDetail(ctx context.Context, id int64) (Envelope, error)
}
