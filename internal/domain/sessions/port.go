package sessions

import "context"

type Lister interface {
	Sessions(ctx context.Context) ([]Summary, error)
}
