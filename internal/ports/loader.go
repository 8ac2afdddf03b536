package ports

import (
	"context"
	"time"

	"github.com/feedvault/core/internal/domain/series"
)

// FetchRequest describes the range a loader should fetch. End is the "as of"
// bound; a zero Start means "from the source's earliest available history".
// Params carries source-specific options (ticker symbols, series IDs) that
// the engine passes through untouched.
type FetchRequest struct {
	Start  time.Time
	End    time.Time
	Params map[string]string
}

// Loader is the capability presented by every source adapter: fetch rows for
// a date range. Implementations must be safe to call with a Start in the
// future (they return an empty table) and must include a date per row plus
// source-specific value fields. One interface covers price series, macro
// composites and symbol directories alike.
type Loader interface {
	Fetch(ctx context.Context, req FetchRequest) (*series.Table, error)
}

// LoaderFunc adapts a plain function to the Loader interface.
type LoaderFunc func(ctx context.Context, req FetchRequest) (*series.Table, error)

// Fetch calls the wrapped function.
func (f LoaderFunc) Fetch(ctx context.Context, req FetchRequest) (*series.Table, error) {
	return f(ctx, req)
}
