package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/ports"
)

// HTTPCSVLoader fetches a date range from any HTTP endpoint that serves CSV
// rows with a date column. The requested range and the feed's params are
// passed as query parameters; rows outside the range are dropped locally so
// sloppy sources still produce a well-formed result.
type HTTPCSVLoader struct {
	endpoint string
	client   *http.Client
}

// NewHTTPCSVLoader creates a loader for the given endpoint URL
func NewHTTPCSVLoader(endpoint string, client *http.Client) *HTTPCSVLoader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPCSVLoader{
		endpoint: endpoint,
		client:   client,
	}
}

func (l *HTTPCSVLoader) Fetch(ctx context.Context, req ports.FetchRequest) (*series.Table, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse loader endpoint: %w", err)
	}

	q := u.Query()
	if !req.Start.IsZero() {
		q.Set("start", req.Start.Format(series.DateLayout))
	}
	if !req.End.IsZero() {
		q.Set("end", req.End.Format(series.DateLayout))
	}
	for k, v := range req.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build loader request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/csv")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("loader request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loader request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read loader response: %w", err)
	}

	table, err := series.DecodeCSV(body)
	if err != nil {
		return nil, fmt.Errorf("decode loader response: %w", err)
	}

	return clipRange(table, req.Start, req.End), nil
}

// clipRange drops records outside [start, end]. Zero bounds are open.
func clipRange(t *series.Table, start, end time.Time) *series.Table {
	if t.IsEmpty() {
		return t
	}

	out := series.New(t.Columns...)
	var startDay, endDay time.Time
	if !start.IsZero() {
		startDay = series.Day(start)
	}
	if !end.IsZero() {
		endDay = series.Day(end)
	}

	for _, rec := range t.Records {
		if !startDay.IsZero() && rec.Date.Before(startDay) {
			continue
		}
		if !endDay.IsZero() && rec.Date.After(endDay) {
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}
