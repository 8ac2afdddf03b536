package feeds

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/feedvault/core/internal/adapters/loader"
	"github.com/feedvault/core/internal/application/sync"
	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/config"
	"github.com/feedvault/core/internal/ports"
)

// Feed binds a dataset key to the loader that backs it and the refresh
// policy its consumer chose. A monthly macro composite might carry a 7-day
// cooldown; an intraday price series a near-zero one.
type Feed struct {
	Key      string
	Loader   ports.Loader
	Cooldown time.Duration
	Start    time.Time
	Params   map[string]string
}

// Request converts the feed into a sync engine request.
func (f *Feed) Request() sync.Request {
	return sync.Request{
		Key:      f.Key,
		Loader:   f.Loader,
		Cooldown: f.Cooldown,
		Start:    f.Start,
		Params:   f.Params,
	}
}

// Registry holds the configured feeds by dataset key.
type Registry struct {
	feeds map[string]*Feed
}

// NewRegistry builds feeds from configuration. Feeds without a cooldown
// inherit the engine-wide default
func NewRegistry(cfgs []config.FeedConfig, defaultCooldown time.Duration, client *http.Client) (*Registry, error) {
	r := &Registry{feeds: make(map[string]*Feed, len(cfgs))}

	for _, cfg := range cfgs {
		feed := &Feed{
			Key:      cfg.Name,
			Loader:   loader.NewHTTPCSVLoader(cfg.URL, client),
			Cooldown: cfg.Cooldown,
			Params:   cfg.Params,
		}
		if feed.Cooldown <= 0 {
			feed.Cooldown = defaultCooldown
		}
		if cfg.Start != "" {
			start, err := series.ParseDate(cfg.Start)
			if err != nil {
				return nil, fmt.Errorf("feed %q: %w", cfg.Name, err)
			}
			feed.Start = start
		}

		if err := r.Register(feed); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a feed, for example one backed by a custom Loader instead of
// a configured URL.
func (r *Registry) Register(feed *Feed) error {
	if feed.Key == "" {
		return fmt.Errorf("feed key is empty")
	}
	if feed.Loader == nil {
		return fmt.Errorf("feed %q has no loader", feed.Key)
	}
	if _, exists := r.feeds[feed.Key]; exists {
		return fmt.Errorf("feed %q registered twice", feed.Key)
	}
	r.feeds[feed.Key] = feed
	return nil
}

// Get returns the feed for a dataset key.
func (r *Registry) Get(key string) (*Feed, bool) {
	feed, ok := r.feeds[key]
	return feed, ok
}

// List returns all feeds sorted by key.
func (r *Registry) List() []*Feed {
	out := make([]*Feed, 0, len(r.feeds))
	for _, feed := range r.feeds {
		out = append(out, feed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
