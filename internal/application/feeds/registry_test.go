package feeds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/config"
	"github.com/feedvault/core/internal/ports"
)

func TestNewRegistryFromConfig(t *testing.T) {
	r, err := NewRegistry([]config.FeedConfig{
		{
			Name:     "usdkrw.csv",
			URL:      "https://source.example/fx",
			Cooldown: time.Hour,
			Start:    "2015-01-01",
			Params:   map[string]string{"symbol": "USDKRW"},
		},
		{
			Name: "dxy.csv",
			URL:  "https://source.example/index",
		},
	}, 24*time.Hour, nil)
	require.NoError(t, err)

	feed, ok := r.Get("usdkrw.csv")
	require.True(t, ok)
	assert.Equal(t, time.Hour, feed.Cooldown)
	assert.Equal(t, series.Day(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)), feed.Start)

	req := feed.Request()
	assert.Equal(t, "usdkrw.csv", req.Key)
	assert.Equal(t, "USDKRW", req.Params["symbol"])
	assert.NotNil(t, req.Loader)

	// Missing cooldown inherits the default.
	feed, ok = r.Get("dxy.csv")
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour, feed.Cooldown)

	keys := make([]string, 0)
	for _, f := range r.List() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"dxy.csv", "usdkrw.csv"}, keys)
}

func TestNewRegistryRejectsBadStart(t *testing.T) {
	_, err := NewRegistry([]config.FeedConfig{
		{Name: "fx.csv", URL: "https://source.example/fx", Start: "first of january"},
	}, time.Hour, nil)
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	r, err := NewRegistry(nil, time.Hour, nil)
	require.NoError(t, err)

	fetch := ports.LoaderFunc(func(ctx context.Context, req ports.FetchRequest) (*series.Table, error) {
		return series.New(), nil
	})

	assert.Error(t, r.Register(&Feed{Loader: fetch}), "empty key")
	assert.Error(t, r.Register(&Feed{Key: "fx.csv"}), "missing loader")

	require.NoError(t, r.Register(&Feed{Key: "fx.csv", Loader: fetch}))
	assert.Error(t, r.Register(&Feed{Key: "fx.csv", Loader: fetch}), "duplicate key")
}
