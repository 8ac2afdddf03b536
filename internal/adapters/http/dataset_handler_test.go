package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedvault/core/internal/adapters/store"
	"github.com/feedvault/core/internal/application/feeds"
	"github.com/feedvault/core/internal/application/sync"
	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/config"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

var handlerNow = time.Date(2020, 7, 15, 12, 0, 0, 0, time.UTC)

type queryValidator struct {
	validator *validator.Validate
}

func (v *queryValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

type handlerEnv struct {
	echo     *echo.Echo
	handler  *DatasetHandler
	datasets ports.DatasetStore
	meta     ports.MetadataStore
	loaded   *int
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	log := logger.NewNop()
	clock := clockwork.NewFakeClockAt(handlerNow)

	datasets, err := store.NewFileDatasetStore(fs, "data", log)
	require.NoError(t, err)
	meta, err := store.NewFileMetadataStore(fs, "data", clock, log)
	require.NoError(t, err)

	metrics := sync.NewMetrics(nil)
	mirror := sync.NewMirror(nil, datasets, meta, log, metrics)
	engine := sync.NewEngine(datasets, meta, mirror, config.SyncConfig{}, clock, log, metrics)

	loaded := 0
	registry, err := feeds.NewRegistry(nil, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(&feeds.Feed{
		Key:      "usdkrw.csv",
		Cooldown: 24 * time.Hour,
		Loader: ports.LoaderFunc(func(ctx context.Context, req ports.FetchRequest) (*series.Table, error) {
			loaded++
			table := series.New("close")
			table.Append(series.Record{
				Date:   series.Day(handlerNow.AddDate(0, 0, -1)),
				Values: map[string]float64{"close": 1180.5},
			})
			return table, nil
		}),
	}))

	e := echo.New()
	e.Validator = &queryValidator{validator: validator.New()}

	return &handlerEnv{
		echo:     e,
		handler:  NewDatasetHandler(engine, registry, datasets, meta, log),
		datasets: datasets,
		meta:     meta,
		loaded:   &loaded,
	}
}

func (env *handlerEnv) request(method, target, key string) (*httptest.ResponseRecorder, echo.Context) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)
	if key != "" {
		c.SetParamNames("key")
		c.SetParamValues(key)
	}
	return rec, c
}

func TestGetDatasetJSON(t *testing.T) {
	env := newHandlerEnv(t)
	rec, c := env.request(http.MethodGet, "/api/v1/datasets/usdkrw.csv", "usdkrw.csv")

	require.NoError(t, env.handler.GetDataset(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Key     string   `json:"key"`
		Columns []string `json:"columns"`
		Rows    int      `json:"rows"`
		Records []struct {
			Date   string             `json:"date"`
			Values map[string]float64 `json:"values"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "usdkrw.csv", resp.Key)
	assert.Equal(t, []string{"close"}, resp.Columns)
	require.Equal(t, 1, resp.Rows)
	assert.Equal(t, "2020-07-14", resp.Records[0].Date)
	assert.Equal(t, 1180.5, resp.Records[0].Values["close"])
	assert.Equal(t, 1, *env.loaded)
}

func TestGetDatasetCSV(t *testing.T) {
	env := newHandlerEnv(t)
	rec, c := env.request(http.MethodGet, "/api/v1/datasets/usdkrw.csv?format=csv", "usdkrw.csv")

	require.NoError(t, env.handler.GetDataset(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Contains(t, rec.Body.String(), "date,close")
	assert.Contains(t, rec.Body.String(), "2020-07-14,1180.5")
}

func TestGetDatasetUnknownKey(t *testing.T) {
	env := newHandlerEnv(t)
	_, c := env.request(http.MethodGet, "/api/v1/datasets/nope.csv", "nope.csv")

	err := env.handler.GetDataset(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestGetDatasetRejectsBadQuery(t *testing.T) {
	env := newHandlerEnv(t)

	for _, target := range []string{
		"/api/v1/datasets/usdkrw.csv?start=15-07-2020",
		"/api/v1/datasets/usdkrw.csv?format=xml",
	} {
		_, c := env.request(http.MethodGet, target, "usdkrw.csv")
		err := env.handler.GetDataset(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr, "target %s", target)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	}
	assert.Equal(t, 0, *env.loaded)
}

func TestGetDatasetServesCacheInsideCooldown(t *testing.T) {
	env := newHandlerEnv(t)

	// First request fetches, second is a pure cache hit.
	for i := 0; i < 2; i++ {
		rec, c := env.request(http.MethodGet, "/api/v1/datasets/usdkrw.csv", "usdkrw.csv")
		require.NoError(t, env.handler.GetDataset(c))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, *env.loaded)
}

func TestRefreshDatasetIgnoresCooldown(t *testing.T) {
	env := newHandlerEnv(t)

	_, c := env.request(http.MethodGet, "/api/v1/datasets/usdkrw.csv", "usdkrw.csv")
	require.NoError(t, env.handler.GetDataset(c))
	require.Equal(t, 1, *env.loaded)

	// The cached tail is yesterday, so a forced refresh asks the source again
	// even though the cooldown has not expired.
	rec, c := env.request(http.MethodPost, "/api/v1/datasets/usdkrw.csv/refresh", "usdkrw.csv")
	require.NoError(t, env.handler.RefreshDataset(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *env.loaded)
}

func TestDeleteDataset(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()

	_, c := env.request(http.MethodGet, "/api/v1/datasets/usdkrw.csv", "usdkrw.csv")
	require.NoError(t, env.handler.GetDataset(c))

	rec, c := env.request(http.MethodDelete, "/api/v1/datasets/usdkrw.csv", "usdkrw.csv")
	require.NoError(t, env.handler.DeleteDataset(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ok, err := env.datasets.Exists(ctx, "usdkrw.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListDatasets(t *testing.T) {
	env := newHandlerEnv(t)

	// Populate the cache for one feed so status fields differ.
	_, c := env.request(http.MethodGet, "/api/v1/datasets/usdkrw.csv", "usdkrw.csv")
	require.NoError(t, env.handler.GetDataset(c))

	rec, c := env.request(http.MethodGet, "/api/v1/datasets", "")
	require.NoError(t, env.handler.ListDatasets(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Datasets []struct {
			Key         string `json:"key"`
			Cooldown    string `json:"cooldown"`
			Cached      bool   `json:"cached"`
			LastChecked string `json:"last_checked"`
		} `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Datasets, 1)
	assert.Equal(t, "usdkrw.csv", resp.Datasets[0].Key)
	assert.Equal(t, "24h0m0s", resp.Datasets[0].Cooldown)
	assert.True(t, resp.Datasets[0].Cached)
	assert.Equal(t, handlerNow.Format(time.RFC3339), resp.Datasets[0].LastChecked)
}
