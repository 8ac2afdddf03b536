package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/feedvault/core/internal/application/feeds"
	"github.com/feedvault/core/internal/application/sync"
	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

// DatasetHandler exposes the configured feeds over HTTP. GET is the consumer
// path and runs the sync engine; an empty table means "temporarily
// unavailable" and is still a 200, because consumers must not distinguish
// failure causes.
type DatasetHandler struct {
	engine   *sync.Engine
	registry *feeds.Registry
	datasets ports.DatasetStore
	meta     ports.MetadataStore
	logger   *logger.Logger
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(engine *sync.Engine, registry *feeds.Registry, datasets ports.DatasetStore, meta ports.MetadataStore, log *logger.Logger) *DatasetHandler {
	return &DatasetHandler{
		engine:   engine,
		registry: registry,
		datasets: datasets,
		meta:     meta,
		logger:   log,
	}
}

type getDatasetQuery struct {
	Start  string `query:"start" validate:"omitempty,datetime=2006-01-02"`
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
}

type datasetResponse struct {
	Key     string           `json:"key"`
	Columns []string         `json:"columns"`
	Rows    int              `json:"rows"`
	Records []recordResponse `json:"records"`
}

type recordResponse struct {
	Date   string             `json:"date"`
	Values map[string]float64 `json:"values"`
}

type datasetStatus struct {
	Key         string `json:"key"`
	Cooldown    string `json:"cooldown"`
	Cached      bool   `json:"cached"`
	LastChecked string `json:"last_checked,omitempty"`
}

// ListDatasets returns the configured feeds and their cache status
func (h *DatasetHandler) ListDatasets(c echo.Context) error {
	ctx := c.Request().Context()

	out := make([]datasetStatus, 0)
	for _, feed := range h.registry.List() {
		status := datasetStatus{
			Key:      feed.Key,
			Cooldown: feed.Cooldown.String(),
		}
		if cached, err := h.datasets.Exists(ctx, feed.Key); err == nil {
			status.Cached = cached
		}
		if last, err := h.meta.LastChecked(ctx, feed.Key); err == nil && !last.IsZero() {
			status.LastChecked = last.UTC().Format(time.RFC3339)
		}
		out = append(out, status)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"datasets": out})
}

// GetDataset runs the sync engine for a feed and returns the table
func (h *DatasetHandler) GetDataset(c echo.Context) error {
	feed, ok := h.registry.Get(c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown dataset")
	}

	var q getDatasetQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}

	req := feed.Request()
	if q.Start != "" {
		start, err := series.ParseDate(q.Start)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start date")
		}
		req.Start = start
	}

	table := h.engine.Get(c.Request().Context(), req)

	if q.Format == "csv" {
		data, err := series.EncodeCSV(table)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to encode dataset")
		}
		return c.Blob(http.StatusOK, "text/csv", data)
	}

	return c.JSON(http.StatusOK, toResponse(feed.Key, table))
}

// RefreshDataset forces a refresh attempt regardless of cooldown
func (h *DatasetHandler) RefreshDataset(c echo.Context) error {
	feed, ok := h.registry.Get(c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown dataset")
	}

	req := feed.Request()
	req.Cooldown = 0

	table := h.engine.Get(c.Request().Context(), req)

	h.logger.Infow("Forced dataset refresh", "dataset", feed.Key, "rows", table.Len())
	return c.JSON(http.StatusOK, toResponse(feed.Key, table))
}

// DeleteDataset invalidates the local cache for a feed
func (h *DatasetHandler) DeleteDataset(c echo.Context) error {
	feed, ok := h.registry.Get(c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown dataset")
	}

	if err := h.engine.Invalidate(c.Request().Context(), feed.Key); err != nil {
		h.logger.Errorw("Failed to invalidate dataset", "dataset", feed.Key, "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to invalidate dataset")
	}

	return c.NoContent(http.StatusNoContent)
}

func toResponse(key string, table *series.Table) datasetResponse {
	resp := datasetResponse{
		Key:     key,
		Columns: table.Columns,
		Rows:    table.Len(),
		Records: make([]recordResponse, 0, table.Len()),
	}
	for _, rec := range table.Records {
		resp.Records = append(resp.Records, recordResponse{
			Date:   rec.Date.Format(series.DateLayout),
			Values: rec.Values,
		})
	}
	return resp
}
