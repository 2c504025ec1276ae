package handler

import (
	"net/http"

	"github.com/weatherroute/weatherroute/internal/api/models"
	"github.com/weatherroute/weatherroute/internal/api/response"
	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/overlay"
)

// supportedMetrics are the hourly series the overlay knows how to colour.
var supportedMetrics = withRanges([]models.MetricInfo{
	{Name: conditions.MetricWaveHeight, Description: "Significant wave height"},
	{Name: conditions.MetricWaveDirection, Description: "Mean wave direction"},
	{Name: conditions.MetricWavePeriod, Description: "Mean wave period"},
	{Name: conditions.MetricSwellWaveHeight, Description: "Swell wave height"},
	{Name: conditions.MetricWindWaveHeight, Description: "Wind wave height"},
})

func withRanges(items []models.MetricInfo) []models.MetricInfo {
	for i := range items {
		items[i].Min, items[i].Max, _ = overlay.DefaultRange(items[i].Name)
	}
	return items
}

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	scale overlay.ColorScale
}

// NewMetadataHandler creates a new MetadataHandler reporting the default scale.
func NewMetadataHandler(scale overlay.ColorScale) *MetadataHandler {
	return &MetadataHandler{scale: scale}
}

// ListMetrics handles GET /v1/metadata/metrics.
func (h *MetadataHandler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Metrics{
		Items:   supportedMetrics,
		Default: h.scale,
	})
}
