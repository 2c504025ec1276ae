package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/weatherroute/weatherroute/internal/api/middleware"
	"github.com/weatherroute/weatherroute/internal/api/models"
	"github.com/weatherroute/weatherroute/internal/api/response"
	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/overlay"
	"github.com/weatherroute/weatherroute/internal/travel"
	"github.com/weatherroute/weatherroute/internal/worker"
)

// defaultMaxBodyBytes caps request bodies (about 10k points).
const defaultMaxBodyBytes = 2 << 20

// RouteAnnotator produces weather overlays. *overlay.Pipeline implements it.
type RouteAnnotator interface {
	Annotate(ctx context.Context, points []travel.Point, opts overlay.Options) (*overlay.Overlay, error)
	DefaultScale() overlay.ColorScale
}

// TravelHistory loads and stores vessel routes. *travel.Service implements it.
type TravelHistory interface {
	Route(ctx context.Context, vesselID string, rng travel.Range) ([]travel.Point, error)
	Ingest(ctx context.Context, vesselID string, points []travel.Point) (int, error)
}

// PrefetchPublisher enqueues cache warm-up jobs. *worker.Publisher implements it.
type PrefetchPublisher interface {
	Publish(ctx context.Context, m worker.PrefetchMessage) (string, error)
}

// WeatherRouteHandlerConfig holds configuration for the WeatherRouteHandler.
type WeatherRouteHandlerConfig struct {
	Annotator RouteAnnotator
	Travel    TravelHistory

	// Publisher is optional; without it prefetch requests return 503.
	Publisher PrefetchPublisher

	// MaxBodyBytes caps request bodies (default: 2 MiB).
	MaxBodyBytes int64

	Logger zerolog.Logger
}

// WeatherRouteHandler handles weather route overlay and travel point endpoints.
type WeatherRouteHandler struct {
	annotator    RouteAnnotator
	travel       TravelHistory
	publisher    PrefetchPublisher
	maxBodyBytes int64
	logger       zerolog.Logger
	now          func() time.Time
}

// NewWeatherRouteHandler creates a new WeatherRouteHandler.
func NewWeatherRouteHandler(cfg WeatherRouteHandlerConfig) *WeatherRouteHandler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &WeatherRouteHandler{
		annotator:    cfg.Annotator,
		travel:       cfg.Travel,
		publisher:    cfg.Publisher,
		maxBodyBytes: maxBody,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Annotate handles POST /v1/weather-routes:annotate - annotate ad-hoc points.
func (h *WeatherRouteHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	var input models.AnnotateRequest
	if !h.decode(w, r, &input) {
		return
	}

	if errs := input.Validate(h.annotator.DefaultScale().Metric); len(errs) > 0 {
		response.BadRequest(w, r, "invalid annotate request", errs)
		return
	}

	out, err := h.annotator.Annotate(r.Context(), models.ToTravelPoints(input.Points), input.Options())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeOverlay(w, r, out)
}

// GetVesselRoute handles GET /v1/vessels/{vesselId}/weather-route.
func (h *WeatherRouteHandler) GetVesselRoute(w http.ResponseWriter, r *http.Request) {
	vesselID := chi.URLParam(r, "vesselId")
	query := r.URL.Query()

	q, errs := models.ParseWeatherRouteQuery(query.Get("from"), query.Get("to"), query.Get("metric"), h.now())
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid weather route query", errs)
		return
	}

	points, err := h.travel.Route(r.Context(), vesselID, q.Range())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.annotator.Annotate(r.Context(), points, overlay.Options{Metric: q.Metric})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeOverlay(w, r, out)
}

// IngestPoints handles POST /v1/vessels/{vesselId}/travel-points.
func (h *WeatherRouteHandler) IngestPoints(w http.ResponseWriter, r *http.Request) {
	vesselID := chi.URLParam(r, "vesselId")

	var input models.IngestRequest
	if !h.decode(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid travel points", errs)
		return
	}

	inserted, err := h.travel.Ingest(r.Context(), vesselID, models.ToTravelPoints(input.Points))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, r, fmt.Sprintf("/v1/vessels/%s/weather-route", vesselID), models.IngestResponse{
		VesselID: vesselID,
		Received: len(input.Points),
		Inserted: inserted,
	})
}

// PrefetchRoute handles POST /v1/vessels/{vesselId}/weather-route:prefetch -
// queue a cache warm-up for the vessel's route.
func (h *WeatherRouteHandler) PrefetchRoute(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		response.ServiceUnavailable(w, r, "prefetch queue is not configured")
		return
	}

	vesselID := strings.TrimSpace(chi.URLParam(r, "vesselId"))
	query := r.URL.Query()
	q, errs := models.ParseWeatherRouteQuery(query.Get("from"), query.Get("to"), "", h.now())
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid prefetch query", errs)
		return
	}

	msg := worker.NewPrefetchMessage(vesselID, q.Range())
	msg.RequestID = middleware.GetRequestID(r.Context())
	if _, err := h.publisher.Publish(r.Context(), msg); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("vessel_id", vesselID).Msg("failed to enqueue prefetch")
		response.ServiceUnavailable(w, r, "prefetch could not be queued")
		return
	}

	response.Accepted(w, r, "", map[string]string{
		"jobId":    msg.JobID,
		"vesselId": vesselID,
	})
}

func (h *WeatherRouteHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(w, r, tooLarge.Limit)
			return false
		}
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

// writeOverlay honours Accept: application/geo+json.
func (h *WeatherRouteHandler) writeOverlay(w http.ResponseWriter, r *http.Request, out *overlay.Overlay) {
	if strings.Contains(r.Header.Get("Accept"), response.ContentTypeGeoJSON) {
		response.GeoJSON(w, r, http.StatusOK, out.ToGeoJSON())
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *WeatherRouteHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, travel.ErrVesselNotFound):
		response.NotFound(w, r, "vessel not found")
	case errors.Is(err, travel.ErrInvalidCoordinates),
		errors.Is(err, travel.ErrInvalidRange),
		errors.Is(err, travel.ErrRangeTooLong),
		errors.Is(err, travel.ErrEmptyVesselID),
		errors.Is(err, travel.ErrTooManyPoints),
		errors.Is(err, overlay.ErrInvalidScale):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, conditions.ErrProviderUnavailable):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("conditions unavailable for route")
		response.BadGateway(w, r, "weather conditions are unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.ServiceUnavailable(w, r, "request timed out")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("weather route request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
