// Package handler provides HTTP handlers for the weather-route API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherroute/weatherroute/internal/api/models"
	"github.com/weatherroute/weatherroute/internal/api/response"
	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/provider/resilience"
)

// readinessTimeout bounds all readiness checks of one request.
const readinessTimeout = 2 * time.Second

// DependencyCheck probes one subsystem, e.g. the database or Redis.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ConditionsCache is the cache administration surface of the conditions service.
type ConditionsCache interface {
	CacheStats(ctx context.Context) conditions.CacheStats
	InvalidateCache(ctx context.Context) error
}

// OpsHandlerConfig holds configuration for the OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	// Registry reports upstream provider health. Nil means no providers.
	Registry *resilience.Registry

	// Cache is optional.
	Cache ConditionsCache

	Checks []DependencyCheck
	Logger zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	cache     ConditionsCache
	checks    []DependencyCheck
	logger    zerolog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		cache:     cfg.Cache,
		checks:    cfg.Checks,
		logger:    cfg.Logger,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Any failing
// dependency makes the instance not ready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status != models.HealthStatusOK {
			health.Status = models.HealthStatusFail
		}
	}
	if len(details) > 0 {
		health.Details = details
	}

	status := http.StatusOK
	if health.Status != models.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.runChecks(r.Context()),
		Providers:  h.providers(),
	}

	if h.registry != nil {
		status.Status = models.HealthStatusFromRegistry(string(h.registry.Status()))
	}
	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}

	if h.cache != nil {
		stats := h.cache.CacheStats(r.Context())
		status.Cache = &stats
	}

	response.JSON(w, r, http.StatusOK, status)
}

// PurgeConditionsCache handles DELETE /v1/ops/conditions-cache.
func (h *OpsHandler) PurgeConditionsCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		response.NoContent(w, r)
		return
	}
	if err := h.cache.InvalidateCache(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to purge conditions cache")
		response.ServiceUnavailable(w, r, "conditions cache could not be purged")
		return
	}
	h.logger.Info().Msg("conditions cache purged")
	response.NoContent(w, r)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err := c.Check(ctx); err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
			h.logger.Warn().Err(err).Str("subsystem", c.Name).Msg("dependency check failed")
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	out := make([]models.ProviderStatus, 0)
	if h.registry == nil {
		return out
	}

	for _, p := range h.registry.Snapshot() {
		ps := models.ProviderStatus{
			Provider:      p.Name,
			CircuitState:  p.State.String(),
			Status:        models.HealthStatusFromRegistry(string(p.Status())),
			FailureStreak: p.FailureStreak,
		}
		if p.LastSuccessAt != nil {
			ts := models.Timestamp(*p.LastSuccessAt)
			ps.LastSuccessAt = &ts
		}
		if p.LastFailureAt != nil {
			ts := models.Timestamp(*p.LastFailureAt)
			ps.LastFailureAt = &ts
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
