// Package response writes JSON, GeoJSON and problem responses. Every
// writer echoes the request ID so clients can quote it in bug reports.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/weatherroute/weatherroute/internal/api/middleware"
	"github.com/weatherroute/weatherroute/internal/api/models"
)

// ContentTypeGeoJSON is the media type of GeoJSON responses (RFC 7946).
const ContentTypeGeoJSON = "application/geo+json"

// JSON writes data as application/json.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, "application/json", data)
}

// GeoJSON writes data as application/geo+json.
func GeoJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, ContentTypeGeoJSON, data)
}

// Created writes a 201 with an optional Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	write(w, r, http.StatusCreated, "application/json", data)
}

// Accepted writes a 202 with an optional Location header.
func Accepted(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	write(w, r, http.StatusAccepted, "application/json", data)
}

// NoContent writes a bodiless 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	echoRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func write(w http.ResponseWriter, r *http.Request, status int, contentType string, data any) {
	echoRequestID(w, r)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func echoRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}

// Problem writes an occurrence of kind for r.
func Problem(w http.ResponseWriter, r *http.Request, kind models.ProblemKind, detail string) {
	kind.New(middleware.GetRequestID(r.Context()), detail).At(r).Write(w)
}

// BadRequest writes a 400 carrying per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	models.KindValidation.New(middleware.GetRequestID(r.Context()), detail).WithErrors(errs).At(r).Write(w)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindNotFound, detail)
}

// PayloadTooLarge writes a 413 naming the body limit.
func PayloadTooLarge(w http.ResponseWriter, r *http.Request, limit int64) {
	Problem(w, r, models.KindPayloadTooLarge, "request body exceeds "+strconv.FormatInt(limit, 10)+" bytes")
}

// TooManyRequests writes a 429, with Retry-After when retryAfter is positive.
func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	Problem(w, r, models.KindTooManyRequests, detail)
}

// InternalError writes a 500. detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindInternal, detail)
}

// BadGateway writes a 502 for conditions backend failures.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindUpstream, detail)
}

// ServiceUnavailable writes a 503 for timeouts and missing dependencies.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindUnavailable, detail)
}
