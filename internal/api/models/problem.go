package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	// Type is a URI identifying the problem kind.
	Type string `json:"type"`

	// Title summarizes the kind; it does not vary between occurrences.
	Title string `json:"title"`

	Status int `json:"status"`

	// Detail explains this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is the request path that failed.
	Instance string `json:"instance,omitempty"`

	// TraceID echoes X-Request-Id.
	TraceID string `json:"traceId"`

	// Errors lists per-field validation failures, e.g. points[3].lat.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemTypeBase prefixes every problem type URI.
const ProblemTypeBase = "https://weatherroute.dev/problems/"

const (
	ProblemTypeValidation       = ProblemTypeBase + "validation-error"
	ProblemTypeNotFound         = ProblemTypeBase + "not-found"
	ProblemTypeTLSRequired      = ProblemTypeBase + "tls-required"
	ProblemTypePayloadTooLarge  = ProblemTypeBase + "payload-too-large"
	ProblemTypeUnsupportedMedia = ProblemTypeBase + "unsupported-media-type"
	ProblemTypeTooManyRequests  = ProblemTypeBase + "too-many-requests"
	ProblemTypeInternal         = ProblemTypeBase + "internal-error"
	ProblemTypeUpstream         = ProblemTypeBase + "upstream-error"
	ProblemTypeUnavailable      = ProblemTypeBase + "service-unavailable"
)

// ProblemKind fixes the type, title and status shared by every occurrence
// of one kind of failure.
type ProblemKind struct {
	Type   string
	Title  string
	Status int
}

// The kinds the API emits.
var (
	KindValidation       = ProblemKind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	KindTLSRequired      = ProblemKind{ProblemTypeTLSRequired, "TLS required", http.StatusForbidden}
	KindNotFound         = ProblemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	KindPayloadTooLarge  = ProblemKind{ProblemTypePayloadTooLarge, "Payload too large", http.StatusRequestEntityTooLarge}
	KindUnsupportedMedia = ProblemKind{ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType}
	KindTooManyRequests  = ProblemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	KindInternal         = ProblemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	KindUpstream         = ProblemKind{ProblemTypeUpstream, "Upstream error", http.StatusBadGateway}
	KindUnavailable      = ProblemKind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
)

// New returns an occurrence of k.
func (k ProblemKind) New(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.Type,
		Title:   k.Title,
		Status:  k.Status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithErrors attaches field errors.
func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// At sets Instance to the failing request's path.
func (p *Problem) At(r *http.Request) *Problem {
	p.Instance = r.URL.Path
	return p
}

// Write sends p with the matching status and X-Request-Id.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
