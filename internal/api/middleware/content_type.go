package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/weatherroute/weatherroute/internal/api/models"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that emit GeoJSON or problem documents set their own first.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects request bodies that are not JSON with 415. A missing
// Content-Type is tolerated; application/json and any +json type such as
// application/geo+json are accepted.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if ct := r.Header.Get("Content-Type"); ct != "" && !isJSON(ct) {
				models.KindUnsupportedMedia.New(GetRequestID(r.Context()), "Content-Type must be application/json").At(r).Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}
