package telemetry

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const (
	requestIDKey    ctxKey = "request_id"
	RequestIDHeader        = "X-Request-ID"
)

// RequestID middleware reuses an incoming X-Request-ID or generates one, stores
// it in the context and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request_id from context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}

	return ""
}

// RequestIDTransport sets X-Request-ID on outgoing requests, taken from the
// request context or freshly generated, so server logs can be matched with
// client logs per part attempt.
type RequestIDTransport struct {
	Base http.RoundTripper
}

func (t *RequestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if req.Header.Get(RequestIDHeader) != "" {
		return base.RoundTrip(req)
	}

	id := GetRequestID(req.Context())
	if id == "" {
		id = uuid.New().String()
	}

	r := req.Clone(req.Context())
	r.Header.Set(RequestIDHeader, id)

	return base.RoundTrip(r)
}
