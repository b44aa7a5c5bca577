package middleware

import (
	"net"
	"net/http"
	"strings"

	reqcontext "github.com/prajwalbharadwajbm/adserve/internal/context"
)

// Headers carrying the management caller identity. Authentication happens
// upstream; the engine only enforces ownership.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderClientID  = "X-Client-ID"
	HeaderRole      = "X-Role"
)

// RequestIDMiddleware adds request IDs and caller identity to incoming requests
type RequestIDMiddleware struct{}

// NewRequestIDMiddleware creates a new request ID middleware
func NewRequestIDMiddleware() *RequestIDMiddleware {
	return &RequestIDMiddleware{}
}

// Middleware returns the HTTP middleware function for request IDs
func (m *RequestIDMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An upstream X-Request-ID is kept; otherwise one is generated.
		ctx := reqcontext.NewRequestContext(r.Context(), r.Header.Get(HeaderRequestID), r.UserAgent(), remoteIP(r))

		if clientID := strings.TrimSpace(r.Header.Get(HeaderClientID)); clientID != "" {
			ctx = reqcontext.WithCaller(ctx, reqcontext.Caller{
				ID:   clientID,
				Role: strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))),
			})
		}

		w.Header().Set(HeaderRequestID, reqcontext.GetRequestID(ctx))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// remoteIP prefers the first X-Forwarded-For hop and drops the port, so that
// anonymous click windows key on the viewer rather than the connection.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
