package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ClientIdentity resolves the caller identity used for admission control
// and stores it in the request context. The first address in
// X-Forwarded-For wins when present; otherwise the connection's remote
// address is used without its port.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ClientKey, resolveClient(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClient extracts the client identity from the context.
// Returns empty string if not found.
func GetClient(ctx context.Context) string {
	if client, ok := ctx.Value(ClientKey).(string); ok {
		return client
	}
	return ""
}

// resolveClient picks the admission identity for a request.
func resolveClient(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
