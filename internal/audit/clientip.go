package audit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the request's client address. By default only the
// transport-layer peer address is trusted; forwarded headers are consulted
// only when the deployment explicitly sits behind a trusted reverse proxy,
// which keeps the default immune to header spoofing.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := xff
			if i := strings.IndexByte(xff, ','); i >= 0 {
				first = xff[:i]
			}
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
