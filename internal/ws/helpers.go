package ws

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// connMetaFromRequest captures the identity of the upgrading request. The
// values travel with the connection for its whole lifetime and end up in
// connect/disconnect events and audit payloads.
func connMetaFromRequest(r *http.Request, traceID string) ConnMeta {
	return ConnMeta{
		DeviceID:    r.Header.Get("X-Device-Id"),
		RequestID:   r.Header.Get("X-Request-Id"),
		TraceID:     traceID,
		IP:          clientIP(r),
		ConnectedAt: time.Now(),
	}
}

// clientIP resolves the originating address. The first X-Forwarded-For hop
// wins when a proxy sits in front of the service.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
