package ws

import (
	"net/http/httptest"
	"testing"
)

func TestConnMetaFromRequestCapturesIdentity(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/chat", nil)
	req.Header.Set("X-Device-Id", "device-7")
	req.Header.Set("X-Request-Id", "req-42")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	meta := connMetaFromRequest(req, "trace-1")

	if meta.DeviceID != "device-7" {
		t.Fatalf("device id: got %q", meta.DeviceID)
	}
	if meta.RequestID != "req-42" {
		t.Fatalf("request id: got %q", meta.RequestID)
	}
	if meta.TraceID != "trace-1" {
		t.Fatalf("trace id: got %q", meta.TraceID)
	}
	if meta.IP != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", meta.IP)
	}
	if meta.ConnectedAt.IsZero() {
		t.Fatalf("expected connected-at to be stamped")
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/chat", nil)
	req.RemoteAddr = "192.0.2.4:51123"

	if ip := clientIP(req); ip != "192.0.2.4" {
		t.Fatalf("expected host from remote addr, got %q", ip)
	}

	req.RemoteAddr = "unix-socket"
	if ip := clientIP(req); ip != "unix-socket" {
		t.Fatalf("expected raw remote addr passthrough, got %q", ip)
	}
}
