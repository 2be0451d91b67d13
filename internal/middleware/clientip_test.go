package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{name: "forwarded single", xff: "1.2.3.4", remoteAddr: "127.0.0.1:8080", want: "1.2.3.4"},
		{name: "forwarded chain", xff: "1.2.3.4, 5.6.7.8", remoteAddr: "127.0.0.1:8080", want: "1.2.3.4"},
		{name: "forwarded with port", xff: "1.2.3.4:9000", remoteAddr: "127.0.0.1:8080", want: "1.2.3.4"},
		{name: "forwarded v6", xff: "[2001:db8::1]:443", remoteAddr: "127.0.0.1:8080", want: "2001:db8::1"},
		{name: "forwarded mapped v4", xff: "::ffff:1.2.3.4", remoteAddr: "127.0.0.1:8080", want: "1.2.3.4"},
		{name: "forwarded garbage falls back to real ip", xff: "unknown", xri: "5.6.7.8", remoteAddr: "127.0.0.1:8080", want: "5.6.7.8"},
		{name: "real ip", xri: "1.2.3.4", remoteAddr: "127.0.0.1:8080", want: "1.2.3.4"},
		{name: "garbage headers", xff: "<script>", xri: "nope", remoteAddr: "10.0.0.2:1", want: "10.0.0.2"},
		{name: "remote addr", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}
			req.RemoteAddr = tc.remoteAddr

			if got := ClientIP(req); got != tc.want {
				t.Errorf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
