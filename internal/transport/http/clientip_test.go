package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "remote address only",
			remoteAddr: "198.51.100.7:51234",
			expected:   "198.51.100.7",
		},
		{
			name:       "forwarded for takes first entry",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"},
			remoteAddr: "10.0.0.2:80",
			expected:   "203.0.113.9",
		},
		{
			name:       "private forwarded for falls through to real ip",
			headers:    map[string]string{"X-Forwarded-For": "10.1.2.3", "X-Real-IP": "203.0.113.10"},
			remoteAddr: "10.0.0.2:80",
			expected:   "203.0.113.10",
		},
		{
			name:       "client ip header",
			headers:    map[string]string{"Client-IP": "2001:db8::1"},
			remoteAddr: "10.0.0.2:80",
			expected:   "2001:db8::1",
		},
		{
			name:       "loopback and garbage ignored",
			headers:    map[string]string{"X-Forwarded-For": "127.0.0.1", "X-Real-IP": "not-an-ip"},
			remoteAddr: "192.0.2.44:9000",
			expected:   "192.0.2.44",
		},
		{
			name:       "ipv6 remote address",
			remoteAddr: "[2001:db8::5]:443",
			expected:   "2001:db8::5",
		},
		{
			name:       "mapped ipv4 is unmapped",
			headers:    map[string]string{"X-Forwarded-For": "::ffff:203.0.113.5"},
			remoteAddr: "10.0.0.2:80",
			expected:   "203.0.113.5",
		},
		{
			name:       "remote address without port",
			remoteAddr: "198.51.100.8",
			expected:   "198.51.100.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}
