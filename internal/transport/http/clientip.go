package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// forwardingHeaders are consulted in order before falling back to the peer address
var forwardingHeaders = []string{"X-Forwarded-For", "X-Real-IP", "Client-IP"}

// ClientIP returns the address rate limits are keyed on.
// Only the first entry of each forwarding header is considered, and only when it is a public address.
func ClientIP(r *http.Request) string {
	for _, header := range forwardingHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		if ip, ok := publicIP(strings.TrimSpace(first)); ok {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "0.0.0.0"
		}
		return r.RemoteAddr
	}
	return host
}

func publicIP(raw string) (string, bool) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() {
		return "", false
	}
	return addr.String(), true
}
