package shortener

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize rewrites a URL into the canonical form used for deduplication.
// Scheme and host are lowercased, the default port and a trailing slash are
// dropped, query parameters are sorted by key and the fragment is kept.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("URL has no host")
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	if port := u.Port(); port != "" && defaultPorts[scheme] != port {
		b.WriteString(":")
		b.WriteString(port)
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	if u.RawQuery != "" {
		query := u.RawQuery
		if values, err := url.ParseQuery(u.RawQuery); err == nil {
			query = values.Encode()
		}
		if query != "" {
			b.WriteString("?")
			b.WriteString(query)
		}
	}

	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.EscapedFragment())
	}

	return b.String(), nil
}

// Hash returns the hex SHA-256 digest of a normalized URL
func Hash(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}
