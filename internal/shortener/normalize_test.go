package shortener

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "canonical example",
			input:    "HTTPS://EXAMPLE.COM:443/Path/?b=2&a=1#Top",
			expected: "https://example.com/Path?a=1&b=2#Top",
		},
		{
			name:     "root path kept",
			input:    "https://example.com",
			expected: "https://example.com/",
		},
		{
			name:     "root slash kept",
			input:    "https://example.com/",
			expected: "https://example.com/",
		},
		{
			name:     "http default port dropped",
			input:    "http://Example.com:80/a",
			expected: "http://example.com/a",
		},
		{
			name:     "non-default port kept",
			input:    "http://example.com:8080/a/",
			expected: "http://example.com:8080/a",
		},
		{
			name:     "https on port 80 keeps port",
			input:    "https://example.com:80/",
			expected: "https://example.com:80/",
		},
		{
			name:     "path case preserved",
			input:    "https://example.com/CaseSensitive",
			expected: "https://example.com/CaseSensitive",
		},
		{
			name:     "repeated keys keep value order",
			input:    "https://example.com/s?z=1&a=2&a=1",
			expected: "https://example.com/s?a=2&a=1&z=1",
		},
		{
			name:     "empty query dropped",
			input:    "https://example.com/s?",
			expected: "https://example.com/s",
		},
		{
			name:     "ipv6 host",
			input:    "http://[::1]:8080/x",
			expected: "http://[::1]:8080/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize_EquivalentURLsCollapse(t *testing.T) {
	variants := []string{
		"https://example.com/page?b=2&a=1",
		"HTTPS://EXAMPLE.COM/page/?a=1&b=2",
		"https://example.com:443/page?a=1&b=2",
	}

	first, err := Normalize(variants[0])
	require.NoError(t, err)
	for _, v := range variants[1:] {
		got, err := Normalize(v)
		require.NoError(t, err)
		assert.Equal(t, first, got, v)
		assert.Equal(t, Hash(first), Hash(got))
	}
}

func TestNormalize_Errors(t *testing.T) {
	for _, input := range []string{"http://%zz", "mailto:someone@example.com", ""} {
		_, err := Normalize(input)
		assert.Error(t, err, input)
	}
}

func TestHash(t *testing.T) {
	h := Hash("https://example.com/")
	assert.Len(t, h, 64)
	assert.Equal(t, h, Hash("https://example.com/"))
	assert.NotEqual(t, h, Hash("https://example.com/a"))
}
