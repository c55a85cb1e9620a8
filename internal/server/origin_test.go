package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestWithOrigin(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name          string
		appURL        string
		isDevelopment bool
		origin        string
		want          bool
	}{
		{"empty origin allowed", "https://hub.example.com", false, "", true},
		{"app origin allowed", "https://hub.example.com", false, "https://hub.example.com", true},
		{"foreign origin rejected", "https://hub.example.com", false, "https://evil.example.com", false},
		{"scheme mismatch rejected", "https://hub.example.com", false, "http://hub.example.com", false},
		{"localhost rejected in production", "https://hub.example.com", false, "http://localhost:3000", false},
		{"localhost allowed in development", "https://hub.example.com", true, "http://localhost:3000", true},
		{"loopback IP allowed in development", "https://hub.example.com", true, "http://127.0.0.1:3000", true},
		{"foreign origin rejected in development", "https://hub.example.com", true, "https://evil.example.com", false},
		{"malformed origin rejected", "https://hub.example.com", true, "::not-a-url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewCheckOrigin(tt.appURL, tt.isDevelopment)
			assert.Equal(t, tt.want, check(requestWithOrigin(tt.origin)))
		})
	}
}

func TestExtractOrigin(t *testing.T) {
	assert.Equal(t, "https://hub.example.com", extractOrigin("https://hub.example.com/path?x=1"))
	assert.Equal(t, "http://localhost:8080", extractOrigin("http://localhost:8080"))
	assert.Empty(t, extractOrigin("not a url"))
	assert.Empty(t, extractOrigin(""))
}
