package middleware

import "testing"

func TestIsDispatchRequest(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "chat completions", path: "/v1/chat/completions", expected: true},
		{name: "completions", path: "/v1/completions", expected: true},
		{name: "models", path: "/v1/models", expected: true},

		{name: "health check endpoint", path: "/internal/health", expected: false},
		{name: "status endpoint", path: "/internal/status", expected: false},
		{name: "version endpoint", path: "/internal/version", expected: false},
		{name: "root path", path: "/", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsDispatchRequest(tt.path)
			if result != tt.expected {
				t.Errorf("IsDispatchRequest(%q) = %v, want %v", tt.path, result, tt.expected)
			}
		})
	}
}
