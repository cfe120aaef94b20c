package api

import "time"

// Options configures the REST API server
type Options struct {
	Host               string
	Port               int
	RateLimitPerMinute int
	// SearchLimit and SearchThreshold are the defaults applied when the
	// query string omits them.
	SearchLimit     int
	SearchThreshold float64
}

// createRequest is the body of POST /api/memories
type createRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Force    bool           `json:"force,omitempty"`
}

// updateRequest is the body of PUT /api/memories/{id}
type updateRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// errorResponse is the envelope for all error payloads
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// healthResponse is the payload of GET /health
type healthResponse struct {
	Status     string  `json:"status"`
	Uptime     float64 `json:"uptime"`
	ModelReady bool    `json:"model_ready"`
	Timestamp  int64   `json:"timestamp"`
}

// rateLimitState tracks request timestamps for one client IP
type rateLimitState struct {
	requests []time.Time
}
