package types

// MeshRequest is the body of POST / on the mesh service.
type MeshRequest struct {
	// Required input image, raw base64 or a data URI.
	// example: data:image/png;base64,iVBORw0KGgo...
	Image string `json:"image" example:"data:image/png;base64,iVBORw0KGgo..."`
	// Segment the foreground and composite it over mid-gray before reconstruction.
	// Omitted means true.
	// example: true
	RemoveBackground *bool `json:"remove_background,omitempty" example:"true"`
	// Fraction of the frame the foreground occupies after resizing, in (0,1].
	// Omitted means 0.85.
	// example: 0.85
	ForegroundRatio *float64 `json:"foreground_ratio,omitempty" example:"0.85"`
}

// DiffusionRequest is the body of POST / on the diffusion service.
type DiffusionRequest struct {
	// Required seed image, raw base64 or a data URI.
	// example: data:image/jpeg;base64,/9j/4AAQ...
	Image string `json:"image" example:"data:image/jpeg;base64,/9j/4AAQ..."`
	// Required text prompt.
	// example: a watercolor fox in the snow
	Prompt string `json:"prompt" example:"a watercolor fox in the snow"`
	// Number of denoising steps. 2 selects a near-full strength pass.
	// example: 2
	NumIterations int `json:"num_iterations" example:"2"`
}

// ModelsResponse wraps the list of cached models returned by GET /models.
type ModelsResponse struct {
	// Weight snapshots present in the local cache.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Name of the model service bound to this container.
	// example: mesh
	Service string `json:"service" example:"mesh"`
	// Lifecycle state (loading, ready, error, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last startup or lifecycle error, if any.
	LastError string `json:"last_error,omitempty"`
	// Requests waiting for the generation slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Requests currently running inference (0 or 1).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Last time a request finished or started (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Idle period after which the container becomes eligible for reclaim.
	// example: 240
	IdleTimeoutSeconds int64 `json:"idle_timeout_seconds" example:"240"`
	// Time spent in Initialize at startup, in milliseconds.
	// example: 41000
	ColdStartMS int64 `json:"cold_start_ms" example:"41000"`
	// Total inference requests served since start.
	// example: 12
	RequestsTotal uint64 `json:"requests_total" example:"12"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
