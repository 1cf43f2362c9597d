package handler

import (
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
)

// Response is the standard API response envelope.
// Every JSON response uses it; /metrics and raw memory reads do not.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// UploadStateResponse is the data of POST /v1/states.
// The token is a decimal string so JavaScript clients keep all 63 bits.
type UploadStateResponse struct {
	Token string `json:"token"`
}

// DownloadStateResponse is the data of GET /v1/states/{token}.
type DownloadStateResponse struct {
	Token             string              `json:"token"`
	ExcludeMemoryData bool                `json:"exclude_memory_data"`
	SystemState       *domain.SystemState `json:"system_state"`
}

// StatusSummary is the data of GET /admin/v1/status/summary.
type StatusSummary struct {
	Status         string         `json:"status"`
	Build          buildinfo.Info `json:"build"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	States         int64          `json:"states"`
	StateBytes     int64          `json:"state_bytes"`
	StateTTL       string         `json:"state_ttl"`
	MaxStateBytes  int64          `json:"max_state_bytes"`
	MaxRangeLength int64          `json:"max_range_length"`
}

// GCResponse is the data of POST /admin/v1/gc/trigger.
type GCResponse struct {
	CleanedCount int    `json:"cleaned_count"`
	TriggeredAt  string `json:"triggered_at"`
}

// HealthResponse is the data of GET /health and GET /ready.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Commit  string `json:"commit,omitempty"`
	Time    string `json:"time"`
}
