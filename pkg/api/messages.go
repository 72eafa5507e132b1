package api

import (
	"encoding/json"
	"errors"
	"time"
)

type (
	// InstanceStatusResponse is the client-facing status of an instance
	InstanceStatusResponse struct {
		CreatedAt   time.Time       `json:"created_at"`
		CompletedAt time.Time       `json:"completed_at,omitzero"`
		LastUpdated time.Time       `json:"last_updated"`
		Input       json.RawMessage `json:"input,omitempty"`
		Output      json.RawMessage `json:"output,omitempty"`
		ID          InstanceID      `json:"id"`
		Name        string          `json:"name"`
		Status      InstanceStatus  `json:"status"`
		Error       string          `json:"error,omitempty"`
	}

	// StartResponse mirrors a check-status response: the new instance ID
	// plus the URLs a caller can use to follow up on it
	StartResponse struct {
		ID           InstanceID `json:"id"`
		StatusURL    string     `json:"status_url"`
		HistoryURL   string     `json:"history_url"`
		TerminateURL string     `json:"terminate_url"`
		WebSocketURL string     `json:"websocket_url"`
	}

	// TerminateRequest carries an optional termination reason
	TerminateRequest struct {
		Reason string `json:"reason"`
	}

	// HistoryResponse lists an instance's history events
	HistoryResponse struct {
		ID     InstanceID      `json:"id"`
		Events []*HistoryEvent `json:"events"`
		Count  int             `json:"count"`
	}

	// HealthResponse reports service health
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}

	// ErrorResponse is the body of every non-2xx HTTP response
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}

	// StreamMessage is sent to WebSocket clients following an instance
	StreamMessage struct {
		Type  string                  `json:"type"`
		State *InstanceStatusResponse `json:"state,omitempty"`
		Event *HistoryEvent           `json:"event,omitempty"`
	}
)

const (
	StreamSubscribed = "subscribed"
	StreamEvent      = "event"
)

var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrInstanceExists   = errors.New("instance exists")
	ErrInstanceTerminal = errors.New("instance is terminal")
)

// NewInstanceStatusResponse projects folded state onto the client view
func NewInstanceStatusResponse(st *InstanceState) *InstanceStatusResponse {
	return &InstanceStatusResponse{
		CreatedAt:   st.CreatedAt,
		CompletedAt: st.CompletedAt,
		LastUpdated: st.LastUpdated,
		Input:       st.Input,
		Output:      st.Output,
		ID:          st.ID,
		Name:        st.Name,
		Status:      st.Status,
		Error:       st.Error,
	}
}
