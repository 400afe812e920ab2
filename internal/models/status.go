package models

import "time"

// Status is a read-only view of the active session.
type Status struct {
	Active    bool      `json:"active"`
	VideoID   string    `json:"video_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	Chunks    int       `json:"chunks,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}
