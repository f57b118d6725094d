package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageStats summarizes one (user, provider, day) quota counter.
type UsageStats struct {
	UserID     string `json:"user_id"`
	ProviderID string `json:"provider_id"`
	Day        string `json:"day"`
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
}

// UsageEvent is the audit record of one attempted provider call.
type UsageEvent struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	ProviderID   string    `json:"provider_id"`
	Model        string    `json:"model"`
	Success      bool      `json:"success"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ImageCount   int       `json:"image_count"`
	LatencyMS    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
