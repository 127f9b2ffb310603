package api

import (
	"mediapipe/internal/jobs"
	"mediapipe/internal/store"
)

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	ID     string       `json:"id"`
	Status store.Status `json:"status"`
}

// ResourceListResponse is one page of file records.
type ResourceListResponse struct {
	Items []store.PublicFile `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// StatsResponse counts records by status.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// MessageRequest announces a message created by the chat backend.
type MessageRequest = jobs.MessageNotificationJob

// DeviceRequest registers a push token for a user.
type DeviceRequest struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	Platform string `json:"platform,omitempty"`
}

// StageHealth mirrors readiness reporting for stages and dependencies.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse reports component readiness.
type HealthResponse struct {
	Ready      bool          `json:"ready"`
	Components []StageHealth `json:"components"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool          `json:"running"`
	Queues      []string      `json:"queues"`
	LastError   string        `json:"lastError,omitempty"`
	StageHealth []StageHealth `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool           `json:"running"`
	PID             int            `json:"pid"`
	DatabasePath    string         `json:"databasePath"`
	LockFilePath    string         `json:"lockFilePath"`
	RealtimeClients int            `json:"realtimeClients"`
	FileStats       map[string]int `json:"fileStats"`
	Workflow        WorkflowStatus `json:"workflow"`
}

type errorResponse struct {
	Error string `json:"error"`
}
