package api

import "github.com/und3rrr/media-cleaner/store"

// TaskResponse is the §4.G JSON projection of a store.Task.
type TaskResponse struct {
	ID              string  `json:"id"`
	InputName       string  `json:"input_name"`
	Kind            string  `json:"kind"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	StartedAt       string  `json:"started_at,omitempty"`
	CompletedAt     string  `json:"completed_at,omitempty"`
	Progress        float64 `json:"progress"`
	ProcessedFrames int     `json:"processed_frames"`
	TotalFrames     int     `json:"total_frames"`
	OutputName      string  `json:"output_name,omitempty"`
	OutputSizeMB    float64 `json:"output_size_mb,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	UserID          string  `json:"user_id,omitempty"`
	Notes           string  `json:"notes,omitempty"`

	Epsilon    float64 `json:"epsilon,omitempty"`
	Strength   float64 `json:"strength,omitempty"`
	EveryN     int     `json:"every_n,omitempty"`
	AudioLevel string  `json:"audio_level,omitempty"`
	TargetMB   float64 `json:"target_mb,omitempty"`
}

func toTaskResponse(t *store.Task) TaskResponse {
	resp := TaskResponse{
		ID:              t.ID,
		InputName:       t.InputName,
		Kind:            string(t.Kind),
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt.Format(timeFormat),
		Progress:        t.Progress,
		ProcessedFrames: t.ProcessedFrames,
		TotalFrames:     t.TotalFrames,
		OutputName:      t.OutputName,
		OutputSizeMB:    t.OutputSizeMB,
		ErrorMessage:    t.ErrorMessage,
		UserID:          t.UserID,
		Notes:           t.Notes,
	}
	if t.StartedAt != nil {
		resp.StartedAt = t.StartedAt.Format(timeFormat)
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.Format(timeFormat)
	}
	if t.Protect != nil {
		resp.Epsilon = t.Protect.Epsilon
		resp.Strength = t.Protect.Strength
		resp.EveryN = t.Protect.EveryN
		resp.AudioLevel = t.Protect.AudioLevel
	}
	if t.Compress != nil {
		resp.TargetMB = t.Compress.TargetMB
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// StatsResponse has the same fields and JSON names as store.Stats. No
// handler uses it: /stats writes store.Stats under its "stats" key.
type StatsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// HealthResponse is the §4.G /health projection.
type HealthResponse struct {
	Status     string `json:"status"`
	QueueSize  int    `json:"queue_size"`
	Processing int    `json:"processing"`
}
