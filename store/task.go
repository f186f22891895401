package store

import "time"

type Kind string

const (
	KindProtect        Kind = "PROTECT"
	KindStripMetadata  Kind = "STRIP_METADATA"
	KindCompress       Kind = "COMPRESS"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether a status has no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

const (
	AudioLevelNone   = "none"
	AudioLevelWeak   = "weak"
	AudioLevelMedium = "medium"
	AudioLevelStrong = "strong"
)

// ProtectParams holds the PROTECT-kind task parameters (§3).
type ProtectParams struct {
	Epsilon    float64 `json:"epsilon"`
	Strength   float64 `json:"strength"`
	EveryN     int     `json:"every_n"`
	AudioLevel string  `json:"audio_level"`
}

// CompressParams holds the COMPRESS-kind task parameters (§3).
type CompressParams struct {
	TargetMB float64 `json:"target_mb"`
}

// Task is the persistent record described in §3. Exactly one of Protect /
// Compress is populated, selected by Kind; STRIP_METADATA carries neither.
type Task struct {
	ID        string `json:"id"`
	InputName string `json:"input_name"`
	Kind      Kind   `json:"kind"`
	Status    Status `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Protect  *ProtectParams  `json:"protect,omitempty"`
	Compress *CompressParams `json:"compress,omitempty"`

	Progress        float64 `json:"progress"`
	ProcessedFrames int     `json:"processed_frames"`
	TotalFrames     int     `json:"total_frames"`

	OutputName   string  `json:"output_name,omitempty"`
	OutputSizeMB float64 `json:"output_size_mb,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	UserID     string `json:"user_id,omitempty"`
	Notes      string `json:"notes,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Clone returns a deep-enough copy for safe handoff across the store's lock
// boundary: callers must never mutate a Task obtained from Get/List without
// going through Update.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		tc := *t.CompletedAt
		c.CompletedAt = &tc
	}
	if t.Protect != nil {
		p := *t.Protect
		c.Protect = &p
	}
	if t.Compress != nil {
		p := *t.Compress
		c.Compress = &p
	}
	return &c
}

// Stats is the §4.G /stats projection.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}
