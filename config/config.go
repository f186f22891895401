package config

import "time"

var Version string

// Used so that we can generate fixed timestamps in tests
var Clock TimestampGenerator = RealTimestampGenerator{}

// Directory layout under the data root (§4.H)
const (
	DirVideosInput  = "videos_input"
	DirVideosOutput = "videos_output"
	DirVideosTemp   = "videos_temp"
	DirServerLogs   = "server_logs"
	DirQueueDB      = "queue_db"
)

const TaskDBFileName = "tasks.json"

// Default number of worker goroutines draining the task queue
const DefaultWorkers = 3

// Default HTTP listen port
const DefaultPort = 8000

// Maximum accepted upload size
const DefaultMaxVideoSizeGB = 2

// Maximum number of tasks allowed to be PROCESSING at once
const DefaultMaxConcurrentTasks = 3

// How long a task may sit in PROCESSING before the supervisor fails it
const DefaultTaskTimeoutHours = 24

// Default PROTECT params, applied when a request omits them
const (
	DefaultEpsilon    = 0.120
	DefaultStrength   = 1.0
	DefaultAudioLevel = "weak"
	DefaultEveryN     = 10
)

// How often the supervisor scans for timed-out tasks
const SupervisorScanInterval = 1 * time.Hour

// How often an idle worker polls for new PENDING tasks
const WorkerPollInterval = 5 * time.Second

// How long completed/failed/cancelled tasks are retained before Cleanup removes them
const DefaultRetentionDays = 7

var AllowedVideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// Canonical audio masking levels (§9 Open Question 2: resolved in favor of the
// spec's four-value set, dropping the original implementation's fifth,
// "очень слабый"/0.0020 level).
var AudioLevelStrength = map[string]float64{
	"none":   0,
	"weak":   0.0035,
	"medium": 0.0050,
	"strong": 0.0080,
}
