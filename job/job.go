package job

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobContext carries the state of a single migration run between stages.
type JobContext struct {
	Target              string // base name of the data directory, used for logging & metrics
	JobID               string
	StartTime           time.Time
	DataDir             string
	ArchivePath         string
	RemoteHost          string
	RemoteUser          string
	RemotePort          int
	StopDocker          bool
	DeleteArchive       bool
	Resumed             bool
	VolumeCount         int
	ArchiveSizeBytesInt int64
	ArchiveSizeMBString string
	CombinedSourceBytes int64
}

func GenerateJobID() string {
	// gen new random UUID
	u := uuid.New().String()
	parts := strings.Split(u, "-")
	q1 := parts[0] // initial 8-character sequence from UUID
	q2 := parts[1] // 1st 4-character sequence from UUID

	return q1 + q2
}
