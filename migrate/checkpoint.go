package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const checkpointFileName = "migration-checkpoint.json"

// Checkpoint records how far a migration run got so an interrupted run
// can resume instead of restarting from scratch.
type Checkpoint struct {
	JobID       string    `json:"job_id"`
	Stage       string    `json:"stage"`                 // last completed stage
	RemoteStep  string    `json:"remote_step,omitempty"` // last completed destination step
	ArchivePath string    `json:"archive_path,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CheckpointPath returns the checkpoint location inside the state dir.
func CheckpointPath(stateDir string) string {
	return filepath.Join(stateDir, checkpointFileName)
}

// LoadCheckpoint reads a checkpoint if one exists; (nil, nil) when the
// file is absent.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var ck Checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &ck, nil
}

// Save writes the checkpoint atomically (tmp + rename).
func (c *Checkpoint) Save(path string) error {
	c.UpdatedAt = time.Now()

	tmpFilePath := path + ".tmp"
	f, err := os.Create(tmpFilePath)
	if err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	f.Close()

	if err := os.Rename(tmpFilePath, path); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoint removes the checkpoint after a fully successful run.
func ClearCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	return nil
}
