package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := CheckpointPath(t.TempDir())

	ck := &Checkpoint{
		JobID:       "abc123",
		Stage:       StageTransfer,
		RemoteStep:  "extract-archive",
		ArchivePath: "/var/paasport/coolify-migration.bak.tar.gz",
	}
	if err := ck.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadCheckpoint() = nil, want checkpoint")
	}
	if loaded.Stage != StageTransfer || loaded.RemoteStep != "extract-archive" {
		t.Errorf("loaded checkpoint = %+v", loaded)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on save")
	}
}

func TestLoadCheckpointAbsent(t *testing.T) {
	ck, err := LoadCheckpoint(CheckpointPath(t.TempDir()))
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if ck != nil {
		t.Errorf("LoadCheckpoint() = %+v, want nil for absent file", ck)
	}
}

func TestLoadCheckpointCorrupt(t *testing.T) {
	path := CheckpointPath(t.TempDir())
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCheckpoint(path); err == nil {
		t.Fatal("LoadCheckpoint() expected error for corrupt file")
	}
}

func TestClearCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := CheckpointPath(dir)

	ck := &Checkpoint{JobID: "abc123", Stage: StagePreflight}
	if err := ck.Save(path); err != nil {
		t.Fatal(err)
	}
	if err := ClearCheckpoint(path); err != nil {
		t.Fatalf("ClearCheckpoint() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("checkpoint file still present after clear")
	}

	// clearing an already-absent checkpoint is not an error
	if err := ClearCheckpoint(filepath.Join(dir, "missing.json")); err != nil {
		t.Errorf("ClearCheckpoint() on absent file error = %v", err)
	}
}
