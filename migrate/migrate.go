package migrate

import (
	"context"
	"fmt"
	"time"

	"paasport/job"
	"paasport/logger"
	"paasport/preflight"
	"paasport/remote"
)

// Stage names recorded in the checkpoint, in run order.
const (
	StagePreflight = "preflight"
	StageDiscover  = "discover"
	StageArchive   = "archive"
	StageTransfer  = "transfer"
)

// Discoverer resolves the volume data paths to ship.
type Discoverer interface {
	VolumePaths(ctx context.Context, jobctx *job.JobContext) ([]string, error)
}

// ArchiveBuilder produces the migration archive; reports whether the
// build was skipped because the file already existed.
type ArchiveBuilder interface {
	Build(jobctx *job.JobContext, paths []string) (skipped bool, err error)
}

// Runner drives the migration stages: preflight, discover, archive,
// transfer. Cleanup of the local archive stays at the CLI boundary.
// Entirely sequential; every stage blocks until done and the first
// failure terminates the run.
type Runner struct {
	Job                *job.JobContext
	Checks             []preflight.Check
	Discoverer         Discoverer
	Builder            ArchiveBuilder
	AuthorizedKeysPath string

	// StopDocker/StartDocker quiesce the local daemon around the
	// archive build when the operator asked for it.
	StopDocker  func(*job.JobContext) error
	StartDocker func(*job.JobContext) error

	// DialRemote opens the destination connection; deferred until the
	// archive exists so a failed build never touches the destination.
	DialRemote func() (remote.Executor, func() error, error)
	Steps      []remote.Step

	// SizeOf measures a directory tree for the informational size
	// report; nil disables the report.
	SizeOf func(path string) (int64, error)

	CheckpointPath string
	Resume         bool
}

func (r *Runner) coreFields() map[string]interface{} {
	return logger.CoreLogFields(r.Job, "migrate")
}

// Run executes the full migration.
func (r *Runner) Run(ctx context.Context) error {
	ck, err := r.loadCheckpoint()
	if err != nil {
		return err
	}

	// preflight always runs, resumed or not; the probes are cheap and
	// the environment may have changed since the interrupted run
	if err := preflight.Run(r.Job, r.Checks); err != nil {
		return err
	}
	r.advance(ck, StagePreflight)

	paths, err := r.discover(ctx)
	if err != nil {
		return fmt.Errorf("volume discovery failed: %w", err)
	}
	r.advance(ck, StageDiscover)

	r.reportSizes(paths)

	if err := r.buildArchive(paths); err != nil {
		return err
	}
	r.advance(ck, StageArchive)

	if err := r.transfer(ck); err != nil {
		return err
	}

	if err := ClearCheckpoint(r.CheckpointPath); err != nil {
		logger.LogxWithFields("warn", fmt.Sprintf("Failed to clear checkpoint: %v", err), r.coreFields())
	}

	duration := time.Since(r.Job.StartTime).Seconds()
	logger.LogxWithFields("info", fmt.Sprintf("Migration success, execution time: %.2fs", duration), map[string]interface{}{
		"package":     "migrate",
		"target":      r.Job.Target,
		"job_id":      r.Job.JobID,
		"remote_host": r.Job.RemoteHost,
		"duration":    fmt.Sprintf("%.2fs", duration),
		"size":        r.Job.ArchiveSizeMBString,
		"success":     true,
	})
	return nil
}

// loadCheckpoint honours -resume; a stale checkpoint from a previous run
// is discarded when starting fresh.
func (r *Runner) loadCheckpoint() (*Checkpoint, error) {
	existing, err := LoadCheckpoint(r.CheckpointPath)
	if err != nil {
		return nil, err
	}

	if r.Resume && existing != nil {
		logger.LogxWithFields("info", fmt.Sprintf("Resuming migration after stage %s", existing.Stage), logger.MergeFields(r.coreFields(), map[string]interface{}{
			"stage":       existing.Stage,
			"remote_step": existing.RemoteStep,
			"resumed_job": existing.JobID,
		}))
		existing.JobID = r.Job.JobID
		return existing, nil
	}

	if existing != nil {
		logger.LogxWithFields("warn", "Found checkpoint from an interrupted run, starting fresh (-resume to continue it)", r.coreFields())
		if err := ClearCheckpoint(r.CheckpointPath); err != nil {
			return nil, err
		}
	}

	return &Checkpoint{JobID: r.Job.JobID}, nil
}

// advance records a completed stage, preserving any resumed remote step
// progress; checkpoint write failures are logged, not fatal, since they
// only cost resumability.
func (r *Runner) advance(ck *Checkpoint, stage string) {
	ck.Stage = stage
	ck.ArchivePath = r.Job.ArchivePath
	if err := ck.Save(r.CheckpointPath); err != nil {
		logger.LogxWithFields("warn", fmt.Sprintf("Failed to save checkpoint: %v", err), r.coreFields())
	}
}

func (r *Runner) discover(ctx context.Context) ([]string, error) {
	volumePaths, err := r.Discoverer.VolumePaths(ctx, r.Job)
	if err != nil {
		return nil, err
	}
	r.Job.VolumeCount = len(volumePaths)

	// archive contents: data dir, the operator's authorized_keys, then
	// every discovered volume path in encountered order
	paths := make([]string, 0, len(volumePaths)+2)
	paths = append(paths, r.Job.DataDir, r.AuthorizedKeysPath)
	paths = append(paths, volumePaths...)
	return paths, nil
}

// reportSizes logs the combined source size; informational only.
func (r *Runner) reportSizes(paths []string) {
	if r.SizeOf == nil {
		return
	}

	var total int64
	for _, p := range paths {
		size, err := r.SizeOf(p)
		if err != nil {
			logger.LogxWithFields("debug", fmt.Sprintf("Could not size %s: %v", p, err), r.coreFields())
			continue
		}
		total += size
	}
	r.Job.CombinedSourceBytes = total

	logger.LogxWithFields("info", fmt.Sprintf("Combined source size: %.2f MB across %d path(s)", float64(total)/1024.0/1024.0, len(paths)), logger.MergeFields(r.coreFields(), map[string]interface{}{
		"size_bytes": total,
		"volumes":    r.Job.VolumeCount,
	}))
}

func (r *Runner) buildArchive(paths []string) error {
	if r.Job.StopDocker && r.StopDocker != nil {
		if err := r.StopDocker(r.Job); err != nil {
			return fmt.Errorf("failed to stop docker before archive: %w", err)
		}
	}

	skipped, err := r.Builder.Build(r.Job, paths)

	// bring the daemon back regardless of the build outcome
	if r.Job.StopDocker && r.StartDocker != nil {
		if startErr := r.StartDocker(r.Job); startErr != nil {
			logger.LogxWithFields("error", fmt.Sprintf("Failed to restart docker after archive build: %v", startErr), r.coreFields())
		}
	}

	if err != nil {
		return fmt.Errorf("archive build failed: %w", err)
	}
	if skipped {
		logger.LogxWithFields("info", "Reusing existing archive", logger.MergeFields(r.coreFields(), map[string]interface{}{
			"archive_path": r.Job.ArchivePath,
			"size":         r.Job.ArchiveSizeMBString,
		}))
	}
	return nil
}

func (r *Runner) transfer(ck *Checkpoint) error {
	executor, closeConn, err := r.DialRemote()
	if err != nil {
		return fmt.Errorf("failed to connect to destination: %w", err)
	}
	defer closeConn()

	startAfter := ""
	if r.Resume {
		startAfter = ck.RemoteStep
	}

	return remote.RunSequence(r.Job, executor, r.Steps, startAfter, func(name string) {
		ck.RemoteStep = name
		r.advance(ck, StageTransfer)
	})
}
