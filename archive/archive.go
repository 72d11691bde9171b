package archive

import (
	"fmt"
	"os"
	"strings"

	"paasport/job"
	"paasport/logger"
	"paasport/util"
)

// CommandRunner mirrors util.RunCommand so the tar invocation can be
// faked in tests.
type CommandRunner func(name string, args ...string) error

// Builder writes the single migration archive. Paths are archived
// relative to / so the destination can extract with `tar -xzf - -C /`
// and restore the exact source layout.
type Builder struct {
	Runner CommandRunner
}

func NewBuilder() *Builder {
	return &Builder{Runner: util.RunCommand}
}

// debug level logging output fields for archive package
func archiveLogBaseFields(jobctx job.JobContext) map[string]interface{} {
	coreFields := logger.CoreLogFields(&jobctx, "archive")
	fields := logger.MergeFields(coreFields, map[string]interface{}{
		"archive_path": jobctx.ArchivePath,
		"data_dir":     jobctx.DataDir,
	})
	return fields
}

// Build creates the archive from the given absolute paths, shelling out
// to tar. If the archive file already exists the build is skipped
// entirely; the reused file is never inspected for freshness, which is
// the original presence-based behavior.
func (b *Builder) Build(jobctx *job.JobContext, paths []string) (skipped bool, err error) {
	verboseFields := archiveLogBaseFields(*jobctx)

	if _, statErr := os.Stat(jobctx.ArchivePath); statErr == nil {
		logger.LogxWithFields("warn", fmt.Sprintf("Archive %s already exists, reusing it without checking freshness", jobctx.ArchivePath), verboseFields)
		if sizeErr := b.recordSize(jobctx); sizeErr != nil {
			return true, sizeErr
		}
		return true, nil
	}

	if len(paths) == 0 {
		return false, fmt.Errorf("no paths to archive")
	}

	logger.LogxWithFields("debug", fmt.Sprintf("Compressing %d path(s) to %s", len(paths), jobctx.ArchivePath), verboseFields)

	args := tarArgs(jobctx.ArchivePath, paths)
	if err := b.Runner("tar", args...); err != nil {
		logger.LogxWithFields("error", fmt.Sprintf("Error building archive at %s", jobctx.ArchivePath), map[string]interface{}{
			"package": "archive",
			"target":  jobctx.Target,
			"job_id":  jobctx.JobID,
		})
		os.Remove(jobctx.ArchivePath) // ensure partial file is cleaned up
		return false, fmt.Errorf("error building archive: %v", err)
	}

	if err := b.recordSize(jobctx); err != nil {
		return false, err
	}

	logger.LogxWithFields("info", "Successfully built migration archive", map[string]interface{}{
		"package":      "archive",
		"target":       jobctx.Target,
		"job_id":       jobctx.JobID,
		"archive_path": jobctx.ArchivePath,
		"size":         jobctx.ArchiveSizeMBString,
	})
	return false, nil
}

// tar arguments: unix sockets are excluded (they cannot be archived
// meaningfully and some daemons leave them behind), progress markers are
// emitted every 1000 records, and member names are stored /-relative.
func tarArgs(archivePath string, paths []string) []string {
	args := []string{
		"--exclude=*.sock",
		"--checkpoint=1000",
		"--checkpoint-action=dot",
		"-czpf", archivePath,
		"-C", "/",
	}
	for _, p := range paths {
		args = append(args, strings.TrimPrefix(p, "/"))
	}
	return args
}

// get output file size and return to job context
func (b *Builder) recordSize(jobctx *job.JobContext) error {
	fileInfo, err := os.Stat(jobctx.ArchivePath)
	if err != nil {
		return fmt.Errorf("error gathering archive file info: %v", err)
	}
	jobctx.ArchiveSizeBytesInt = fileInfo.Size()
	jobctx.ArchiveSizeMBString = fmt.Sprintf("%.2f MB", float64(jobctx.ArchiveSizeBytesInt)/1024.0/1024.0)
	return nil
}
