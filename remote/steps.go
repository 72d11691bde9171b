package remote

import (
	"bytes"
	"fmt"
	"io"

	"paasport/job"
	"paasport/keys"
	"paasport/logger"
)

// Executor is the remote command surface the step sequence runs
// against. *Client satisfies it; tests substitute a fake.
type Executor interface {
	Run(command string) error
	Output(command string) (string, error)
	RunWithStdin(command string, stdin io.Reader) error
}

// Step is one named, independently reportable action on the
// destination host.
type Step struct {
	Name string
	Run  func(x Executor) error
}

// StepConfig parameterizes the destination step sequence.
type StepConfig struct {
	AuthorizedKeysPath string
	InstallScriptURL   string
	OpenArchive        func() (io.ReadCloser, error)
}

// BuildSteps assembles the ordered destination sequence: stop docker if
// it runs as a service, set the pre-existing authorized_keys aside,
// extract the streamed archive over /, merge authorized keys, then run
// the platform install script.
func BuildSteps(config StepConfig) []Step {
	authorizedKeys := config.AuthorizedKeysPath
	keysBackup := authorizedKeys + ".paasport-bak"

	return []Step{
		{
			Name: "stop-docker",
			Run: func(x Executor) error {
				// no error when docker is not installed as a service
				return x.Run("if command -v systemctl >/dev/null 2>&1 && systemctl is-active --quiet docker; then systemctl stop docker docker.socket; fi")
			},
		},
		{
			Name: "backup-keys",
			Run: func(x Executor) error {
				return x.Run(fmt.Sprintf("mkdir -p $(dirname %s) && if [ -f %s ]; then cp %s %s; fi", authorizedKeys, authorizedKeys, authorizedKeys, keysBackup))
			},
		},
		{
			Name: "extract-archive",
			Run: func(x Executor) error {
				archive, err := config.OpenArchive()
				if err != nil {
					return fmt.Errorf("failed to open local archive: %w", err)
				}
				defer archive.Close()

				// absolute paths restored verbatim; assumes the
				// destination shares the source filesystem layout
				return x.RunWithStdin("tar -xzf - -C /", archive)
			},
		},
		{
			Name: "merge-keys",
			Run: func(x Executor) error {
				existing, err := x.Output(fmt.Sprintf("cat %s 2>/dev/null || true", keysBackup))
				if err != nil {
					return fmt.Errorf("failed to read backed-up authorized_keys: %w", err)
				}
				shipped, err := x.Output(fmt.Sprintf("cat %s 2>/dev/null || true", authorizedKeys))
				if err != nil {
					return fmt.Errorf("failed to read shipped authorized_keys: %w", err)
				}

				merged := keys.MergeAuthorizedKeys([]byte(existing), []byte(shipped))
				writeCmd := fmt.Sprintf("cat > %s && chmod 600 %s", authorizedKeys, authorizedKeys)
				return x.RunWithStdin(writeCmd, bytes.NewReader(merged))
			},
		},
		{
			Name: "install",
			Run: func(x Executor) error {
				return x.Run(fmt.Sprintf("curl -fsSL %s | bash", config.InstallScriptURL))
			},
		},
	}
}

// RunSequence executes the steps in order against the destination. A
// failing step aborts the sequence; later steps never run. When resuming,
// startAfter names the last step a previous run completed and every step
// up to and including it is skipped. completed is invoked after each
// successful step so the caller can checkpoint progress.
func RunSequence(jobctx *job.JobContext, x Executor, steps []Step, startAfter string, completed func(name string)) error {
	skipping := startAfter != ""

	for _, step := range steps {
		if skipping {
			logger.LogxWithFields("info", fmt.Sprintf("Skipping already-completed remote step %s", step.Name), map[string]interface{}{
				"package": "remote",
				"target":  jobctx.Target,
				"job_id":  jobctx.JobID,
				"step":    step.Name,
			})
			if step.Name == startAfter {
				skipping = false
			}
			continue
		}

		logger.LogxWithFields("debug", fmt.Sprintf("Running remote step %s on %s", step.Name, jobctx.RemoteHost), map[string]interface{}{
			"package":     "remote",
			"target":      jobctx.Target,
			"job_id":      jobctx.JobID,
			"step":        step.Name,
			"remote_host": jobctx.RemoteHost,
		})

		if err := step.Run(x); err != nil {
			logger.LogxWithFields("error", fmt.Sprintf("Remote step %s failed: %v", step.Name, err), map[string]interface{}{
				"package":     "remote",
				"target":      jobctx.Target,
				"job_id":      jobctx.JobID,
				"step":        step.Name,
				"remote_host": jobctx.RemoteHost,
				"success":     false,
			})
			return fmt.Errorf("remote step %s failed: %w", step.Name, err)
		}

		if completed != nil {
			completed(step.Name)
		}

		logger.LogxWithFields("info", fmt.Sprintf("Remote step %s completed", step.Name), map[string]interface{}{
			"package":     "remote",
			"target":      jobctx.Target,
			"job_id":      jobctx.JobID,
			"step":        step.Name,
			"remote_host": jobctx.RemoteHost,
		})
	}

	return nil
}
