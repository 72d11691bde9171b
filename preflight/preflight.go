package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"paasport/job"
	"paasport/keys"
	"paasport/logger"
)

// Check is a single synchronous precondition probe. No retries; the
// first failing check terminates the run.
type Check struct {
	Name  string
	Probe func() error
}

// CheckError names the check that failed.
type CheckError struct {
	Check string
	Err   error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("preflight check %s failed: %v", e.Check, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// Probes are the environment touchpoints the default checks use,
// injectable for tests.
type Probes struct {
	Geteuid    func() int
	Stat       func(string) (os.FileInfo, error)
	LookPath   func(string) (string, error)
	KeyPerms   func(string) error
	PingDocker func(context.Context) error
	SSHReach   func() error
}

// DefaultProbes wires the real environment.
func DefaultProbes(pingDocker func(context.Context) error, sshReach func() error) Probes {
	return Probes{
		Geteuid:    os.Geteuid,
		Stat:       os.Stat,
		LookPath:   exec.LookPath,
		KeyPerms:   keys.ValidateSSHPrivateKeyPerms,
		PingDocker: pingDocker,
		SSHReach:   sshReach,
	}
}

// Params describes what the default check set validates.
type Params struct {
	DataDir            string
	SSHKeyPath         string
	AuthorizedKeysPath string
	Probes             Probes
}

// BuildChecks assembles the ordered precondition list: root privilege,
// source data directory, SSH private key (existence + permissions),
// local authorized_keys, docker binary, docker daemon, SSH reachability.
func BuildChecks(p Params) []Check {
	return []Check{
		{
			Name: "root-privilege",
			Probe: func() error {
				if p.Probes.Geteuid() != 0 {
					return fmt.Errorf("paasport must run as root (euid %d)", p.Probes.Geteuid())
				}
				return nil
			},
		},
		{
			Name: "data-directory",
			Probe: func() error {
				info, err := p.Probes.Stat(p.DataDir)
				if err != nil {
					return fmt.Errorf("data directory %s not found: %v", p.DataDir, err)
				}
				if !info.IsDir() {
					return fmt.Errorf("data directory %s is not a directory", p.DataDir)
				}
				return nil
			},
		},
		{
			Name: "ssh-private-key",
			Probe: func() error {
				if _, err := p.Probes.Stat(p.SSHKeyPath); err != nil {
					return fmt.Errorf("SSH private key %s not found: %v", p.SSHKeyPath, err)
				}
				return p.Probes.KeyPerms(p.SSHKeyPath)
			},
		},
		{
			Name: "authorized-keys",
			Probe: func() error {
				if _, err := p.Probes.Stat(p.AuthorizedKeysPath); err != nil {
					return fmt.Errorf("authorized_keys %s not found: %v", p.AuthorizedKeysPath, err)
				}
				return nil
			},
		},
		{
			Name: "docker-binary",
			Probe: func() error {
				if _, err := p.Probes.LookPath("docker"); err != nil {
					return fmt.Errorf("docker binary not found in PATH: %v", err)
				}
				return nil
			},
		},
		{
			Name: "docker-daemon",
			Probe: func() error {
				return p.Probes.PingDocker(context.Background())
			},
		},
		{
			Name: "ssh-connectivity",
			Probe: func() error {
				return p.Probes.SSHReach()
			},
		},
	}
}

// Run walks the checks in order and stops at the first failure.
func Run(jobctx *job.JobContext, checks []Check) error {
	for _, check := range checks {
		if err := check.Probe(); err != nil {
			logger.LogxWithFields("error", fmt.Sprintf("Preflight check failed: %v", err), map[string]interface{}{
				"package": "preflight",
				"target":  jobctx.Target,
				"job_id":  jobctx.JobID,
				"check":   check.Name,
				"success": false,
			})
			return &CheckError{Check: check.Name, Err: err}
		}
		logger.LogxWithFields("debug", fmt.Sprintf("Preflight check passed: %s", check.Name), map[string]interface{}{
			"package": "preflight",
			"target":  jobctx.Target,
			"job_id":  jobctx.JobID,
			"check":   check.Name,
		})
	}

	logger.LogxWithFields("info", "All preflight checks passed", map[string]interface{}{
		"package": "preflight",
		"target":  jobctx.Target,
		"job_id":  jobctx.JobID,
		"checks":  len(checks),
	})
	return nil
}
