package input

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"paasport/job"
	"paasport/util"
)

// input struct to format final config + flag outcomes
type InputContext struct {
	DataDir        string
	ArchivePath    string
	SSHKeyPath     string
	RemoteHost     string
	RemoteUser     string
	RemotePort     int
	StopDocker     bool
	DeleteArchive  bool
	NonInteractive bool
	Resume         bool

	Config *ConfigFile
}

// finalize merges config defaults and validates all input.
func Finalize(ic *InputContext) error {
	cfg := ic.Config

	// apply config defaults for anything unset at the flag level
	if ic.DataDir == "" {
		ic.DataDir = cfg.DataDir
	}
	if ic.SSHKeyPath == "" {
		ic.SSHKeyPath = cfg.SSHKeyPath
	}
	if ic.RemoteHost == "" {
		ic.RemoteHost = cfg.RemoteHost
	}
	if ic.RemoteUser == "" {
		ic.RemoteUser = cfg.RemoteUser
	}
	if ic.RemotePort == 0 {
		ic.RemotePort = cfg.RemotePort
	}
	if ic.ArchivePath == "" {
		ic.ArchivePath = cfg.ArchivePath
	}
	// a fixed archive name in the state dir mirrors the original
	// fixed-name behavior, presence-based skip included
	if ic.ArchivePath == "" {
		base := filepath.Base(strings.TrimSuffix(ic.DataDir, "/"))
		ic.ArchivePath = filepath.Join(cfg.StateDir, base+"-migration.bak.tar.gz")
	}

	// validate target data dir
	if ic.DataDir == "" {
		return fmt.Errorf("must specify a data directory via -data-dir or data_directory")
	}

	// validate both remotehost & remoteuser are supplied
	if ic.RemoteHost == "" || ic.RemoteUser == "" {
		return fmt.Errorf("both remote-user and remote-host must be specified")
	}

	if err := util.ValidateIP(ic.RemoteHost); err != nil {
		return fmt.Errorf("invalid remote-host: %v", err)
	}

	if cfg.ICMPTest {
		if err := util.ICMPRemoteHost(ic.RemoteHost); err != nil {
			return fmt.Errorf("ICMP test failed: %v", err)
		}
	}

	return nil
}

// BuildJobContext initializes a new JobContext from InputContext
func (ic *InputContext) BuildJobContext() *job.JobContext {
	return &job.JobContext{
		Target:              filepath.Base(strings.TrimSuffix(ic.DataDir, "/")),
		JobID:               job.GenerateJobID(),
		StartTime:           time.Now(),
		DataDir:             strings.TrimSuffix(ic.DataDir, "/"),
		ArchivePath:         ic.ArchivePath,
		RemoteHost:          ic.RemoteHost,
		RemoteUser:          ic.RemoteUser,
		RemotePort:          ic.RemotePort,
		StopDocker:          ic.StopDocker,
		DeleteArchive:       ic.DeleteArchive,
		Resumed:             ic.Resume,
		ArchiveSizeMBString: "0.0 MB",
	}
}
