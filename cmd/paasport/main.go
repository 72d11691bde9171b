package main

// Paasport

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"paasport/archive"
	"paasport/docker"
	"paasport/input"
	"paasport/job"
	"paasport/logger"
	"paasport/metrics"
	"paasport/migrate"
	"paasport/preflight"
	"paasport/remote"
	"paasport/util"
)

const Version = "v0.3.1"
const motd = "ship your paas, keep your keys <3"

// debug level logging output fields for main package
func mainLogDebugFields(context *job.JobContext) map[string]interface{} {
	coreFields := logger.CoreLogFields(context, "main")
	fields := logger.MergeFields(coreFields, map[string]interface{}{
		"data_dir":       context.DataDir,
		"archive_path":   context.ArchivePath,
		"remote_host":    context.RemoteHost,
		"remote_user":    context.RemoteUser,
		"stop_docker":    context.StopDocker,
		"delete_archive": context.DeleteArchive,
		"resumed":        context.Resumed,
	})

	return fields
}

// main loop
func main() {
	// version & setup flags
	appVersion := flag.Bool("version", false, "Display app version information")
	initEnvBool := flag.Bool("setup", false, "Run setup utility")
	configPath := flag.String("config", input.DefaultConfigPath, "Path to config.yml")

	// core job flags
	dataDir := flag.String("data-dir", "", "PaaS data directory to migrate (overrides config)")
	archiveFile := flag.String("archive-file", "", "Archive output path (overrides config)")
	sshKeyPath := flag.String("ssh-key", "", "SSH private key for the destination (overrides config)")

	// destination flags
	remoteHost := flag.String("remote-host", "", "Destination machine IP(v4/v6) address or hostname")
	remoteUser := flag.String("remote-user", "", "Destination machine username")
	remotePort := flag.Int("remote-port", 0, "Destination SSH port")

	// behaviour flags
	stopDockerBool := flag.Bool("stop-docker", false, "Stop the local Docker daemon while archiving (consistent volume data)")
	deleteArchiveBool := flag.Bool("delete-archive", false, "Delete the local archive after a successful transfer")
	nonInteractive := flag.Bool("non-interactive", false, "Never prompt; take stop/delete decisions from config & flags")
	resumeBool := flag.Bool("resume", false, "Resume an interrupted migration from its checkpoint")

	// metrics flags
	serveMetricsBool := flag.Bool("serve-metrics", false, "Serve cached metrics from the last run, then exit")

	// custom help messaging
	flag.Usage = func() {
		fmt.Println("------------------------------------------------------------------------")
		fmt.Printf("paasport %s  ~  %s\n", Version, motd)
		fmt.Println("-------------------------------------------------------------------------")
		fmt.Println("[Options]")
		fmt.Println("  [Setup & Info]")
		fmt.Println("     -setup")
		fmt.Println("        Run setup utility to init the paasport environment (default is /var/paasport/)")
		fmt.Println("     -version")
		fmt.Println("        Display app version information")
		fmt.Println("     -config <file>")
		fmt.Println("        Path to config.yml (default /etc/paasport/config.yml)")
		fmt.Println("\n  [Migration Flags]")
		fmt.Println("      -data-dir <dir>")
		fmt.Println("         PaaS data directory to migrate, e.g. /data/coolify")
		fmt.Println("      -archive-file <file>")
		fmt.Println("         Archive output path; an existing file is reused as-is")
		fmt.Println("      -remote-host <host>")
		fmt.Println("         Destination machine IP(v4/v6) address or hostname")
		fmt.Println("      -remote-user <user>")
		fmt.Println("         Destination machine username")
		fmt.Println("      -remote-port <port>")
		fmt.Println("         Destination SSH port (default 22)")
		fmt.Println("      -ssh-key <file>")
		fmt.Println("         SSH private key used to reach the destination")
		fmt.Println("\n  [Behaviour Flags]")
		fmt.Println("      -stop-docker")
		fmt.Println("         Stop the local Docker daemon while the archive is built")
		fmt.Println("      -delete-archive")
		fmt.Println("         Delete the local archive after a successful transfer")
		fmt.Println("      -non-interactive")
		fmt.Println("         Never prompt; decisions come from config & flags")
		fmt.Println("      -resume")
		fmt.Println("         Resume an interrupted migration from its checkpoint")
		fmt.Println("      -serve-metrics")
		fmt.Println("         Expose last-run metrics on the configured listen address, then exit")

		fmt.Println("\n[Examples]")
		fmt.Println("  First time setup")
		fmt.Println("    paasport -setup")
		fmt.Println("\n  Migrate to a new server")
		fmt.Println("    paasport -remote-host <host> -remote-user root")
		fmt.Println("\n  Unattended migration, stopping docker during the archive")
		fmt.Println("    paasport -non-interactive -stop-docker -delete-archive")
		fmt.Println("\n  Pick up where an interrupted run left off")
		fmt.Println("    paasport -resume")

		fmt.Println("\nFor more information, please check out the git repo readme <3")
	}

	flag.Parse()

	// special flags
	if *appVersion {
		fmt.Printf("paasport  ~  %s\n", motd)
		fmt.Printf("version: %s", Version)
		os.Exit(0)
	}

	// validate that current UID=0/program is running as root
	if os.Geteuid() != 0 {
		fmt.Println("Please run paasport with sudo or as the root user")
		fmt.Println("This is required to read Docker volumes, ship authorized_keys, and extract over / on the destination")
		os.Exit(1)
	}

	// if setup flag passed
	if *initEnvBool {
		input.SetupTool()
		os.Exit(0)
	}

	// load configfile
	configFile, err := input.LoadConfigFile(*configPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to load config: %v\n", err)
		fmt.Println("Please try paasport -setup first!")
		os.Exit(1)
	}

	// init environment
	stateDir, metricsDir, _ := input.InitEnvironment(*configFile)

	// serve cached metrics & exit
	if *serveMetricsBool {
		if err := metrics.LoadFromCacheAndExpose(metricsDir); err != nil {
			logger.Logx.Fatalf("Failed to load cached metrics: %v", err)
		}
		logger.Logx.Infof("Serving metrics on %s for %ds", configFile.ListenAddress, configFile.ListenDuration)
		metrics.StartMetricsServer(configFile.ListenAddress, time.Duration(configFile.ListenDuration)*time.Second)
		os.Exit(0)
	}

	// build input context
	inputCTX := &input.InputContext{
		DataDir:        *dataDir,
		ArchivePath:    *archiveFile,
		SSHKeyPath:     *sshKeyPath,
		RemoteHost:     *remoteHost,
		RemoteUser:     *remoteUser,
		RemotePort:     *remotePort,
		StopDocker:     *stopDockerBool || configFile.StopDocker,
		DeleteArchive:  *deleteArchiveBool || configFile.DeleteArchive,
		NonInteractive: *nonInteractive,
		Resume:         *resumeBool,
		Config:         configFile,
	}

	// interpret flags & handle config overrides
	if err := input.Finalize(inputCTX); err != nil {
		logger.LogxWithFields("fatal", fmt.Sprintf("Failure to parse input: %v", err), map[string]interface{}{
			"package": "main",
			"success": false,
		})
	}

	// stop-docker decision stays at the CLI boundary; the run itself
	// only ever sees the resolved boolean
	if !inputCTX.NonInteractive && !inputCTX.StopDocker {
		confirm := &survey.Confirm{
			Message: "Stop the local Docker daemon while the archive is built? (avoids capturing in-use volume data)",
			Default: configFile.StopDocker,
		}
		if err := survey.AskOne(confirm, &inputCTX.StopDocker); err != nil {
			logger.Logx.Fatalf("Prompt aborted: %v", err)
		}
	}

	jobCTX := inputCTX.BuildJobContext()

	logger.LogxWithFields("info", " --------------------------------------------------- ", map[string]interface{}{
		"package": "spacer",
		"job_id":  jobCTX.JobID,
	})
	logger.LogxWithFields("info", "New migration job added", map[string]interface{}{
		"package":     "main",
		"target":      jobCTX.Target,
		"job_id":      jobCTX.JobID,
		"remote_host": jobCTX.RemoteHost,
		"resumed":     jobCTX.Resumed,
		"version":     Version,
	})
	logger.LogxWithFields("debug", fmt.Sprintf("Beginning migration job via %s", jobCTX.DataDir), mainLogDebugFields(jobCTX))

	runner, engineErr := buildRunner(inputCTX, jobCTX, stateDir)
	if engineErr != nil {
		recordOutcome(metricsDir, jobCTX, false)
		logger.LogxWithFields("fatal", fmt.Sprintf("Failure to initialize migration: %v", engineErr), mainLogDebugFields(jobCTX))
	}

	if err := runner.Run(context.Background()); err != nil {
		recordOutcome(metricsDir, jobCTX, false)
		logger.LogxWithFields("fatal", fmt.Sprintf("Migration failed: %v", err), logger.MergeFields(mainLogDebugFields(jobCTX), map[string]interface{}{
			"success": false,
		}))
	}

	recordOutcome(metricsDir, jobCTX, true)

	// cleanup prompt only after a fully successful remote sequence
	handleCleanup(inputCTX, jobCTX)

	if configFile.EnableMetrics {
		logger.Logx.Infof("Serving metrics on %s for %ds", configFile.ListenAddress, configFile.ListenDuration)
		metrics.StartMetricsServer(configFile.ListenAddress, time.Duration(configFile.ListenDuration)*time.Second)
	}

	logger.LogxWithFields("info", " --------------------------------------------------- ", map[string]interface{}{
		"package":    "spacer",
		"end_job_id": jobCTX.JobID,
	})
}

// buildRunner wires the concrete stage implementations into the
// migration orchestrator.
func buildRunner(inputCTX *input.InputContext, jobCTX *job.JobContext, stateDir string) (*migrate.Runner, error) {
	configFile := inputCTX.Config

	engine, err := docker.NewEngineClient()
	if err != nil {
		return nil, err
	}

	clientConfig := remote.ClientConfig{
		Host:    inputCTX.RemoteHost,
		Port:    inputCTX.RemotePort,
		User:    inputCTX.RemoteUser,
		KeyPath: inputCTX.SSHKeyPath,
	}

	probes := preflight.DefaultProbes(
		func(ctx context.Context) error { return docker.PingDaemon(ctx, engine) },
		func() error {
			probeConfig := clientConfig
			probeConfig.Timeout = 5 * time.Second
			return remote.TestReachability(probeConfig)
		},
	)

	checks := preflight.BuildChecks(preflight.Params{
		DataDir:            jobCTX.DataDir,
		SSHKeyPath:         inputCTX.SSHKeyPath,
		AuthorizedKeysPath: configFile.AuthorizedKeysPath,
		Probes:             probes,
	})

	steps := remote.BuildSteps(remote.StepConfig{
		AuthorizedKeysPath: configFile.AuthorizedKeysPath,
		InstallScriptURL:   configFile.InstallScriptURL,
		OpenArchive: func() (io.ReadCloser, error) {
			return os.Open(jobCTX.ArchivePath)
		},
	})

	return &migrate.Runner{
		Job:                jobCTX,
		Checks:             checks,
		Discoverer:         &docker.Discoverer{API: engine, VolumeRoot: configFile.VolumeRoot},
		Builder:            archive.NewBuilder(),
		AuthorizedKeysPath: configFile.AuthorizedKeysPath,
		StopDocker:         docker.StopService,
		StartDocker:        docker.StartService,
		DialRemote: func() (remote.Executor, func() error, error) {
			client, err := remote.Dial(clientConfig)
			if err != nil {
				return nil, nil, err
			}
			return client, client.Close, nil
		},
		Steps:          steps,
		SizeOf:         util.GetDirectorySize,
		CheckpointPath: migrate.CheckpointPath(stateDir),
		Resume:         inputCTX.Resume,
	}, nil
}

// recordOutcome persists & publishes run metrics.
func recordOutcome(metricsDir string, jobCTX *job.JobContext, success bool) {
	jobMetrics := metrics.JobMetrics{
		LastRunSuccess:  success,
		LastArchiveSize: jobCTX.ArchiveSizeBytesInt,
		LastDuration:    time.Since(jobCTX.StartTime).Seconds(),
		LastVolumeCount: jobCTX.VolumeCount,
	}
	metrics.ApplyPrometheusMetrics(jobMetrics)
	if err := metrics.WriteMetricsFile(metricsDir, jobMetrics); err != nil {
		logger.LogxWithFields("warn", fmt.Sprintf("Failed to write metrics cache: %v", err), map[string]interface{}{
			"package": "main",
			"target":  jobCTX.Target,
			"job_id":  jobCTX.JobID,
		})
	}
}

// handleCleanup optionally deletes the local archive once the
// destination is fully installed.
func handleCleanup(inputCTX *input.InputContext, jobCTX *job.JobContext) {
	deleteArchive := inputCTX.DeleteArchive

	if !inputCTX.NonInteractive && !deleteArchive {
		confirm := &survey.Confirm{
			Message: fmt.Sprintf("Delete the local archive %s?", jobCTX.ArchivePath),
			Default: false,
		}
		if err := survey.AskOne(confirm, &deleteArchive); err != nil {
			logger.Logx.Fatalf("Prompt aborted: %v", err)
		}
	}

	if !deleteArchive {
		logger.LogxWithFields("info", fmt.Sprintf("Keeping local archive at %s", jobCTX.ArchivePath), map[string]interface{}{
			"package": "main",
			"target":  jobCTX.Target,
			"job_id":  jobCTX.JobID,
		})
		return
	}

	if err := util.RemoveTempFile(jobCTX, jobCTX.ArchivePath); err != nil {
		logger.LogxWithFields("fatal", fmt.Sprintf("Failure to delete local archive: %v", err), logger.MergeFields(mainLogDebugFields(jobCTX), map[string]interface{}{
			"success": false,
		}))
	}
	logger.LogxWithFields("info", "Local archive deleted", map[string]interface{}{
		"package": "main",
		"target":  jobCTX.Target,
		"job_id":  jobCTX.JobID,
	})
}
