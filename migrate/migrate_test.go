package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"paasport/job"
	"paasport/logger"
	"paasport/preflight"
	"paasport/remote"
)

func TestMain(m *testing.M) {
	logger.Logx = logrus.New()
	logger.Logx.SetOutput(io.Discard)
	m.Run()
}

type fakeDiscoverer struct {
	paths []string
	err   error
	calls int
}

func (f *fakeDiscoverer) VolumePaths(ctx context.Context, jobctx *job.JobContext) ([]string, error) {
	f.calls++
	return f.paths, f.err
}

type fakeBuilder struct {
	paths   []string
	skipped bool
	err     error
	calls   int
}

func (f *fakeBuilder) Build(jobctx *job.JobContext, paths []string) (bool, error) {
	f.calls++
	f.paths = paths
	return f.skipped, f.err
}

type seqExecutor struct {
	ran []string
}

func (s *seqExecutor) Run(command string) error                       { s.ran = append(s.ran, command); return nil }
func (s *seqExecutor) Output(command string) (string, error)          { s.ran = append(s.ran, command); return "", nil }
func (s *seqExecutor) RunWithStdin(command string, _ io.Reader) error { s.ran = append(s.ran, command); return nil }

func passingChecks() []preflight.Check {
	return []preflight.Check{{Name: "always-pass", Probe: func() error { return nil }}}
}

func testSteps(fail string) []remote.Step {
	names := []string{"stop-docker", "backup-keys", "extract-archive", "merge-keys", "install"}
	steps := make([]remote.Step, 0, len(names))
	for _, name := range names {
		name := name
		steps = append(steps, remote.Step{
			Name: name,
			Run: func(x remote.Executor) error {
				if name == fail {
					return fmt.Errorf("boom")
				}
				return x.Run(name)
			},
		})
	}
	return steps
}

type runnerParts struct {
	runner     *Runner
	discoverer *fakeDiscoverer
	builder    *fakeBuilder
	executor   *seqExecutor
	dials      *int
}

func newTestRunner(t *testing.T, failStep string) runnerParts {
	t.Helper()

	discoverer := &fakeDiscoverer{paths: []string{"/var/lib/docker/volumes/db-data/_data"}}
	builder := &fakeBuilder{}
	executor := &seqExecutor{}
	dials := 0

	jobctx := &job.JobContext{
		Target:      "coolify",
		JobID:       "test",
		StartTime:   time.Now(),
		DataDir:     "/data/coolify",
		ArchivePath: "/tmp/coolify-migration.bak.tar.gz",
		RemoteHost:  "203.0.113.7",
	}

	runner := &Runner{
		Job:                jobctx,
		Checks:             passingChecks(),
		Discoverer:         discoverer,
		Builder:            builder,
		AuthorizedKeysPath: "/root/.ssh/authorized_keys",
		DialRemote: func() (remote.Executor, func() error, error) {
			dials++
			return executor, func() error { return nil }, nil
		},
		Steps:          testSteps(failStep),
		CheckpointPath: CheckpointPath(t.TempDir()),
	}

	return runnerParts{runner, discoverer, builder, executor, &dials}
}

func TestRunHappyPath(t *testing.T) {
	parts := newTestRunner(t, "")

	if err := parts.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// archive content order: data dir, authorized_keys, volumes
	want := []string{"/data/coolify", "/root/.ssh/authorized_keys", "/var/lib/docker/volumes/db-data/_data"}
	if len(parts.builder.paths) != len(want) {
		t.Fatalf("builder paths = %v, want %v", parts.builder.paths, want)
	}
	for i := range want {
		if parts.builder.paths[i] != want[i] {
			t.Errorf("builder paths[%d] = %q, want %q", i, parts.builder.paths[i], want[i])
		}
	}

	if len(parts.executor.ran) != 5 {
		t.Errorf("remote steps run = %v, want all 5", parts.executor.ran)
	}

	// checkpoint removed on full success
	if _, err := os.Stat(parts.runner.CheckpointPath); !os.IsNotExist(err) {
		t.Error("checkpoint not cleared after successful run")
	}

	if parts.runner.Job.VolumeCount != 1 {
		t.Errorf("VolumeCount = %d, want 1", parts.runner.Job.VolumeCount)
	}
}

func TestRunPreflightFailureStopsEverything(t *testing.T) {
	parts := newTestRunner(t, "")
	parts.runner.Checks = []preflight.Check{{
		Name:  "root-privilege",
		Probe: func() error { return fmt.Errorf("not root") },
	}}

	if err := parts.runner.Run(context.Background()); err == nil {
		t.Fatal("Run() expected preflight error")
	}
	if parts.discoverer.calls != 0 {
		t.Error("discovery ran despite preflight failure")
	}
	if parts.builder.calls != 0 {
		t.Error("archive build ran despite preflight failure")
	}
	if *parts.dials != 0 {
		t.Error("destination dialed despite preflight failure")
	}
}

func TestRunArchiveFailurePreventsTransfer(t *testing.T) {
	parts := newTestRunner(t, "")
	parts.builder.err = fmt.Errorf("tar exit status 2")

	if err := parts.runner.Run(context.Background()); err == nil {
		t.Fatal("Run() expected archive error")
	}
	if *parts.dials != 0 {
		t.Error("destination dialed despite archive build failure")
	}
}

func TestRunRemoteFailureLeavesCheckpoint(t *testing.T) {
	parts := newTestRunner(t, "merge-keys")

	if err := parts.runner.Run(context.Background()); err == nil {
		t.Fatal("Run() expected remote step error")
	}

	ck, err := LoadCheckpoint(parts.runner.CheckpointPath)
	if err != nil {
		t.Fatal(err)
	}
	if ck == nil {
		t.Fatal("no checkpoint left behind after remote failure")
	}
	if ck.RemoteStep != "extract-archive" {
		t.Errorf("checkpoint remote step = %q, want extract-archive", ck.RemoteStep)
	}
}

func TestRunResumeSkipsCompletedRemoteSteps(t *testing.T) {
	parts := newTestRunner(t, "")
	parts.runner.Resume = true
	parts.runner.Job.Resumed = true

	ck := &Checkpoint{
		JobID:      "previous",
		Stage:      StageTransfer,
		RemoteStep: "extract-archive",
	}
	if err := ck.Save(parts.runner.CheckpointPath); err != nil {
		t.Fatal(err)
	}

	if err := parts.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"merge-keys", "install"}
	if len(parts.executor.ran) != len(want) {
		t.Fatalf("remote steps run = %v, want %v", parts.executor.ran, want)
	}
	for i := range want {
		if parts.executor.ran[i] != want[i] {
			t.Errorf("ran[%d] = %q, want %q", i, parts.executor.ran[i], want[i])
		}
	}
}

func TestRunStopsAndRestartsDockerAroundArchive(t *testing.T) {
	parts := newTestRunner(t, "")
	parts.runner.Job.StopDocker = true

	var events []string
	parts.runner.StopDocker = func(*job.JobContext) error {
		events = append(events, "stop")
		return nil
	}
	parts.runner.StartDocker = func(*job.JobContext) error {
		events = append(events, "start")
		return nil
	}

	if err := parts.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(events) != 2 || events[0] != "stop" || events[1] != "start" {
		t.Errorf("docker service events = %v, want [stop start]", events)
	}
	if parts.builder.calls != 1 {
		t.Errorf("builder calls = %d, want 1", parts.builder.calls)
	}
}
