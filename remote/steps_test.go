package remote

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"paasport/job"
	"paasport/logger"
)

func TestMain(m *testing.M) {
	logger.Logx = logrus.New()
	logger.Logx.SetOutput(io.Discard)
	m.Run()
}

// fakeExecutor records every remote interaction in order.
type fakeExecutor struct {
	commands []string
	stdins   map[string]string
	outputs  map[string]string
	failOn   string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{stdins: map[string]string{}, outputs: map[string]string{}}
}

func (f *fakeExecutor) record(command string) error {
	f.commands = append(f.commands, command)
	if f.failOn != "" && strings.Contains(command, f.failOn) {
		return fmt.Errorf("exit status 1")
	}
	return nil
}

func (f *fakeExecutor) Run(command string) error {
	return f.record(command)
}

func (f *fakeExecutor) Output(command string) (string, error) {
	if err := f.record(command); err != nil {
		return "", err
	}
	return f.outputs[command], nil
}

func (f *fakeExecutor) RunWithStdin(command string, stdin io.Reader) error {
	data, _ := io.ReadAll(stdin)
	f.stdins[command] = string(data)
	return f.record(command)
}

func testConfig(archiveBody string) StepConfig {
	return StepConfig{
		AuthorizedKeysPath: "/root/.ssh/authorized_keys",
		InstallScriptURL:   "https://cdn.coollabs.io/coolify/install.sh",
		OpenArchive: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(archiveBody)), nil
		},
	}
}

func testJob() *job.JobContext {
	return &job.JobContext{Target: "coolify", JobID: "test", RemoteHost: "203.0.113.7"}
}

func TestRunSequenceFullOrder(t *testing.T) {
	x := newFakeExecutor()
	x.outputs["cat /root/.ssh/authorized_keys.paasport-bak 2>/dev/null || true"] = "ssh-rsa OLD existing@dest\n"
	x.outputs["cat /root/.ssh/authorized_keys 2>/dev/null || true"] = "ssh-ed25519 NEW shipped@src\nssh-rsa OLD existing@dest\n"

	var done []string
	steps := BuildSteps(testConfig("archive-bytes"))
	err := RunSequence(testJob(), x, steps, "", func(name string) { done = append(done, name) })
	if err != nil {
		t.Fatalf("RunSequence() error = %v", err)
	}

	wantDone := []string{"stop-docker", "backup-keys", "extract-archive", "merge-keys", "install"}
	if len(done) != len(wantDone) {
		t.Fatalf("completed steps = %v, want %v", done, wantDone)
	}
	for i := range wantDone {
		if done[i] != wantDone[i] {
			t.Errorf("completed[%d] = %s, want %s", i, done[i], wantDone[i])
		}
	}

	// archive must be streamed into the extraction command's stdin
	if got := x.stdins["tar -xzf - -C /"]; got != "archive-bytes" {
		t.Errorf("extract stdin = %q, want archive bytes", got)
	}

	// merged keys: sorted dedup union of destination + shipped
	writeCmd := "cat > /root/.ssh/authorized_keys && chmod 600 /root/.ssh/authorized_keys"
	wantKeys := "ssh-ed25519 NEW shipped@src\nssh-rsa OLD existing@dest\n"
	if got := x.stdins[writeCmd]; got != wantKeys {
		t.Errorf("merged authorized_keys = %q, want %q", got, wantKeys)
	}

	// install script fetched over https and piped to bash, last
	last := x.commands[len(x.commands)-1]
	if last != "curl -fsSL https://cdn.coollabs.io/coolify/install.sh | bash" {
		t.Errorf("final command = %q", last)
	}
}

func TestRunSequenceAbortsOnFailure(t *testing.T) {
	x := newFakeExecutor()
	x.failOn = "tar -xzf"

	var done []string
	steps := BuildSteps(testConfig("archive-bytes"))
	err := RunSequence(testJob(), x, steps, "", func(name string) { done = append(done, name) })
	if err == nil {
		t.Fatal("RunSequence() expected error from failing extract step")
	}
	if !strings.Contains(err.Error(), "extract-archive") {
		t.Errorf("error %q does not name the failing step", err)
	}

	// merge & install must never run after the extract failure
	for _, cmd := range x.commands {
		if strings.Contains(cmd, "curl") || strings.Contains(cmd, "chmod 600") {
			t.Errorf("command ran after failed step: %q", cmd)
		}
	}
	if len(done) != 2 {
		t.Errorf("completed steps = %v, want only stop-docker & backup-keys", done)
	}
}

func TestRunSequenceResumeSkipsCompletedSteps(t *testing.T) {
	x := newFakeExecutor()

	var done []string
	steps := BuildSteps(testConfig("archive-bytes"))
	err := RunSequence(testJob(), x, steps, "extract-archive", func(name string) { done = append(done, name) })
	if err != nil {
		t.Fatalf("RunSequence() error = %v", err)
	}

	// nothing before merge-keys may touch the destination again
	for _, cmd := range x.commands {
		if strings.Contains(cmd, "systemctl stop") || strings.Contains(cmd, "tar -xzf") {
			t.Errorf("skipped step still executed: %q", cmd)
		}
	}

	wantDone := []string{"merge-keys", "install"}
	if len(done) != len(wantDone) || done[0] != wantDone[0] || done[1] != wantDone[1] {
		t.Errorf("completed steps = %v, want %v", done, wantDone)
	}
}

func TestRunSequenceMergeHandlesEmptyDestination(t *testing.T) {
	x := newFakeExecutor()
	x.outputs["cat /root/.ssh/authorized_keys 2>/dev/null || true"] = "ssh-ed25519 NEW shipped@src\n"

	steps := BuildSteps(testConfig("archive-bytes"))
	if err := RunSequence(testJob(), x, steps, "", nil); err != nil {
		t.Fatalf("RunSequence() error = %v", err)
	}

	writeCmd := "cat > /root/.ssh/authorized_keys && chmod 600 /root/.ssh/authorized_keys"
	if got := x.stdins[writeCmd]; got != "ssh-ed25519 NEW shipped@src\n" {
		t.Errorf("merged authorized_keys = %q", got)
	}
}
