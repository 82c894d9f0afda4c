package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"ticketless/internal/config"
	"ticketless/internal/queue"
	"ticketless/internal/queueaccess"
	"ticketless/internal/testsupport"
	"ticketless/internal/video"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	toolchain  *testsupport.FakeToolchain
}

// setupCLITestEnv writes a config file pointing every directory into a temp
// tree and routes video commands to a fake toolchain. The API bind targets a
// closed port so status falls back to local inspection.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{
		"TICKETLESS_API_TOKEN", "WORKER_SECRET", "CRON_SECRET", "DATABASE_URL",
		"REDIS_URL", "AMQP_URL", "AWS_BUCKET_NAME", "AWS_ENDPOINT_URL",
	} {
		t.Setenv(key, "")
	}
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"

	configPath := filepath.Join(base, "ticketless.toml")
	writeTestConfig(t, configPath, cfg)

	fake := testsupport.NewFakeToolchain(120, map[string]string{
		"creation_time": "2024-05-01T10:00:00.000000Z",
	})
	previous := newToolchain
	newToolchain = func(*config.Config) video.Toolchain { return fake }
	t.Cleanup(func() { newToolchain = previous })

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base, toolchain: fake}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("ticketless %v: %v\noutput:\n%s", args, err, out)
	}
	return out
}

func (e *cliTestEnv) videoFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "input", name)
	testsupport.WriteMP4Fixture(t, path, "isom")
	return path
}

func (e *cliTestEnv) withStore(t *testing.T, fn func(queueaccess.Access)) {
	t.Helper()
	store, err := queueaccess.Open(context.Background(), e.cfg)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	defer store.Close()
	fn(store)
}

func (e *cliTestEnv) insertJob(t *testing.T, ref string) *queue.Job {
	t.Helper()
	var job *queue.Job
	e.withStore(t, func(store queueaccess.Access) {
		var err error
		job, err = store.Enqueue(context.Background(), queue.NewJob{
			UserID:           "user-1",
			ContestID:        "contest-1",
			OriginalVideoRef: ref,
			AutoSlice:        true,
			Quality:          "balanced",
			Source:           "upload",
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	})
	return job
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
