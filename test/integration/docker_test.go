package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minifitest/internal/app"
	"minifitest/internal/container"
	"minifitest/internal/runtime"
	"minifitest/internal/scenario"
	"minifitest/internal/staging"
	"minifitest/internal/ui"
)

// requireDocker skips unless MINIFITEST_DOCKER_TESTS is set and a daemon
// answers.
func requireDocker(t *testing.T) *runtime.DockerRuntime {
	t.Helper()
	if os.Getenv("MINIFITEST_DOCKER_TESTS") == "" {
		t.Skip("set MINIFITEST_DOCKER_TESTS=1 to run tests against a Docker daemon")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt, err := runtime.NewDockerRuntime(ctx)
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	return rt
}

func TestDocker_PosixContainerVerification(t *testing.T) {
	rt := requireDocker(t)
	ctx := context.Background()
	require.NoError(t, rt.PullImage(ctx, "busybox:latest"))

	s := scenario.New(rt, container.PlatformPosix)
	t.Cleanup(func() { s.CleanUp(context.Background()) })

	c, err := s.AddContainer("sink", container.Options{
		Image:   "busybox:latest",
		Command: []string{"sh", "-c", "echo sink ready; sleep 300"},
	}, "sink ready", 30*time.Second)
	require.NoError(t, err)

	dir := staging.NewDirectory("/tmp/output")
	dir.AddFile("a.txt", "ABC123\n")
	dir.AddFile("b.txt", "line one\nline two\r\n")
	require.NoError(t, c.AddDirectory(dir))
	require.NoError(t, c.AddFile(staging.NewFile("/tmp/input", "seed.txt", "seed")))

	require.NoError(t, s.DeployAll(ctx))
	assert.Equal(t, container.Deployed, c.State())

	assert.Equal(t, 2, c.GetNumberOfFiles(ctx, "/tmp/output"))
	assert.True(t, c.DirectoryContainsFileWithContent(ctx, "/tmp/output", "ABC123"))
	assert.True(t, c.DirectoryContainsFileWithRegex(ctx, "/tmp/output", "line (one|two)"))
	assert.True(t, c.PathWithContentExists(ctx, "/tmp/output/b.txt", "line one"))
	assert.True(t, c.VerifyFileContents(ctx, "/tmp/output", []string{"line one\nline two\n", "ABC123\n"}))
	assert.False(t, c.DirectoryHasSingleFileWithContent(ctx, "/tmp/output", "ABC123"))
	assert.True(t, c.DirectoryHasSingleFileWithContent(ctx, "/tmp/input", "seed"))
	assert.Equal(t, -1, c.GetNumberOfFiles(ctx, "/does/not/exist"))
	assert.False(t, c.Exited(ctx))

	c.CleanUp(ctx)
	assert.Equal(t, container.Removed, c.State())
}

func TestDocker_UpKeepDown(t *testing.T) {
	rt := requireDocker(t)
	dir := t.TempDir()

	harness := `apiVersion: v1
kind: Harness
metadata:
  name: docker-smoke
spec:
  platform: posix
  containers:
    - name: sink
      image: busybox:latest
      command: ["sh", "-c", "echo sink ready; sleep 300"]
      readyLog: sink ready
      directories:
        - path: /tmp/output
          files:
            - name: out.txt
              content: ABC123
  checks:
    - container: sink
      kind: singleFileWithContent
      path: /tmp/output
      content: ABC123
    - container: sink
      kind: logContains
      content: sink ready
`
	path := filepath.Join(dir, "minifitest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(harness), 0644))

	ctx := context.Background()
	run, err := app.Up(ctx, app.Options{
		HarnessPath: path,
		Pull:        true,
		Keep:        true,
		StateDir:    dir,
		Runtime:     rt,
		Console:     ui.NewConsoleWithWriters(os.Stdout, os.Stderr),
	})
	require.NoError(t, err)
	t.Cleanup(func() { run.Scenario.CleanUp(context.Background()) })
	assert.Equal(t, 0, run.Failed())

	name := "sink-" + run.Scenario.ID
	_, err = rt.FindContainer(ctx, name)
	require.NoError(t, err)

	require.NoError(t, app.Down(ctx, app.DownOptions{StateDir: dir, Runtime: rt}))
	_, err = rt.FindContainer(ctx, name)
	assert.Error(t, err)
}
