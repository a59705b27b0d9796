package container

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	goruntime "runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/internal/runtime/runtimetest"
	"minifitest/internal/staging"
	"minifitest/pkg/runtime"
)

func requireHostShell(t *testing.T) {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("POSIX shell not available")
	}
	for _, tool := range []string{"sh", "find", "xargs", "grep", "wc", "cat"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found", tool)
		}
	}
}

// deployOnHost deploys c against the fake and routes its execs to the host,
// with container paths mapped onto the staged mounts.
func deployOnHost(t *testing.T, fake *runtimetest.FakeRuntime, c Container) {
	t.Helper()
	requireHostShell(t)

	require.NoError(t, c.Deploy(context.Background()))
	t.Cleanup(func() { c.CleanUp(context.Background()) })
	require.NotEmpty(t, fake.Created)
	fake.ExecFn = runtimetest.HostExec(runtimetest.MountRewriter(fake.Created[len(fake.Created)-1].Mounts))
}

func newPosix(fake *runtimetest.FakeRuntime) *PosixContainer {
	return NewPosixContainer(fake, Options{Name: "minifi-primary", Image: "apacheminificpp:behave", Network: "net-1"})
}

func TestPosixContainer_Deploy(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	data := staging.NewDirectory("/data")
	data.AddFile("input.txt", "ABC123")
	require.NoError(t, c.AddDirectory(data))
	require.NoError(t, c.AddFile(staging.NewFile("/tmp/conf", "a.conf", "x=1").WithMode(staging.ReadOnly)))
	require.NoError(t, c.AddHostFile(staging.NewHostFile("/etc/hosts", "/etc/hosts.copy")))

	require.NoError(t, c.Deploy(ctx))
	defer c.CleanUp(ctx)

	assert.Equal(t, Deployed, c.State())
	assert.Equal(t, "fake-1", c.ID())
	assert.Equal(t, []string{"FindContainer", "CreateContainer", "StartContainer"}, fake.Calls)

	require.Len(t, fake.Created, 1)
	opts := fake.Created[0]
	assert.Equal(t, "minifi-primary", opts.Name)
	assert.Equal(t, "net-1", opts.Network)
	assert.Equal(t, DefaultPosixUser, opts.User)

	targets := map[string]runtime.Mount{}
	for _, m := range opts.Mounts {
		targets[m.Target] = m
	}
	require.Contains(t, targets, "/tmp/conf/a.conf")
	assert.True(t, targets["/tmp/conf/a.conf"].ReadOnly)
	require.Contains(t, targets, "/data")
	require.Contains(t, targets, "/etc/hosts.copy")
	assert.Equal(t, "/etc/hosts", targets["/etc/hosts.copy"].Source)

	err := c.AddFile(staging.NewFile("/late", "f", ""))
	assert.True(t, errors.Is(err, harnesserrors.ErrAlreadyDeployed))
	assert.True(t, errors.Is(c.Deploy(ctx), harnesserrors.ErrAlreadyDeployed))
}

func TestPosixContainer_EvictsStaleContainer(t *testing.T) {
	fake := runtimetest.NewFakeRuntime()
	fake.FindContainerFn = func(ctx context.Context, name string) (runtime.ContainerState, error) {
		return runtime.ContainerState{ID: "stale-id", Name: name}, nil
	}
	var removed []string
	fake.RemoveContainerFn = func(ctx context.Context, id string, force bool) error {
		assert.True(t, force)
		removed = append(removed, id)
		return nil
	}

	c := newPosix(fake)
	require.NoError(t, c.Deploy(context.Background()))
	defer c.CleanUp(context.Background())

	assert.Equal(t, []string{"stale-id"}, removed)
	assert.Equal(t, Deployed, c.State())
}

func TestPosixContainer_EvictionErrorAborts(t *testing.T) {
	fake := runtimetest.NewFakeRuntime()
	fake.FindContainerFn = func(ctx context.Context, name string) (runtime.ContainerState, error) {
		return runtime.ContainerState{}, harnesserrors.NewEngineError("lookup", "daemon down", "", errors.New("daemon down"))
	}

	c := newPosix(fake)
	err := c.Deploy(context.Background())

	assert.True(t, errors.Is(err, harnesserrors.ErrEngineOperation))
	assert.Equal(t, Undeployed, c.State())
	fake.AssertNotCalled(t, "CreateContainer")
}

func TestPosixContainer_StartFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	fake.StartContainerFn = func(ctx context.Context, id string) error {
		return harnesserrors.NewEngineError("start", "port in use", "", errors.New("port in use"))
	}
	var removed []string
	fake.RemoveContainerFn = func(ctx context.Context, id string, force bool) error {
		removed = append(removed, id)
		return nil
	}

	c := newPosix(fake)
	data := staging.NewDirectory("/data")
	data.AddFile("a", "b")
	require.NoError(t, c.AddDirectory(data))

	err := c.Deploy(ctx)
	require.Error(t, err)
	assert.Equal(t, Undeployed, c.State())
	assert.Empty(t, c.ID())
	assert.Equal(t, []string{"fake-1"}, removed)

	_, statErr := os.Stat(fake.Created[0].Mounts[0].Source)
	assert.True(t, os.IsNotExist(statErr), "staging directory should be removed")

	// A failed deploy can be retried.
	fake.StartContainerFn = nil
	require.NoError(t, c.Deploy(ctx))
	assert.Equal(t, Deployed, c.State())
	c.CleanUp(ctx)
}

func TestPosixContainer_BeforeDeploy(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	code, output, err := c.ExecRun(ctx, "true")
	assert.Equal(t, -1, code)
	assert.Equal(t, NotRunningMessage, output)
	assert.True(t, errors.Is(err, harnesserrors.ErrNotDeployed))

	assert.False(t, c.DirectoryContainsFileWithContent(ctx, "/data", "x"))
	assert.False(t, c.DirectoryContainsFileWithRegex(ctx, "/data", "x"))
	assert.False(t, c.PathWithContentExists(ctx, "/data/x", "x"))
	assert.False(t, c.DirectoryHasSingleFileWithContent(ctx, "/data", "x"))
	assert.False(t, c.VerifyFileContents(ctx, "/data", nil))
	assert.Equal(t, -1, c.GetNumberOfFiles(ctx, "/data"))
	assert.Empty(t, c.GetLogs(ctx))
	assert.False(t, c.Exited(ctx))

	fake.AssertNotCalled(t, "ExecContainer")
}

func TestPosixContainer_FileCountMatchesDirectory(t *testing.T) {
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	data := staging.NewDirectory("/data")
	data.AddFile("a.txt", "1")
	data.AddFile("b.txt", "2")
	data.AddFile("c.txt", "3")
	require.NoError(t, c.AddDirectory(data))
	deployOnHost(t, fake, c)

	ctx := context.Background()
	assert.Equal(t, 3, c.GetNumberOfFiles(ctx, "/data"))
	assert.Equal(t, -1, c.GetNumberOfFiles(ctx, "/missing-dir"))
}

func TestPosixContainer_MissingDirectoryIsNotAnError(t *testing.T) {
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)
	require.NoError(t, c.AddDirectory(staging.NewDirectory("/data")))
	deployOnHost(t, fake, c)

	var buf bytes.Buffer
	logger.InitWithWriter(&buf, false)
	t.Cleanup(func() { logger.Log = zerolog.Nop() })

	ctx := context.Background()
	assert.Equal(t, -1, c.GetNumberOfFiles(ctx, "/not-created-yet"))
	assert.False(t, c.PathWithContentExists(ctx, "/not-created-yet/f", "line"))
	assert.NotContains(t, buf.String(), `"level":"error"`)
}

func TestPosixContainer_SingleFileFlip(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	data := staging.NewDirectory("/data")
	data.AddFile("input.txt", "ABC123")
	require.NoError(t, c.AddDirectory(data))
	deployOnHost(t, fake, c)

	assert.True(t, c.DirectoryHasSingleFileWithContent(ctx, "/data", "ABC123"))
	assert.True(t, c.DirectoryHasSingleFileWithContent(ctx, "/data", "  ABC123\n"))
	assert.False(t, c.DirectoryHasSingleFileWithContent(ctx, "/data", "ABC"))

	code, _, err := c.ExecRun(ctx, "sh", "-c", "echo other > /data/second.txt")
	require.NoError(t, err)
	require.Equal(t, 0, code)

	assert.False(t, c.DirectoryHasSingleFileWithContent(ctx, "/data", "ABC123"))
}

func TestPosixContainer_PathWithContentExists(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	data := staging.NewDirectory("/data")
	data.AddFile("once", "a\nline\nb\n")
	data.AddFile("twice", "line\nline\n")
	data.AddFile("none", "lines\n")
	require.NoError(t, c.AddDirectory(data))
	deployOnHost(t, fake, c)

	assert.True(t, c.PathWithContentExists(ctx, "/data/once", "line"))
	assert.False(t, c.PathWithContentExists(ctx, "/data/twice", "line"))
	assert.False(t, c.PathWithContentExists(ctx, "/data/none", "line"))
	assert.False(t, c.PathWithContentExists(ctx, "/data/missing", "line"))
}

func TestPosixContainer_LiteralVersusRegex(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	literal := staging.NewDirectory("/literal")
	literal.AddFile("f", "value a.b here\n")
	other := staging.NewDirectory("/other")
	other.AddFile("f", "value axb here\n")
	require.NoError(t, c.AddDirectory(literal))
	require.NoError(t, c.AddDirectory(other))
	deployOnHost(t, fake, c)

	assert.True(t, c.DirectoryContainsFileWithContent(ctx, "/literal", "a.b"))
	assert.False(t, c.DirectoryContainsFileWithContent(ctx, "/other", "a.b"))
	assert.True(t, c.DirectoryContainsFileWithRegex(ctx, "/literal", "a.b"))
	assert.True(t, c.DirectoryContainsFileWithRegex(ctx, "/other", "a.b"))
	assert.False(t, c.DirectoryContainsFileWithRegex(ctx, "/other", "^a.b$"))

	// find reports the missing directory on stderr, which exec merges in.
	assert.False(t, c.DirectoryContainsFileWithContent(ctx, "/does-not-exist", "a.b"))
	assert.False(t, c.DirectoryContainsFileWithRegex(ctx, "/does-not-exist", "a.b"))
}

func TestPosixContainer_VerifyFileContents(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	out := staging.NewDirectory("/out")
	out.AddFile("1", "first\r\nline\r\n")
	out.AddFile("2", "second\n")
	out.AddFile("3", "second\n")
	require.NoError(t, c.AddDirectory(out))
	deployOnHost(t, fake, c)

	assert.True(t, c.VerifyFileContents(ctx, "/out", []string{"first\nline", "second", "second"}))
	assert.True(t, c.VerifyFileContents(ctx, "/out", []string{"second", "first\r\nline\r\n", "second\n"}))
	assert.False(t, c.VerifyFileContents(ctx, "/out", []string{"first\nline", "second"}))
	assert.False(t, c.VerifyFileContents(ctx, "/out", []string{"first\nline", "first\nline", "second"}))
	assert.False(t, c.VerifyFileContents(ctx, "/missing", nil))
}

func TestPosixContainer_MakeDir(t *testing.T) {
	ctx := context.Background()
	fake := runtimetest.NewFakeRuntime()
	c := newPosix(fake)

	out := staging.NewDirectory("/out")
	require.NoError(t, c.AddDirectory(out))
	deployOnHost(t, fake, c)

	assert.True(t, c.MakeDir(ctx, "/out/nested/deeper"))
	assert.Equal(t, 0, c.GetNumberOfFiles(ctx, "/out/nested/deeper"))
}

func TestSameMultiset(t *testing.T) {
	assert.True(t, sameMultiset([]string{"a", "b", "a"}, []string{"a", "a", "b"}))
	assert.False(t, sameMultiset([]string{"a", "b", "b"}, []string{"a", "a", "b"}))
	assert.True(t, sameMultiset(nil, nil))
}
