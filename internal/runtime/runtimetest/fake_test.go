package runtimetest

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harnesserrors "minifitest/internal/errors"
	"minifitest/pkg/runtime"
)

func TestFakeRuntime_Defaults(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeRuntime()

	id, err := fake.CreateContainer(ctx, runtime.CreateOptions{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "fake-1", id)
	require.NoError(t, fake.StartContainer(ctx, id))

	_, err = fake.FindContainer(ctx, "missing")
	assert.True(t, errors.Is(err, harnesserrors.ErrEngineNotFound))

	state, err := fake.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.True(t, state.Running)

	assert.Equal(t, []string{"CreateContainer", "StartContainer", "FindContainer", "InspectContainer"}, fake.Calls)
	assert.Len(t, fake.Created, 1)
	fake.AssertCalled(t, "StartContainer")
	fake.AssertNotCalled(t, "RemoveContainer")

	fake.Reset()
	assert.Empty(t, fake.Calls)
}

func TestFakeRuntime_CopyArchiveRecordsEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("hello")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "a.txt", Mode: 0644, Size: int64(len(content))}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	fake := NewFakeRuntime()
	require.NoError(t, fake.CopyArchive(context.Background(), "fake-1", `C:\data`, &buf))

	require.Len(t, fake.Uploads, 1)
	assert.Equal(t, `C:\data`, fake.Uploads[0].DestDir)
	assert.Equal(t, map[string]string{"a.txt": "hello"}, fake.Uploads[0].Files)
}

func TestMountRewriter(t *testing.T) {
	rewrite := MountRewriter([]runtime.Mount{
		{Source: "/tmp/stage/data", Target: "/data"},
		{Source: "/tmp/stage/data-sub", Target: "/data/sub"},
	})

	got := rewrite([]string{"sh", "-c", "find '/data/sub' -type f; cat /data/x"})
	assert.Equal(t, []string{"sh", "-c", "find '/tmp/stage/data-sub' -type f; cat /tmp/stage/data/x"}, got)
}

func TestMountRewriter_TokenBoundaries(t *testing.T) {
	rewrite := MountRewriter([]runtime.Mount{
		{Source: "/tmp/minifitest-x/dirs/data", Target: "/data"},
		{Source: "/tmp/minifitest-x/dirs/tmp", Target: "/tmp"},
	})

	tests := []struct {
		name string
		arg  string
		want string
	}{
		{name: "host path from find", arg: "/tmp/minifitest-x/dirs/data/input.txt", want: "/tmp/minifitest-x/dirs/data/input.txt"},
		{name: "guest path", arg: "/data/input.txt", want: "/tmp/minifitest-x/dirs/data/input.txt"},
		{name: "guest dir itself", arg: "/data", want: "/tmp/minifitest-x/dirs/data"},
		{name: "longer sibling name", arg: "/database/x", want: "/database/x"},
		{name: "inside another path", arg: "/srv/data/x", want: "/srv/data/x"},
		{name: "after equals", arg: "--path=/data/x", want: "--path=/tmp/minifitest-x/dirs/data/x"},
		{name: "quoted in script", arg: "test -d '/tmp/out' && cat \"/data/a\"", want: "test -d '/tmp/minifitest-x/dirs/tmp/out' && cat \"/tmp/minifitest-x/dirs/data/a\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []string{"cat", tt.want}, rewrite([]string{"cat", tt.arg}))
		})
	}
}
