// Package runtimetest provides a test double for runtime.ContainerRuntime.
//
// FakeRuntime follows the function-field pattern: every engine method has a
// matching Fn field. When the field is set the fake delegates to it; when it
// is nil a simple in-memory default applies (create hands out ids, start and
// remove succeed, lookups by name report not-found). Every call is recorded.
//
//	fake := runtimetest.NewFakeRuntime()
//	fake.ExecFn = func(ctx context.Context, id string, cmd []string) (runtime.ExecResult, error) {
//		return runtime.ExecResult{ExitCode: 0, Output: []byte("1\n")}, nil
//	}
//	fake.AssertCalled(t, "ExecContainer")
package runtimetest

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"testing"

	harnesserrors "minifitest/internal/errors"
	"minifitest/pkg/runtime"
)

// Upload is one CopyArchive call decoded into its tar entries.
type Upload struct {
	ContainerID string
	DestDir     string
	Files       map[string]string
}

type FakeRuntime struct {
	mu sync.Mutex

	// Calls records the method names invoked on this fake, in order.
	Calls []string
	// Created records every CreateContainer request.
	Created []runtime.CreateOptions
	// Uploads records every CopyArchive request.
	Uploads []Upload
	// Execs records every command passed to ExecContainer.
	Execs [][]string

	nextID int

	PullImageFn        func(ctx context.Context, image string) error
	ImageHistoryFn     func(ctx context.Context, image string) ([]string, error)
	CreateContainerFn  func(ctx context.Context, opts runtime.CreateOptions) (string, error)
	StartContainerFn   func(ctx context.Context, id string) error
	ExecFn             func(ctx context.Context, id string, cmd []string) (runtime.ExecResult, error)
	ContainerLogsFn    func(ctx context.Context, id string) ([]byte, error)
	InspectContainerFn func(ctx context.Context, id string) (runtime.ContainerState, error)
	RemoveContainerFn  func(ctx context.Context, id string, force bool) error
	CopyArchiveFn      func(ctx context.Context, id, destDir string, archive io.Reader) error
	FindContainerFn    func(ctx context.Context, name string) (runtime.ContainerState, error)
	CreateNetworkFn    func(ctx context.Context, name string) (string, error)
	RemoveNetworkFn    func(ctx context.Context, name string) error
}

var _ runtime.ContainerRuntime = (*FakeRuntime)(nil)

func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{}
}

// NotFound returns an error classified as a missing container.
func NotFound(name string) error {
	return harnesserrors.NewEngineNotFoundError(name, fmt.Errorf("no such container: %s", name))
}

func (f *FakeRuntime) record(method string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, method)
	f.mu.Unlock()
}

// CallCount returns how many times method was invoked.
func (f *FakeRuntime) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *FakeRuntime) AssertCalled(t *testing.T, method string) {
	t.Helper()
	if f.CallCount(method) == 0 {
		t.Errorf("expected %s to be called, calls: %v", method, f.Calls)
	}
}

func (f *FakeRuntime) AssertNotCalled(t *testing.T, method string) {
	t.Helper()
	if n := f.CallCount(method); n != 0 {
		t.Errorf("expected %s not to be called, got %d calls", method, n)
	}
}

// Reset clears every recorded call.
func (f *FakeRuntime) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.Created = nil
	f.Uploads = nil
	f.Execs = nil
}

func (f *FakeRuntime) PullImage(ctx context.Context, image string) error {
	f.record("PullImage")
	if f.PullImageFn != nil {
		return f.PullImageFn(ctx, image)
	}
	return nil
}

func (f *FakeRuntime) ImageHistory(ctx context.Context, image string) ([]string, error) {
	f.record("ImageHistory")
	if f.ImageHistoryFn != nil {
		return f.ImageHistoryFn(ctx, image)
	}
	return nil, nil
}

func (f *FakeRuntime) CreateContainer(ctx context.Context, opts runtime.CreateOptions) (string, error) {
	f.record("CreateContainer")
	f.mu.Lock()
	f.Created = append(f.Created, opts)
	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	f.mu.Unlock()

	if f.CreateContainerFn != nil {
		return f.CreateContainerFn(ctx, opts)
	}
	return id, nil
}

func (f *FakeRuntime) StartContainer(ctx context.Context, id string) error {
	f.record("StartContainer")
	if f.StartContainerFn != nil {
		return f.StartContainerFn(ctx, id)
	}
	return nil
}

func (f *FakeRuntime) ExecContainer(ctx context.Context, id string, cmd []string) (runtime.ExecResult, error) {
	f.record("ExecContainer")
	f.mu.Lock()
	f.Execs = append(f.Execs, append([]string(nil), cmd...))
	f.mu.Unlock()

	if f.ExecFn != nil {
		return f.ExecFn(ctx, id, cmd)
	}
	return runtime.ExecResult{}, nil
}

func (f *FakeRuntime) ContainerLogs(ctx context.Context, id string) ([]byte, error) {
	f.record("ContainerLogs")
	if f.ContainerLogsFn != nil {
		return f.ContainerLogsFn(ctx, id)
	}
	return nil, nil
}

func (f *FakeRuntime) InspectContainer(ctx context.Context, id string) (runtime.ContainerState, error) {
	f.record("InspectContainer")
	if f.InspectContainerFn != nil {
		return f.InspectContainerFn(ctx, id)
	}
	return runtime.ContainerState{ID: id, Status: "running", Running: true}, nil
}

func (f *FakeRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.record("RemoveContainer")
	if f.RemoveContainerFn != nil {
		return f.RemoveContainerFn(ctx, id, force)
	}
	return nil
}

func (f *FakeRuntime) CopyArchive(ctx context.Context, id, destDir string, archive io.Reader) error {
	f.record("CopyArchive")
	if f.CopyArchiveFn != nil {
		return f.CopyArchiveFn(ctx, id, destDir, archive)
	}

	files, err := ReadArchive(archive)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.Uploads = append(f.Uploads, Upload{ContainerID: id, DestDir: destDir, Files: files})
	f.mu.Unlock()
	return nil
}

func (f *FakeRuntime) FindContainer(ctx context.Context, name string) (runtime.ContainerState, error) {
	f.record("FindContainer")
	if f.FindContainerFn != nil {
		return f.FindContainerFn(ctx, name)
	}
	return runtime.ContainerState{}, NotFound(name)
}

func (f *FakeRuntime) CreateNetwork(ctx context.Context, name string) (string, error) {
	f.record("CreateNetwork")
	if f.CreateNetworkFn != nil {
		return f.CreateNetworkFn(ctx, name)
	}
	return "net-" + name, nil
}

func (f *FakeRuntime) RemoveNetwork(ctx context.Context, name string) error {
	f.record("RemoveNetwork")
	if f.RemoveNetworkFn != nil {
		return f.RemoveNetworkFn(ctx, name)
	}
	return nil
}

// ReadArchive decodes a tar stream into a name to content map.
func ReadArchive(r io.Reader) (map[string]string, error) {
	files := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = string(data)
	}
}

// MountRewriter maps container paths in exec arguments onto the host sources
// of the bind mounts the container was created with, so commands can run
// against the staged files on the test host.
func MountRewriter(mounts []runtime.Mount) func([]string) []string {
	sorted := append([]runtime.Mount(nil), mounts...)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Target) > len(sorted[j].Target)
	})

	return func(cmd []string) []string {
		out := make([]string, len(cmd))
		for i, arg := range cmd {
			out[i] = rewriteArg(arg, sorted)
		}
		return out
	}
}

// rewriteArg replaces mount targets that start a token of arg. Host paths
// already present, for example file names printed by find, are left alone.
func rewriteArg(arg string, mounts []runtime.Mount) string {
	var b strings.Builder
	for i := 0; i < len(arg); {
		if tokenStart(arg, i) {
			if n := hostPrefix(arg[i:], mounts); n > 0 {
				b.WriteString(arg[i : i+n])
				i += n
				continue
			}
			if m, ok := matchTarget(arg[i:], mounts); ok {
				b.WriteString(m.Source)
				i += len(m.Target)
				continue
			}
		}
		b.WriteByte(arg[i])
		i++
	}
	return b.String()
}

const tokenDelims = " '\"=;|&()\t\n"

func tokenStart(s string, i int) bool {
	return i == 0 || strings.IndexByte(tokenDelims, s[i-1]) >= 0
}

// pathPrefix reports whether s starts with the path p as a whole component.
func pathPrefix(s, p string) bool {
	if p == "" || !strings.HasPrefix(s, p) {
		return false
	}
	return len(s) == len(p) || s[len(p)] == '/' || strings.IndexByte(tokenDelims, s[len(p)]) >= 0
}

func hostPrefix(s string, mounts []runtime.Mount) int {
	longest := 0
	for _, m := range mounts {
		if len(m.Source) > longest && pathPrefix(s, m.Source) {
			longest = len(m.Source)
		}
	}
	return longest
}

// matchTarget expects mounts sorted by descending target length.
func matchTarget(s string, mounts []runtime.Mount) (runtime.Mount, bool) {
	for _, m := range mounts {
		if pathPrefix(s, m.Target) {
			return m, true
		}
	}
	return runtime.Mount{}, false
}

// HostExec runs commands on the test host instead of in a container, after
// passing them through rewrite (which may be nil). Non-zero exits are
// reported through ExecResult, not as errors.
func HostExec(rewrite func([]string) []string) func(ctx context.Context, id string, cmd []string) (runtime.ExecResult, error) {
	return func(ctx context.Context, _ string, cmd []string) (runtime.ExecResult, error) {
		if rewrite != nil {
			cmd = rewrite(cmd)
		}
		output, err := exec.CommandContext(ctx, cmd[0], cmd[1:]...).CombinedOutput()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return runtime.ExecResult{ExitCode: exitErr.ExitCode(), Output: output}, nil
		}
		if err != nil {
			return runtime.ExecResult{}, err
		}
		return runtime.ExecResult{Output: output}, nil
	}
}
