package container

import (
	"context"
	"sort"
	"strings"

	"minifitest/internal/logger"
	"minifitest/internal/shellcmd"
	"minifitest/internal/staging"
	"minifitest/pkg/runtime"
)

// DefaultPosixUser is the uid:gid POSIX containers run as unless overridden.
const DefaultPosixUser = "0:0"

// PosixContainer runs verification commands through sh and mounts every
// declared file from the staging directory.
type PosixContainer struct {
	lifecycle
}

var _ Container = (*PosixContainer)(nil)

func NewPosixContainer(rt runtime.ContainerRuntime, opts Options) *PosixContainer {
	if opts.User == "" {
		opts.User = DefaultPosixUser
	}
	return &PosixContainer{lifecycle: newLifecycle(rt, opts)}
}

func (c *PosixContainer) Platform() Platform {
	return PlatformPosix
}

func (c *PosixContainer) Deploy(ctx context.Context) error {
	if err := c.requireUndeployed("deploy"); err != nil {
		return err
	}

	stager, err := staging.NewStager(c.opts.Name)
	if err != nil {
		return err
	}
	c.stager = stager

	mounts, err := stager.Bindings(c.files, c.dirs, c.hostFiles, true, nil)
	if err != nil {
		c.rollback(ctx, err)
		return err
	}

	if err := c.createAndStart(ctx, mounts); err != nil {
		c.rollback(ctx, err)
		return err
	}

	c.state = Deployed
	return nil
}

func (c *PosixContainer) DirectoryContainsFileWithContent(ctx context.Context, dir, text string) bool {
	code, output, err := c.ExecRun(ctx, shellcmd.PosixFileWithContent(dir, text)...)
	return err == nil && code == 0 && strings.TrimSpace(output) != ""
}

func (c *PosixContainer) DirectoryContainsFileWithRegex(ctx context.Context, dir, pattern string) bool {
	code, output, err := c.ExecRun(ctx, shellcmd.PosixFileWithRegex(dir, pattern)...)
	return err == nil && code == 0 && strings.TrimSpace(output) != ""
}

func (c *PosixContainer) count(ctx context.Context, cmd []string) int {
	code, output, err := c.ExecRun(ctx, cmd...)
	if err != nil {
		return -1
	}
	if code != 0 {
		logger.Debug().Str("container", c.opts.Name).Strs("cmd", cmd).Int("exit_code", code).Str("output", output).Msg("count command failed")
		return -1
	}
	n, ok := shellcmd.ParseCount(output)
	if !ok {
		logger.Error().Str("container", c.opts.Name).Strs("cmd", cmd).Str("output", output).Msg("unexpected count output")
		return -1
	}
	return n
}

func (c *PosixContainer) PathWithContentExists(ctx context.Context, path, content string) bool {
	return c.count(ctx, shellcmd.PosixMatchingLineCount(path, content)) == 1
}

func (c *PosixContainer) GetNumberOfFiles(ctx context.Context, dir string) int {
	return c.count(ctx, shellcmd.PosixFileCount(dir))
}

// listFiles returns the regular files directly under dir.
func (c *PosixContainer) listFiles(ctx context.Context, dir string) ([]string, bool) {
	code, output, err := c.ExecRun(ctx, shellcmd.PosixListFiles(dir)...)
	if err != nil || code != 0 {
		logger.Debug().Str("container", c.opts.Name).Str("dir", dir).Int("exit_code", code).Msg("listing directory failed")
		return nil, false
	}
	return shellcmd.SplitNul(output), true
}

func (c *PosixContainer) readFile(ctx context.Context, path string) (string, bool) {
	code, output, err := c.ExecRun(ctx, shellcmd.PosixReadFile(path)...)
	if err != nil || code != 0 {
		logger.Error().Str("container", c.opts.Name).Str("path", path).Int("exit_code", code).Str("output", output).Msg("reading file failed")
		return "", false
	}
	return output, true
}

func (c *PosixContainer) DirectoryHasSingleFileWithContent(ctx context.Context, dir, content string) bool {
	files, ok := c.listFiles(ctx, dir)
	if !ok {
		return false
	}
	if len(files) != 1 {
		logger.Debug().Str("container", c.opts.Name).Str("dir", dir).Int("files", len(files)).Msg("expected exactly one file")
		return false
	}

	actual, ok := c.readFile(ctx, files[0])
	if !ok {
		return false
	}
	logger.Debug().Str("actual", strings.TrimSpace(actual)).Str("expected", strings.TrimSpace(content)).Msg("comparing single file content")
	return strings.TrimSpace(actual) == strings.TrimSpace(content)
}

func (c *PosixContainer) VerifyFileContents(ctx context.Context, dir string, expected []string) bool {
	files, ok := c.listFiles(ctx, dir)
	if !ok {
		return false
	}
	if len(files) != len(expected) {
		logger.Debug().Str("container", c.opts.Name).Str("dir", dir).Int("files", len(files)).Int("expected", len(expected)).Msg("file count mismatch")
		return false
	}

	actual := make([]string, 0, len(files))
	for _, f := range files {
		content, ok := c.readFile(ctx, f)
		if !ok {
			return false
		}
		actual = append(actual, shellcmd.NormalizeContent(content))
	}
	return sameMultiset(actual, expected)
}

func (c *PosixContainer) MakeDir(ctx context.Context, dir string) bool {
	code, _, err := c.ExecRun(ctx, shellcmd.PosixMkdir(dir)...)
	return err == nil && code == 0
}

// sameMultiset compares normalized contents ignoring order.
func sameMultiset(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	want := make([]string, len(expected))
	for i, e := range expected {
		want[i] = shellcmd.NormalizeContent(e)
	}
	got := append([]string(nil), actual...)
	sort.Strings(got)
	sort.Strings(want)
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
