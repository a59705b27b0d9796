package container

import (
	"context"
	"fmt"

	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/internal/shellcmd"
	"minifitest/internal/staging"
	"minifitest/pkg/runtime"
)

// WindowsContainer runs verification commands as encoded PowerShell scripts.
// Directories are mounted before start; individual files are uploaded as an
// archive once the container runs.
type WindowsContainer struct {
	lifecycle
}

var _ Container = (*WindowsContainer)(nil)

func NewWindowsContainer(rt runtime.ContainerRuntime, opts Options) *WindowsContainer {
	return &WindowsContainer{lifecycle: newLifecycle(rt, opts)}
}

func (c *WindowsContainer) Platform() Platform {
	return PlatformWindows
}

func (c *WindowsContainer) Deploy(ctx context.Context) error {
	if err := c.requireUndeployed("deploy"); err != nil {
		return err
	}

	stager, err := staging.NewStager(c.opts.Name)
	if err != nil {
		return err
	}
	c.stager = stager

	mounts, err := stager.Bindings(c.files, c.dirs, c.hostFiles, false, shellcmd.WindowsPath)
	if err != nil {
		c.rollback(ctx, err)
		return err
	}

	if err := c.createAndStart(ctx, mounts); err != nil {
		c.rollback(ctx, err)
		return err
	}

	if err := c.injectFiles(ctx); err != nil {
		c.rollback(ctx, err)
		return err
	}

	c.state = Deployed
	return nil
}

// injectFiles uploads declared files, one archive per destination directory.
func (c *WindowsContainer) injectFiles(ctx context.Context) error {
	for _, group := range staging.GroupByDir(c.files) {
		dest := shellcmd.WindowsPath(group.Dir)

		cmd, err := shellcmd.PowerShell(shellcmd.WindowsMkdir(dest))
		if err != nil {
			return err
		}
		code, output, err := c.exec(ctx, cmd)
		if err != nil {
			return err
		}
		if code != 0 {
			return harnesserrors.NewEngineError(
				fmt.Sprintf("Failed to create directory '%s' in container '%s'", dest, c.opts.Name),
				fmt.Sprintf("exit code %d: %s", code, output),
				"",
				fmt.Errorf("mkdir %s exited with %d", dest, code),
			)
		}

		archive, err := staging.Archive(group.Files)
		if err != nil {
			return harnesserrors.NewStagingError(
				fmt.Sprintf("Failed to pack files for '%s'", dest),
				err.Error(),
				"",
				err,
			)
		}
		if err := c.rt.CopyArchive(ctx, c.id, dest, archive); err != nil {
			return err
		}
		logger.Debug().Str("container", c.opts.Name).Str("dir", dest).Int("files", len(group.Files)).Msg("uploaded files")
	}
	return nil
}

// check runs a PowerShell verification script and reports exit code 0.
func (c *WindowsContainer) check(ctx context.Context, what, script string) bool {
	cmd, err := shellcmd.PowerShell(script)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build PowerShell command")
		return false
	}
	code, output, err := c.ExecRun(ctx, cmd...)
	if err != nil {
		return false
	}
	if code != shellcmd.ExitMatch {
		log := logger.Debug
		if code == shellcmd.ExitMissing {
			log = logger.Warn
		}
		log().Str("container", c.opts.Name).Str("check", what).Int("exit_code", code).Str("reason", exitReason(code)).Str("output", output).Msg("check did not match")
		return false
	}
	return true
}

func exitReason(code int) string {
	switch code {
	case shellcmd.ExitNoMatch:
		return "no match"
	case shellcmd.ExitMissing:
		return "path missing or operational error"
	default:
		return "unexpected exit code"
	}
}

func (c *WindowsContainer) DirectoryContainsFileWithContent(ctx context.Context, dir, text string) bool {
	return c.check(ctx, "file with content", shellcmd.WindowsFileWithContent(shellcmd.WindowsPath(dir), text))
}

func (c *WindowsContainer) DirectoryContainsFileWithRegex(ctx context.Context, dir, pattern string) bool {
	return c.check(ctx, "file with regex", shellcmd.WindowsFileWithRegex(shellcmd.WindowsPath(dir), pattern))
}

func (c *WindowsContainer) PathWithContentExists(ctx context.Context, path, content string) bool {
	return c.check(ctx, "path with content", shellcmd.WindowsSingleLineMatch(shellcmd.WindowsPath(path), content))
}

func (c *WindowsContainer) DirectoryHasSingleFileWithContent(ctx context.Context, dir, content string) bool {
	return c.check(ctx, "single file with content", shellcmd.WindowsSingleFileWithContent(shellcmd.WindowsPath(dir), content))
}

func (c *WindowsContainer) VerifyFileContents(ctx context.Context, dir string, expected []string) bool {
	return c.check(ctx, "file contents", shellcmd.WindowsFileContents(shellcmd.WindowsPath(dir), expected))
}

func (c *WindowsContainer) MakeDir(ctx context.Context, dir string) bool {
	return c.check(ctx, "mkdir", shellcmd.WindowsMkdir(shellcmd.WindowsPath(dir)))
}

func (c *WindowsContainer) GetNumberOfFiles(ctx context.Context, dir string) int {
	cmd, err := shellcmd.PowerShell(shellcmd.WindowsFileCount(shellcmd.WindowsPath(dir)))
	if err != nil {
		return -1
	}
	code, output, err := c.ExecRun(ctx, cmd...)
	if err != nil {
		return -1
	}
	if code != shellcmd.ExitMatch {
		logger.Error().Str("container", c.opts.Name).Str("dir", dir).Int("exit_code", code).Str("reason", exitReason(code)).Msg("counting files failed")
		return -1
	}
	n, ok := shellcmd.ParseCount(output)
	if !ok {
		logger.Error().Str("container", c.opts.Name).Str("output", output).Msg("unexpected count output")
		return -1
	}
	return n
}
