package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"

	"minifitest/internal/container"
	"minifitest/internal/poll"
	"minifitest/internal/scenario"
	"minifitest/pkg/harness"
)

// DefaultCheckTimeout bounds file checks that set no timeout.
const DefaultCheckTimeout = 10 * time.Second

// runCheck evaluates one check and returns whether it passed together with a
// short failure detail.
func runCheck(ctx context.Context, s *scenario.Context, check harness.Check) (bool, string) {
	c, ok := s.Get(check.Container)
	if !ok {
		return false, fmt.Sprintf("unknown container %q", check.Container)
	}

	timeout := check.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	wait := func(condition func() bool) bool {
		return poll.WaitForCondition(condition, timeout, func() bool { return c.Exited(ctx) })
	}

	switch check.Kind {
	case harness.CheckFileWithContent:
		return wait(func() bool { return c.DirectoryContainsFileWithContent(ctx, check.Path, check.Content) }),
			fmt.Sprintf("no file in %s contains %q", check.Path, check.Content)
	case harness.CheckFileWithRegex:
		return wait(func() bool { return c.DirectoryContainsFileWithRegex(ctx, check.Path, check.Pattern) }),
			fmt.Sprintf("no file in %s matches %q", check.Path, check.Pattern)
	case harness.CheckPathWithContent:
		return wait(func() bool { return c.PathWithContentExists(ctx, check.Path, check.Content) }),
			fmt.Sprintf("%s does not contain the line %q exactly once", check.Path, check.Content)
	case harness.CheckSingleFileWithContent:
		return wait(func() bool { return c.DirectoryHasSingleFileWithContent(ctx, check.Path, check.Content) }),
			fmt.Sprintf("%s does not hold a single file with %q", check.Path, check.Content)
	case harness.CheckFileContents:
		return wait(func() bool { return c.VerifyFileContents(ctx, check.Path, check.Contents) }),
			fmt.Sprintf("contents of %s differ from the expected %d files", check.Path, len(check.Contents))
	case harness.CheckFileCount:
		last := -1
		passed := wait(func() bool {
			last = c.GetNumberOfFiles(ctx, check.Path)
			return last == check.Count
		})
		return passed, fmt.Sprintf("expected %d files in %s, found %d", check.Count, check.Path, last)
	case harness.CheckLogContains:
		return container.WaitForLog(ctx, c, check.Content, timeout),
			fmt.Sprintf("logs do not contain %q", check.Content)
	case harness.StepExec:
		code, output, err := c.ExecLine(ctx, check.Command)
		if err != nil {
			return false, err.Error()
		}
		if code != 0 {
			return false, fmt.Sprintf("%q exited with %d", check.Command, code)
		}
		return strings.Contains(output, check.Content),
			fmt.Sprintf("output of %q does not contain %q", check.Command, check.Content)
	case harness.StepMakeDir:
		return c.MakeDir(ctx, check.Path), fmt.Sprintf("could not create %s", check.Path)
	}

	return runControllerCheck(ctx, s, check)
}

func runControllerCheck(ctx context.Context, s *scenario.Context, check harness.Check) (bool, string) {
	a, ok := s.LookupAgent(check.Container)
	if !ok {
		return false, fmt.Sprintf("%s is not an agent container", check.Container)
	}
	ctl := a.Controller()

	switch check.Kind {
	case harness.CheckComponentRunning:
		return ctl.IsComponentRunning(ctx, check.Component),
			fmt.Sprintf("component %s is not running", check.Component)
	case harness.CheckConnectionFound:
		return ctl.ConnectionFound(ctx, check.Component),
			fmt.Sprintf("connection %s not listed", check.Component)
	case harness.CheckConnectionSize:
		size, limit := ctl.ConnectionSize(ctx, check.Component)
		return size == check.Count && limit == check.Max,
			fmt.Sprintf("connection %s has size %d / %d, expected %d / %d", check.Component, size, limit, check.Count, check.Max)
	case harness.CheckFullConnections:
		n := ctl.FullConnectionCount(ctx)
		return n == check.Count, fmt.Sprintf("expected %d full connections, got %d", check.Count, n)
	case harness.CheckDebugBundle:
		return ctl.CreateDebugBundle(ctx), "debug bundle was not created"
	case harness.CheckManifestContains:
		return strings.Contains(ctl.Manifest(ctx), check.Content),
			fmt.Sprintf("manifest does not contain %q", check.Content)
	case harness.CheckFlowContains:
		path := check.Path
		if path == "" {
			path = a.ConfigPath()
		}
		return ctl.ConfigContains(ctx, path, check.Content),
			fmt.Sprintf("%s does not contain %q", path, check.Content)
	case harness.CheckMemoryBelow:
		limit, err := units.RAMInBytes(check.Memory)
		if err != nil {
			return false, err.Error()
		}
		used, ok := a.MemoryUsage(ctx)
		if !ok {
			return false, "memory usage of the agent is unavailable"
		}
		return used < limit, fmt.Sprintf("agent uses %s, limit is %s",
			units.BytesSize(float64(used)), units.BytesSize(float64(limit)))
	case harness.StepStartComponent:
		return ctl.StartComponent(ctx, check.Component),
			fmt.Sprintf("component %s could not be started", check.Component)
	case harness.StepStopComponent:
		return ctl.StopComponent(ctx, check.Component),
			fmt.Sprintf("component %s could not be stopped", check.Component)
	case harness.StepUpdateFlow:
		return ctl.UpdateFlowConfig(ctx, check.Path),
			fmt.Sprintf("flow update from %s was rejected", check.Path)
	default:
		return false, fmt.Sprintf("unsupported check kind %q", check.Kind)
	}
}
