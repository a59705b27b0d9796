// Package controller drives the minifi-controller CLI inside an agent
// container and parses its output.
package controller

import (
	"context"
	"strconv"
	"strings"
	"time"

	"minifitest/internal/logger"
	"minifitest/internal/poll"
)

const (
	DefaultAttempts = 10
	DefaultInterval = time.Second

	// DebugBundlePath is where --debug /tmp leaves its archive.
	DebugBundlePath = "/tmp/debug.tar.gz"
)

// Executor runs a command inside the agent container.
type Executor interface {
	ExecRun(ctx context.Context, cmd ...string) (int, string, error)
}

// Controller wraps one controller binary. Queries never fail: malformed or
// missing output yields -1, (-1, -1) or false.
type Controller struct {
	exec Executor
	path string

	// Attempts and Interval bound the retried predicates.
	Attempts int
	Interval time.Duration
}

func New(exec Executor, path string) *Controller {
	return &Controller{
		exec:     exec,
		path:     path,
		Attempts: DefaultAttempts,
		Interval: DefaultInterval,
	}
}

func (c *Controller) Path() string {
	return c.path
}

func (c *Controller) run(ctx context.Context, args ...string) (int, string, bool) {
	cmd := append([]string{c.path}, args...)
	code, output, err := c.exec.ExecRun(ctx, cmd...)
	if err != nil {
		logger.Error().Err(err).Strs("cmd", cmd).Msg("controller command failed")
		return code, "", false
	}
	return code, output, true
}

func lines(output string) []string {
	return strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
}

func (c *Controller) retry(predicate func() bool) bool {
	return poll.Retry(c.Attempts, c.Interval, predicate)
}

// StartComponent asks the agent to start a component by name.
func (c *Controller) StartComponent(ctx context.Context, name string) bool {
	code, _, ok := c.run(ctx, "--start", name)
	return ok && code == 0
}

// StopComponent asks the agent to stop a component by name.
func (c *Controller) StopComponent(ctx context.Context, name string) bool {
	code, _, ok := c.run(ctx, "--stop", name)
	return ok && code == 0
}

// UpdateFlowConfig pushes the flow config at path (inside the container).
func (c *Controller) UpdateFlowConfig(ctx context.Context, path string) bool {
	code, _, ok := c.run(ctx, "--updateflow", path)
	return ok && code == 0
}

// ConfigContains reports whether the file at path contains marker. Used to
// confirm that an updated flow config was persisted.
func (c *Controller) ConfigContains(ctx context.Context, path, marker string) bool {
	code, output, err := c.exec.ExecRun(ctx, "cat", path)
	if err != nil || code != 0 {
		logger.Error().Err(err).Str("path", path).Int("exit_code", code).Msg("failed to read config file")
		return false
	}
	return strings.Contains(output, marker)
}

func (c *Controller) componentRunning(ctx context.Context, name string) bool {
	code, output, ok := c.run(ctx, "--list", "components")
	if !ok || code != 0 {
		return false
	}
	return strings.Contains(output, name+", running: true")
}

// IsComponentRunning polls the component list until name reports running.
func (c *Controller) IsComponentRunning(ctx context.Context, name string) bool {
	return c.retry(func() bool { return c.componentRunning(ctx, name) })
}

// Connections lists connection names, skipping log lines and the header.
func (c *Controller) Connections(ctx context.Context) []string {
	_, output, ok := c.run(ctx, "--list", "connections")
	if !ok {
		return nil
	}

	var names []string
	for _, line := range lines(output) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "Connection Names") {
			continue
		}
		names = append(names, line)
	}
	return names
}

// ConnectionFound polls the connection list until name shows up.
func (c *Controller) ConnectionFound(ctx context.Context, name string) bool {
	return c.retry(func() bool {
		for _, conn := range c.Connections(ctx) {
			if conn == name {
				return true
			}
		}
		return false
	})
}

// FullConnectionCount returns the number of full connections, or -1.
func (c *Controller) FullConnectionCount(ctx context.Context) int {
	_, output, ok := c.run(ctx, "--getfull")
	if !ok {
		return -1
	}
	for _, line := range lines(output) {
		if !strings.Contains(line, "are full") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return -1
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			logger.Debug().Str("line", line).Msg("malformed full connection count")
			return -1
		}
		return n
	}
	return -1
}

// ConnectionSize returns the current size and maximum of a connection, or
// (-1, -1) when the controller does not report it.
func (c *Controller) ConnectionSize(ctx context.Context, name string) (int, int) {
	_, output, ok := c.run(ctx, "--getsize", name)
	if !ok {
		return -1, -1
	}
	for _, line := range lines(output) {
		if !strings.Contains(line, "Size/Max of "+name) {
			continue
		}
		// A q1 query also matches the line of q10.
		size, limit, ok := parseSizeMax(line, name)
		if !ok {
			logger.Debug().Str("line", line).Msg("malformed connection size")
			continue
		}
		return size, limit
	}
	return -1, -1
}

// parseSizeMax reads "Size/Max of <name>: <size> / <limit>".
func parseSizeMax(line, name string) (int, int, bool) {
	_, rest, found := strings.Cut(line, "Size/Max of "+name)
	if !found {
		return 0, 0, false
	}
	sizePart, maxPart, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}
	size, err := strconv.Atoi(strings.Trim(sizePart, " :\t"))
	if err != nil {
		return 0, 0, false
	}
	limit, err := strconv.Atoi(strings.TrimSpace(maxPart))
	if err != nil {
		return 0, 0, false
	}
	return size, limit, true
}

// Manifest returns the agent manifest with log lines removed.
func (c *Controller) Manifest(ctx context.Context) string {
	_, output, ok := c.run(ctx, "--manifest")
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, line := range lines(output) {
		if strings.HasPrefix(line, "[") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// CreateDebugBundle writes a debug bundle to /tmp and checks that the
// archive exists.
func (c *Controller) CreateDebugBundle(ctx context.Context) bool {
	code, output, ok := c.run(ctx, "--debug", "/tmp")
	if !ok {
		return false
	}
	if code != 0 {
		logger.Error().Int("exit_code", code).Str("output", output).Msg("controller debug command failed")
		return false
	}

	code, _, err := c.exec.ExecRun(ctx, "test", "-f", DebugBundlePath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to check debug bundle")
		return false
	}
	return code == 0
}
