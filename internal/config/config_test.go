package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harnesserrors "minifitest/internal/errors"
	"minifitest/pkg/harness"
)

const validHarness = `apiVersion: v1
kind: Harness
metadata:
  name: tail-file
  description: Files written by the agent reach the output directory
spec:
  platform: posix
  agent:
    image: apacheminificpp:latest
    flowConfig: flows/tail.yml
    controller: true
    readyTimeout: 30s
    properties:
      - nifi.bored.yield.duration=10 millis
    logProperties:
      - logger.root=INFO, stderr
    directories:
      - path: /tmp/input
        files:
          - name: input.txt
            content: ABC123
  containers:
    - name: http-proxy
      image: ubuntu/squid:latest
      readyLog: Accepting HTTP Socket connections
      readyTimeout: 5s
      ports:
        - "3128/tcp"
  checks:
    - container: minifi-primary
      kind: singleFileWithContent
      path: /tmp/output
      content: ABC123
      timeout: 20s
    - container: minifi-primary
      kind: componentRunning
      component: TailFile
`

func writeHarness(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidHarness(t *testing.T) {
	path := writeHarness(t, validHarness)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tail-file", cfg.Metadata.Name)
	assert.Equal(t, filepath.Dir(path), cfg.Dir)
	assert.Equal(t, "posix", cfg.Spec.Platform)

	agent := cfg.Spec.Agent
	require.NotNil(t, agent)
	assert.Equal(t, "apacheminificpp:latest", agent.Image)
	assert.Equal(t, 30*time.Second, agent.ReadyTimeout)
	assert.True(t, agent.Controller)
	assert.Equal(t, []string{"nifi.bored.yield.duration=10 millis"}, agent.Properties)
	require.Len(t, agent.Directories, 1)
	assert.Equal(t, "input.txt", agent.Directories[0].Files[0].Name)
	assert.Equal(t, "minifi-primary", AgentName(agent))

	require.Len(t, cfg.Spec.Containers, 1)
	proxy := cfg.Spec.Containers[0]
	assert.Equal(t, "Accepting HTTP Socket connections", proxy.ReadyLog)
	assert.Equal(t, 5*time.Second, proxy.ReadyTimeout)

	require.Len(t, cfg.Spec.Checks, 2)
	assert.Equal(t, 20*time.Second, cfg.Spec.Checks[0].Timeout)
	assert.Equal(t, harness.CheckComponentRunning, cfg.Spec.Checks[1].Kind)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeHarness(t, validHarness)
	t.Setenv("MINIFITEST_SPEC_PLATFORM", "windows")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "windows", cfg.Spec.Platform)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, harnesserrors.ErrHarnessNotFound))
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeHarness(t, "apiVersion: v1\nkind: [unclosed\n")
	_, err := Load(path)
	assert.True(t, errors.Is(err, harnesserrors.ErrConfigInvalid))
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(string) string
		contains string
	}{
		{
			name:     "wrong kind",
			mutate:   func(s string) string { return strings.Replace(s, "kind: Harness", "kind: Blueprint", 1) },
			contains: "must be 'Harness'",
		},
		{
			name:     "bad platform",
			mutate:   func(s string) string { return strings.Replace(s, "platform: posix", "platform: solaris", 1) },
			contains: "must be one of",
		},
		{
			name: "property without value separator",
			mutate: func(s string) string {
				return strings.Replace(s, "nifi.bored.yield.duration=10 millis", "nifi.bored.yield.duration", 1)
			},
			contains: "key=value",
		},
		{
			name:     "unknown check kind",
			mutate:   func(s string) string { return strings.Replace(s, "kind: componentRunning", "kind: telepathy", 1) },
			contains: "must be one of",
		},
		{
			name:     "check on unknown container",
			mutate:   func(s string) string { return strings.Replace(s, "container: minifi-primary\n      kind: componentRunning", "container: ghost\n      kind: componentRunning", 1) },
			contains: "unknown container 'ghost'",
		},
		{
			name:     "check missing content",
			mutate:   func(s string) string { return strings.Replace(s, "      content: ABC123\n      timeout", "      timeout", 1) },
			contains: "path and content are required",
		},
		{
			name:     "duplicate container name",
			mutate:   func(s string) string { return strings.Replace(s, "name: http-proxy", "name: minifi-primary", 1) },
			contains: "used more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeHarness(t, tt.mutate(validHarness)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, harnesserrors.ErrConfigInvalid))

			var herr *harnesserrors.HarnessError
			require.True(t, errors.As(err, &herr))
			assert.Contains(t, herr.Cause, tt.contains)
		})
	}
}

func TestValidateCheck_Steps(t *testing.T) {
	tests := []struct {
		name     string
		check    harness.Check
		contains string
	}{
		{name: "start component", check: harness.Check{Kind: harness.StepStartComponent, Component: "TailFile"}},
		{name: "stop without component", check: harness.Check{Kind: harness.StepStopComponent}, contains: "component is required"},
		{name: "update flow without path", check: harness.Check{Kind: harness.StepUpdateFlow}, contains: "path is required"},
		{name: "make dir", check: harness.Check{Kind: harness.StepMakeDir, Path: "/tmp/output"}},
		{name: "exec without command", check: harness.Check{Kind: harness.StepExec}, contains: "command is required"},
		{name: "exec", check: harness.Check{Kind: harness.StepExec, Command: "touch /tmp/input/a.txt"}},
		{name: "manifest without content", check: harness.Check{Kind: harness.CheckManifestContains}, contains: "content is required"},
		{name: "flow contains", check: harness.Check{Kind: harness.CheckFlowContains, Content: "tail-v2"}},
		{name: "memory", check: harness.Check{Kind: harness.CheckMemoryBelow, Memory: "512MiB"}},
		{name: "memory without unit", check: harness.Check{Kind: harness.CheckMemoryBelow, Memory: "300"}},
		{name: "memory not a size", check: harness.Check{Kind: harness.CheckMemoryBelow, Memory: "lots"}, contains: "memory must be a size"},
		{name: "memory missing", check: harness.Check{Kind: harness.CheckMemoryBelow}, contains: "memory must be a size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCheck(tt.check)
			if tt.contains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoad_StepKinds(t *testing.T) {
	content := validHarness + `    - container: minifi-primary
      kind: stopComponent
      component: TailFile
    - container: http-proxy
      kind: exec
      command: squid -k check
    - container: minifi-primary
      kind: memoryBelow
      memory: 256MiB
`
	cfg, err := Load(writeHarness(t, content))
	require.NoError(t, err)
	require.Len(t, cfg.Spec.Checks, 5)
	assert.Equal(t, "squid -k check", cfg.Spec.Checks[3].Command)
	assert.Equal(t, "256MiB", cfg.Spec.Checks[4].Memory)
}

func TestValidate_RequiresSomething(t *testing.T) {
	err := Validate(&harness.Harness{APIVersion: "v1", Kind: "Harness", Metadata: harness.Metadata{Name: "empty"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent or at least one container")
}

func TestConfig_ResolveAndReadFile(t *testing.T) {
	path := writeHarness(t, validHarness)
	cfg, err := Load(path)
	require.NoError(t, err)

	flows := filepath.Join(cfg.Dir, "flows")
	require.NoError(t, os.MkdirAll(flows, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(flows, "tail.yml"), []byte("Flow Controller: {}\n"), 0644))

	assert.Equal(t, filepath.Join(cfg.Dir, "flows/tail.yml"), cfg.Resolve("flows/tail.yml"))
	assert.Equal(t, "/abs/path", cfg.Resolve("/abs/path"))

	content, err := cfg.ReadFile(cfg.Spec.Agent.FlowConfig)
	require.NoError(t, err)
	assert.Equal(t, "Flow Controller: {}\n", content)

	_, err = cfg.ReadFile("missing.yml")
	assert.True(t, errors.Is(err, harnesserrors.ErrConfigInvalid))
}

func TestSplitProperty(t *testing.T) {
	k, v := SplitProperty("nifi.c2.enable = true")
	assert.Equal(t, "nifi.c2.enable", k)
	assert.Equal(t, "true", v)

	k, v = SplitProperty("spdlog.pattern=[%n] a=b")
	assert.Equal(t, "spdlog.pattern", k)
	assert.Equal(t, "[%n] a=b", v)
}
