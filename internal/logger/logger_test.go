package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	Init(false)
	assert.Equal(t, zerolog.InfoLevel, Log.GetLevel())

	Init(true)
	assert.Equal(t, zerolog.DebugLevel, Log.GetLevel())
}

func TestInitWithFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, InitWithFile(true, tmpDir, &FileConfig{MaxSizeMB: 1}))
	t.Cleanup(func() { _ = CloseFileWriter() })

	Info().Str("container", "minifi-primary").Msg("deploying")

	assert.Equal(t, filepath.Join(tmpDir, "minifitest.log"), GetLogFilePath())
	data, err := os.ReadFile(GetLogFilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"container":"minifi-primary"`)
}

func TestInitWithFile_UsesEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(LogDirEnv, tmpDir)

	require.NoError(t, InitWithFile(false, "", nil))
	t.Cleanup(func() { _ = CloseFileWriter() })

	assert.Equal(t, filepath.Join(tmpDir, "minifitest.log"), GetLogFilePath())
}

func TestCloseFileWriter(t *testing.T) {
	require.NoError(t, InitWithFile(false, t.TempDir(), nil))

	require.NoError(t, CloseFileWriter())
	assert.Empty(t, GetLogFilePath())
	// second close is a no-op
	assert.NoError(t, CloseFileWriter())
}

func TestSetScenario(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, true)
	t.Cleanup(func() { SetScenario("") })

	SetScenario("3f9a")
	Debug().Msg("with scenario")
	SetScenario("")
	Debug().Msg("without scenario")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"scenario":"3f9a"`)
	assert.NotContains(t, lines[1], `"scenario":`)
}

func TestDefaultLogDir(t *testing.T) {
	t.Setenv(LogDirEnv, "")

	dir, err := DefaultLogDir()
	require.NoError(t, err)
	assert.Contains(t, dir, "minifitest")
}

func TestFileConfigDefaults(t *testing.T) {
	var cfg *FileConfig
	assert.Equal(t, 10, cfg.maxSizeMB())
	assert.Equal(t, 7, cfg.maxAgeDays())
	assert.Equal(t, 3, cfg.maxBackups())

	cfg = &FileConfig{MaxSizeMB: 5, MaxAgeDays: 2, MaxBackups: 1}
	assert.Equal(t, 5, cfg.maxSizeMB())
	assert.Equal(t, 2, cfg.maxAgeDays())
	assert.Equal(t, 1, cfg.maxBackups())
}
