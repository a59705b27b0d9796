package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogDirEnv overrides the OS-standard log directory.
const LogDirEnv = "MINIFITEST_LOG_DIR"

const logFileName = "minifitest.log"

var (
	// Log is the global logger instance. Until Init is called it discards everything.
	Log = zerolog.Nop()

	fileWriter *lumberjack.Logger

	scenarioID string
	scenarioMu sync.RWMutex
)

// FileConfig holds rotation settings for the log file.
type FileConfig struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

func (c *FileConfig) maxSizeMB() int {
	if c == nil || c.MaxSizeMB <= 0 {
		return 10
	}
	return c.MaxSizeMB
}

func (c *FileConfig) maxAgeDays() int {
	if c == nil || c.MaxAgeDays <= 0 {
		return 7
	}
	return c.MaxAgeDays
}

func (c *FileConfig) maxBackups() int {
	if c == nil || c.MaxBackups <= 0 {
		return 3
	}
	return c.MaxBackups
}

// SetScenario tags every subsequent entry with the given scenario id.
// Pass an empty string to clear.
func SetScenario(id string) {
	scenarioMu.Lock()
	defer scenarioMu.Unlock()
	scenarioID = id
}

func addContext(event *zerolog.Event) *zerolog.Event {
	scenarioMu.RLock()
	id := scenarioID
	scenarioMu.RUnlock()
	if id != "" {
		event = event.Str("scenario", id)
	}
	return event
}

func level(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Init configures console-only logging on stderr.
func Init(debug bool) {
	Log = zerolog.New(consoleWriter()).
		Level(level(debug)).
		With().
		Timestamp().
		Logger()
}

// InitWithFile logs to stderr and to a rotated JSON file under logsDir.
// An empty logsDir resolves to DefaultLogDir.
func InitWithFile(debug bool, logsDir string, cfg *FileConfig) error {
	if logsDir == "" {
		dir, err := DefaultLogDir()
		if err != nil {
			Init(debug)
			return err
		}
		logsDir = dir
	}

	if err := os.MkdirAll(logsDir, 0750); err != nil {
		Init(debug)
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if fileWriter != nil {
		_ = fileWriter.Close()
	}
	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, logFileName),
		MaxSize:    cfg.maxSizeMB(),
		MaxAge:     cfg.maxAgeDays(),
		MaxBackups: cfg.maxBackups(),
		LocalTime:  true,
	}

	Log = zerolog.New(io.MultiWriter(consoleWriter(), fileWriter)).
		Level(level(debug)).
		With().
		Timestamp().
		Logger()
	return nil
}

// InitWithWriter sends JSON entries to w. Used by tests to capture output.
func InitWithWriter(w io.Writer, debug bool) {
	Log = zerolog.New(w).Level(level(debug)).With().Timestamp().Logger()
}

// DefaultLogDir returns the OS-standard log directory, honoring LogDirEnv.
func DefaultLogDir() (string, error) {
	if dir := os.Getenv(LogDirEnv); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "minifitest"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "minifitest", "logs"), nil
		}
		return filepath.Join(homeDir, "AppData", "Roaming", "minifitest", "logs"), nil
	default:
		return filepath.Join(homeDir, ".local", "share", "minifitest", "logs"), nil
	}
}

// CloseFileWriter closes the log file if one is open.
func CloseFileWriter() error {
	if fileWriter != nil {
		err := fileWriter.Close()
		fileWriter = nil
		return err
	}
	return nil
}

// GetLogFilePath returns the active log file, or "" when file logging is off.
func GetLogFilePath() string {
	if fileWriter != nil {
		return fileWriter.Filename
	}
	return ""
}

func Debug() *zerolog.Event {
	return addContext(Log.Debug())
}

func Info() *zerolog.Event {
	return addContext(Log.Info())
}

func Warn() *zerolog.Event {
	return addContext(Log.Warn())
}

func Error() *zerolog.Event {
	return addContext(Log.Error())
}

// WithField returns a child logger carrying an additional field.
func WithField(key string, value interface{}) zerolog.Logger {
	return Log.With().Interface(key, value).Logger()
}
