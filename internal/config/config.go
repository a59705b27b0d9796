// Package config loads and validates harness files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	harnesserrors "minifitest/internal/errors"
	"minifitest/pkg/harness"
)

const (
	// DefaultFileName is used when no harness file is given.
	DefaultFileName = "minifitest.yaml"
	// EnvPrefix prefixes environment overrides, e.g.
	// MINIFITEST_SPEC_AGENT_IMAGE.
	EnvPrefix = "MINIFITEST"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("keyvalue", func(fl validator.FieldLevel) bool {
		key, _, ok := strings.Cut(fl.Field().String(), "=")
		return ok && strings.TrimSpace(key) != ""
	})
}

// Config is a parsed harness file together with its location, against
// which relative paths in the file are resolved.
type Config struct {
	*harness.Harness
	Path string
	Dir  string
}

// Load reads, overrides from the environment and validates a harness file.
func Load(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, harnesserrors.NewHarnessFileError(
			fmt.Sprintf("Harness file not found: %s", filePath),
			"the file does not exist",
			fmt.Sprintf("Create %s or pass another file with -f", DefaultFileName),
			err,
		)
	}

	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, harnesserrors.NewConfigError(
			fmt.Sprintf("Failed to read harness file %s", filePath),
			err.Error(),
			"Check that the file is valid YAML",
			err,
		)
	}

	var h harness.Harness
	if err := v.Unmarshal(&h); err != nil {
		return nil, harnesserrors.NewConfigError(
			fmt.Sprintf("Failed to parse harness file %s - malformed YAML", filePath),
			err.Error(),
			"Check field types against the harness file reference",
			err,
		)
	}

	if err := Validate(&h); err != nil {
		return nil, harnesserrors.NewConfigError(
			fmt.Sprintf("Invalid harness file %s", filePath),
			err.Error(),
			"Fix the listed fields and run again",
			err,
		)
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		abs = filePath
	}
	return &Config{Harness: &h, Path: abs, Dir: filepath.Dir(abs)}, nil
}

// Validate checks field rules and cross references between containers and
// checks.
func Validate(h *harness.Harness) error {
	if err := validate.Struct(h); err != nil {
		return formatValidationError(err)
	}

	names := make(map[string]bool)
	if h.Spec.Agent != nil {
		names[AgentName(h.Spec.Agent)] = true
	}
	for _, c := range h.Spec.Containers {
		if names[c.Name] {
			return fmt.Errorf("validation error: container name '%s' is used more than once", c.Name)
		}
		names[c.Name] = true
	}
	if len(names) == 0 {
		return errors.New("validation error: spec must define an agent or at least one container")
	}

	for i, check := range h.Spec.Checks {
		if !names[check.Container] {
			return fmt.Errorf("validation error: check %d refers to unknown container '%s'", i+1, check.Container)
		}
		if err := validateCheck(check); err != nil {
			return fmt.Errorf("validation error: check %d (%s): %w", i+1, check.DisplayName(), err)
		}
	}
	return nil
}

func validateCheck(c harness.Check) error {
	switch c.Kind {
	case harness.CheckFileWithContent, harness.CheckPathWithContent, harness.CheckSingleFileWithContent:
		if c.Path == "" || c.Content == "" {
			return errors.New("path and content are required")
		}
	case harness.CheckFileWithRegex:
		if c.Path == "" || c.Pattern == "" {
			return errors.New("path and pattern are required")
		}
	case harness.CheckFileContents, harness.CheckFileCount:
		if c.Path == "" {
			return errors.New("path is required")
		}
	case harness.CheckLogContains:
		if c.Content == "" {
			return errors.New("content is required")
		}
	case harness.CheckComponentRunning, harness.CheckConnectionFound, harness.CheckConnectionSize,
		harness.StepStartComponent, harness.StepStopComponent:
		if c.Component == "" {
			return errors.New("component is required")
		}
	case harness.CheckManifestContains, harness.CheckFlowContains:
		if c.Content == "" {
			return errors.New("content is required")
		}
	case harness.StepUpdateFlow, harness.StepMakeDir:
		if c.Path == "" {
			return errors.New("path is required")
		}
	case harness.StepExec:
		if c.Command == "" {
			return errors.New("command is required")
		}
	case harness.CheckMemoryBelow:
		if _, err := units.RAMInBytes(c.Memory); err != nil {
			return fmt.Errorf("memory must be a size such as 512MiB: %w", err)
		}
	}
	return nil
}

// AgentName returns the configured agent name or the default one.
func AgentName(a *harness.Agent) string {
	if a.Name != "" {
		return a.Name
	}
	return "minifi-primary"
}

// Resolve makes p absolute relative to the harness file.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// ReadFile returns the content of a host file referenced by the harness.
func (c *Config) ReadFile(p string) (string, error) {
	data, err := os.ReadFile(c.Resolve(p))
	if err != nil {
		return "", harnesserrors.NewConfigError(
			fmt.Sprintf("Failed to read %s referenced by %s", p, c.Path),
			err.Error(),
			"Paths in the harness file are relative to the harness file",
			err,
		)
	}
	return string(data), nil
}

// SplitProperty splits a "key=value" entry.
func SplitProperty(entry string) (string, string) {
	key, value, _ := strings.Cut(entry, "=")
	return strings.TrimSpace(key), strings.TrimSpace(value)
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "eq":
		return fmt.Sprintf("field '%s' must be '%s'", field, e.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "keyvalue":
		return fmt.Sprintf("field '%s' must have the form key=value", field)
	case "hostname_rfc1123":
		return fmt.Sprintf("field '%s' must be a valid container name", field)
	case "gte":
		return fmt.Sprintf("field '%s' must not be negative", field)
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}
