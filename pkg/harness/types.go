package harness

import "time"

// Harness is the root object of a minifitest.yaml file. It describes the
// containers of one scenario and the checks to run once they are up.
type Harness struct {
	APIVersion string   `mapstructure:"apiVersion" yaml:"apiVersion" validate:"required"`
	Kind       string   `mapstructure:"kind" yaml:"kind" validate:"required,eq=Harness"`
	Metadata   Metadata `mapstructure:"metadata" yaml:"metadata" validate:"required"`
	Spec       Spec     `mapstructure:"spec" yaml:"spec" validate:"required"`
}

// Metadata contains scenario-level metadata.
type Metadata struct {
	Name        string            `mapstructure:"name" yaml:"name" validate:"required"`
	Description string            `mapstructure:"description" yaml:"description"`
	Labels      map[string]string `mapstructure:"labels" yaml:"labels,omitempty"`
}

// Spec lists what to start and what to verify.
type Spec struct {
	Platform   string          `mapstructure:"platform" yaml:"platform" validate:"omitempty,oneof=auto posix linux windows"`
	Agent      *Agent          `mapstructure:"agent" yaml:"agent,omitempty"`
	Containers []ContainerSpec `mapstructure:"containers" yaml:"containers,omitempty" validate:"dive"`
	Checks     []Check         `mapstructure:"checks" yaml:"checks,omitempty" validate:"dive"`
}

// Agent configures the MiNiFi agent container. Properties are "key=value"
// entries so that dotted keys survive the config loader.
type Agent struct {
	Name          string            `mapstructure:"name" yaml:"name"`
	Image         string            `mapstructure:"image" yaml:"image" validate:"required"`
	Layout        string            `mapstructure:"layout" yaml:"layout" validate:"omitempty,oneof=linux fhs windows"`
	FlowConfig    string            `mapstructure:"flowConfig" yaml:"flowConfig"`
	Properties    []string          `mapstructure:"properties" yaml:"properties,omitempty" validate:"dive,keyvalue"`
	LogProperties []string          `mapstructure:"logProperties" yaml:"logProperties,omitempty" validate:"dive,keyvalue"`
	Controller    bool              `mapstructure:"controller" yaml:"controller"`
	FIPS          bool              `mapstructure:"fips" yaml:"fips"`
	ReadyTimeout  time.Duration     `mapstructure:"readyTimeout" yaml:"readyTimeout" validate:"gte=0"`
	Env           map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	Ports         []string          `mapstructure:"ports" yaml:"ports,omitempty"`
	Files         []FileSpec        `mapstructure:"files" yaml:"files,omitempty" validate:"dive"`
	Directories   []DirectorySpec   `mapstructure:"directories" yaml:"directories,omitempty" validate:"dive"`
	HostFiles     []HostFileSpec    `mapstructure:"hostFiles" yaml:"hostFiles,omitempty" validate:"dive"`
}

// ContainerSpec configures a supporting container.
type ContainerSpec struct {
	Name         string            `mapstructure:"name" yaml:"name" validate:"required,hostname_rfc1123"`
	Image        string            `mapstructure:"image" yaml:"image" validate:"required"`
	Env          map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	Ports        []string          `mapstructure:"ports" yaml:"ports,omitempty"`
	Command      []string          `mapstructure:"command" yaml:"command,omitempty"`
	Entrypoint   []string          `mapstructure:"entrypoint" yaml:"entrypoint,omitempty"`
	User         string            `mapstructure:"user" yaml:"user"`
	ReadyLog     string            `mapstructure:"readyLog" yaml:"readyLog"`
	ReadyTimeout time.Duration     `mapstructure:"readyTimeout" yaml:"readyTimeout" validate:"gte=0"`
	Files        []FileSpec        `mapstructure:"files" yaml:"files,omitempty" validate:"dive"`
	Directories  []DirectorySpec   `mapstructure:"directories" yaml:"directories,omitempty" validate:"dive"`
	HostFiles    []HostFileSpec    `mapstructure:"hostFiles" yaml:"hostFiles,omitempty" validate:"dive"`
}

// FileSpec places one file at a guest path. Content comes inline or from
// Source, a host file relative to the harness file.
type FileSpec struct {
	Path     string `mapstructure:"path" yaml:"path" validate:"required"`
	Content  string `mapstructure:"content" yaml:"content"`
	Source   string `mapstructure:"source" yaml:"source"`
	ReadOnly bool   `mapstructure:"readOnly" yaml:"readOnly"`
}

// DirectorySpec mounts a directory with the given entries.
type DirectorySpec struct {
	Path     string           `mapstructure:"path" yaml:"path" validate:"required"`
	Files    []DirectoryEntry `mapstructure:"files" yaml:"files,omitempty" validate:"dive"`
	ReadOnly bool             `mapstructure:"readOnly" yaml:"readOnly"`
}

type DirectoryEntry struct {
	Name    string `mapstructure:"name" yaml:"name" validate:"required"`
	Content string `mapstructure:"content" yaml:"content"`
}

// HostFileSpec bind-mounts an existing host path.
type HostFileSpec struct {
	Source   string `mapstructure:"source" yaml:"source" validate:"required"`
	Target   string `mapstructure:"target" yaml:"target" validate:"required"`
	ReadOnly bool   `mapstructure:"readOnly" yaml:"readOnly"`
}

// Check kinds.
const (
	CheckFileWithContent       = "fileWithContent"
	CheckFileWithRegex         = "fileWithRegex"
	CheckPathWithContent       = "pathWithContent"
	CheckSingleFileWithContent = "singleFileWithContent"
	CheckFileContents          = "fileContents"
	CheckFileCount             = "fileCount"
	CheckLogContains           = "logContains"
	CheckComponentRunning      = "componentRunning"
	CheckConnectionFound       = "connectionFound"
	CheckConnectionSize        = "connectionSize"
	CheckFullConnections       = "fullConnections"
	CheckDebugBundle           = "debugBundle"
	CheckManifestContains      = "manifestContains"
	CheckFlowContains          = "flowContains"
	CheckMemoryBelow           = "memoryBelow"

	// Step kinds change the scenario and pass when the change succeeds.
	StepStartComponent = "startComponent"
	StepStopComponent  = "stopComponent"
	StepUpdateFlow     = "updateFlow"
	StepExec           = "exec"
	StepMakeDir        = "makeDir"
)

// Check is one verification or step run against a deployed container, in
// file order. File checks are polled until they pass or Timeout elapses.
// Command is a shell-word command line for exec steps; Memory is a size such
// as "512MiB" for memoryBelow.
type Check struct {
	Name      string        `mapstructure:"name" yaml:"name"`
	Container string        `mapstructure:"container" yaml:"container" validate:"required"`
	Kind      string        `mapstructure:"kind" yaml:"kind" validate:"required,oneof=fileWithContent fileWithRegex pathWithContent singleFileWithContent fileContents fileCount logContains componentRunning connectionFound connectionSize fullConnections debugBundle manifestContains flowContains memoryBelow startComponent stopComponent updateFlow exec makeDir"`
	Path      string        `mapstructure:"path" yaml:"path"`
	Content   string        `mapstructure:"content" yaml:"content"`
	Contents  []string      `mapstructure:"contents" yaml:"contents,omitempty"`
	Pattern   string        `mapstructure:"pattern" yaml:"pattern"`
	Count     int           `mapstructure:"count" yaml:"count" validate:"gte=0"`
	Max       int           `mapstructure:"max" yaml:"max" validate:"gte=0"`
	Component string        `mapstructure:"component" yaml:"component"`
	Command   string        `mapstructure:"command" yaml:"command"`
	Memory    string        `mapstructure:"memory" yaml:"memory"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// DisplayName returns Name, or a description built from the kind.
func (c Check) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	target := c.Path
	if target == "" {
		target = c.Component
	}
	if target == "" {
		target = c.Command
	}
	if target == "" {
		return c.Kind + " on " + c.Container
	}
	return c.Kind + " " + target + " on " + c.Container
}
