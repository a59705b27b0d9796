// Package container models a disposable test container with one contract
// across POSIX and Windows guests.
package container

import (
	"context"

	"minifitest/internal/staging"
)

// NotRunningMessage is the output ExecRun reports before deploy.
const NotRunningMessage = "Container not running."

// State is the lifecycle state of a container.
type State int

const (
	Undeployed State = iota
	Deployed
	Exited
	Removed
)

func (s State) String() string {
	switch s {
	case Undeployed:
		return "undeployed"
	case Deployed:
		return "deployed"
	case Exited:
		return "exited"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Options describes the container to create.
type Options struct {
	Name       string
	Image      string
	Network    string
	Env        map[string]string
	Ports      []string
	Command    []string
	Entrypoint []string
	User       string
	Labels     map[string]string
}

// Container is a test container. Files, directories and host files must be
// declared before Deploy. Verification methods never return errors: any
// failure, including running them before deploy, reads as a negative result.
type Container interface {
	Name() string
	Image() string
	Platform() Platform
	State() State
	ID() string

	AddFile(f staging.File) error
	AddDirectory(d *staging.Directory) error
	AddHostFile(h staging.HostFile) error

	Deploy(ctx context.Context) error
	CleanUp(ctx context.Context)
	Exited(ctx context.Context) bool

	ExecRun(ctx context.Context, cmd ...string) (int, string, error)
	ExecLine(ctx context.Context, line string) (int, string, error)
	GetLogs(ctx context.Context) string
	LogAppOutput(ctx context.Context)

	DirectoryContainsFileWithContent(ctx context.Context, dir, text string) bool
	DirectoryContainsFileWithRegex(ctx context.Context, dir, pattern string) bool
	PathWithContentExists(ctx context.Context, path, content string) bool
	DirectoryHasSingleFileWithContent(ctx context.Context, dir, content string) bool
	VerifyFileContents(ctx context.Context, dir string, expected []string) bool
	GetNumberOfFiles(ctx context.Context, dir string) int
	MakeDir(ctx context.Context, dir string) bool
}
