package container

import (
	"fmt"
	goruntime "runtime"
	"strings"

	"minifitest/pkg/runtime"
)

// Platform is the operating-system family of a container guest.
type Platform string

const (
	PlatformAuto    Platform = "auto"
	PlatformPosix   Platform = "posix"
	PlatformWindows Platform = "windows"
)

// ParsePlatform accepts auto, posix (or linux) and windows. An empty
// string means auto.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PlatformAuto, nil
	case "posix", "linux":
		return PlatformPosix, nil
	case "windows":
		return PlatformWindows, nil
	default:
		return "", fmt.Errorf("unknown platform %q (expected auto, posix or windows)", s)
	}
}

// DetectPlatform returns the guest family matching the host: Windows hosts
// run Windows containers, everything else runs POSIX ones.
func DetectPlatform() Platform {
	return platformFor(goruntime.GOOS)
}

func platformFor(goos string) Platform {
	if goos == "windows" {
		return PlatformWindows
	}
	return PlatformPosix
}

// Resolve turns PlatformAuto into the detected platform.
func (p Platform) Resolve() Platform {
	if p == PlatformAuto || p == "" {
		return DetectPlatform()
	}
	return p
}

// New builds the container variant for platform.
func New(platform Platform, rt runtime.ContainerRuntime, opts Options) Container {
	if platform.Resolve() == PlatformWindows {
		return NewWindowsContainer(rt, opts)
	}
	return NewPosixContainer(rt, opts)
}
