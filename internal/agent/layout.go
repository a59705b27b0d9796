package agent

import (
	"context"
	"fmt"
	"strings"

	"minifitest/internal/container"
	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/pkg/runtime"
)

// fhsMarker appears in the build history of images that install the agent
// as a system package.
const fhsMarker = "MINIFI_INSTALLATION_TYPE=FHS"

// Layout describes where an agent image keeps its configuration and tools.
type Layout struct {
	Name           string
	ConfDir        string
	ControllerPath string
	FlowConfigFile string
	ExtensionPath  string
}

var (
	// LinuxLayout is the layout of the release tarball images.
	LinuxLayout = Layout{
		Name:           "linux",
		ConfDir:        "/opt/minifi/minifi-current/conf",
		ControllerPath: "/opt/minifi/minifi-current/bin/minifi-controller",
		FlowConfigFile: "./conf/config.yml",
		ExtensionPath:  "../extensions/*",
	}

	// FHSLayout is the layout of package-installed images.
	FHSLayout = Layout{
		Name:           "fhs",
		ConfDir:        "/etc/nifi-minifi-cpp",
		ControllerPath: "/usr/bin/minifi-controller",
		FlowConfigFile: "/etc/nifi-minifi-cpp/config.yml",
		ExtensionPath:  "/usr/lib64/nifi-minifi-cpp/extensions/*",
	}

	// WindowsLayout is the layout of the MSI-installed Windows images.
	WindowsLayout = Layout{
		Name:           "windows",
		ConfDir:        "/Program Files/ApacheNiFiMiNiFi/nifi-minifi-cpp/conf",
		ControllerPath: `C:\Program Files\ApacheNiFiMiNiFi\nifi-minifi-cpp\bin\minifi-controller.exe`,
		FlowConfigFile: "./conf/config.yml",
		ExtensionPath:  "../extensions/*",
	}
)

// ParseLayout resolves a layout by name.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(name) {
	case "linux":
		return LinuxLayout, nil
	case "fhs":
		return FHSLayout, nil
	case "windows":
		return WindowsLayout, nil
	default:
		return Layout{}, fmt.Errorf("unknown agent layout %q (expected linux, fhs or windows)", name)
	}
}

// DetectLayout picks the layout for image. Windows guests always use the MSI
// layout; POSIX images are probed for the FHS marker in their history.
func DetectLayout(ctx context.Context, rt runtime.ContainerRuntime, image string, platform container.Platform) (Layout, error) {
	if platform.Resolve() == container.PlatformWindows {
		return WindowsLayout, nil
	}

	history, err := rt.ImageHistory(ctx, image)
	if err != nil {
		return Layout{}, harnesserrors.NewEngineError(
			fmt.Sprintf("Failed to read the history of image '%s'", image),
			err.Error(),
			"Make sure the agent image exists locally or pass --pull",
			err,
		)
	}

	for _, entry := range history {
		if strings.Contains(entry, fhsMarker) {
			logger.Debug().Str("image", image).Msg("detected FHS agent layout")
			return FHSLayout, nil
		}
	}
	return LinuxLayout, nil
}
