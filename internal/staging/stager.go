package staging

import (
	"archive/tar"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/pkg/runtime"
)

// Stager owns one private temp directory on the host.
type Stager struct {
	root string
}

// NewStager creates the temp directory backing a container's files.
func NewStager(containerName string) (*Stager, error) {
	root, err := os.MkdirTemp("", "minifitest-"+sanitize(containerName)+"-")
	if err != nil {
		return nil, harnesserrors.NewStagingError(
			"Failed to create staging directory",
			err.Error(),
			"Check that the system temp directory is writable",
			fmt.Errorf("failed to create staging directory: %w", err),
		)
	}
	return &Stager{root: root}, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == ' ' {
			return '_'
		}
		return r
	}, name)
}

func (s *Stager) Root() string {
	return s.root
}

// hostPath mirrors a guest path under the staging root.
func (s *Stager) hostPath(kind, guestPath string) string {
	clean := strings.TrimLeft(strings.ReplaceAll(guestPath, `\`, "/"), "/")
	clean = strings.ReplaceAll(clean, ":", "")
	return filepath.Join(s.root, kind, filepath.FromSlash(clean))
}

// StageFile writes f under the staging root and returns its host path.
func (s *Stager) StageFile(f File) (string, error) {
	hostPath := s.hostPath("files", f.FullPath())
	if err := writeFile(hostPath, f.Content); err != nil {
		return "", harnesserrors.NewStagingError(
			fmt.Sprintf("Failed to stage file '%s'", f.FullPath()),
			err.Error(),
			"",
			err,
		)
	}
	return hostPath, nil
}

// StageDirectory writes every entry of d into one host directory and returns it.
func (s *Stager) StageDirectory(d *Directory) (string, error) {
	hostDir := s.hostPath("dirs", d.Path)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return "", harnesserrors.NewStagingError(
			fmt.Sprintf("Failed to stage directory '%s'", d.Path),
			err.Error(),
			"",
			fmt.Errorf("failed to create %s: %w", hostDir, err),
		)
	}
	for _, name := range d.Names() {
		if err := writeFile(filepath.Join(hostDir, name), d.Files[name]); err != nil {
			return "", harnesserrors.NewStagingError(
				fmt.Sprintf("Failed to stage file '%s' of directory '%s'", name, d.Path),
				err.Error(),
				"",
				err,
			)
		}
	}
	return hostDir, nil
}

func writeFile(hostPath, content string) error {
	if err := os.MkdirAll(filepath.Dir(hostPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(hostPath), err)
	}
	if err := os.WriteFile(hostPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", hostPath, err)
	}
	return nil
}

// Bindings stages files and directories and returns the volume table.
// translate maps guest paths to the platform's native syntax. Files are
// only staged and mounted when mountFiles is set.
func (s *Stager) Bindings(files []File, dirs []*Directory, hostFiles []HostFile, mountFiles bool, translate func(string) string) ([]runtime.Mount, error) {
	if translate == nil {
		translate = func(p string) string { return p }
	}

	var mounts []runtime.Mount
	if mountFiles {
		for _, f := range files {
			hostPath, err := s.StageFile(f)
			if err != nil {
				return nil, err
			}
			mounts = append(mounts, runtime.Mount{Source: hostPath, Target: translate(f.FullPath()), ReadOnly: readOnly(f.Mode)})
		}
	}

	for _, d := range dirs {
		hostDir, err := s.StageDirectory(d)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, runtime.Mount{Source: hostDir, Target: translate(d.Path), ReadOnly: readOnly(d.Mode)})
	}

	for _, h := range hostFiles {
		mounts = append(mounts, runtime.Mount{Source: h.HostPath, Target: translate(h.ContainerPath), ReadOnly: readOnly(h.Mode)})
	}

	logger.Debug().Str("root", s.root).Int("mounts", len(mounts)).Msg("staged container files")
	return mounts, nil
}

// Cleanup removes the staging directory.
func (s *Stager) Cleanup() error {
	if s == nil || s.root == "" {
		return nil
	}
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove staging directory %s: %w", s.root, err)
	}
	return nil
}

// FileGroup is a set of files sharing one destination directory.
type FileGroup struct {
	Dir   string
	Files []File
}

// GroupByDir groups files by destination directory, ordered by directory.
// Within a group a later file replaces an earlier one of the same name.
func GroupByDir(files []File) []FileGroup {
	index := make(map[string]int)
	var groups []FileGroup
	for _, f := range files {
		i, ok := index[f.Path]
		if !ok {
			i = len(groups)
			index[f.Path] = i
			groups = append(groups, FileGroup{Dir: f.Path})
		}
		replaced := false
		for j, existing := range groups[i].Files {
			if existing.Name == f.Name {
				groups[i].Files[j] = f
				replaced = true
			}
		}
		if !replaced {
			groups[i].Files = append(groups[i].Files, f)
		}
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Dir < groups[b].Dir })
	return groups
}

// Archive packs files into an uncompressed tar stream, one entry per file,
// named by file name only.
func Archive(files []File) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	for _, f := range files {
		content := []byte(f.Content)
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    0644,
			Size:    int64(len(content)),
			ModTime: now,
			Format:  tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write archive header for %s: %w", f.Name, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", f.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return &buf, nil
}
