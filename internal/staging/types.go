// Package staging materializes declared container files on the host before
// a container is created, and packs files for archive upload after start.
package staging

import (
	"path"
	"sort"
	"strings"
)

// Mode is the access mode of a mounted path.
type Mode string

const (
	ReadWrite Mode = "rw"
	ReadOnly  Mode = "ro"
)

// File is a single file to place at Path/Name inside the container.
type File struct {
	Path    string
	Name    string
	Content string
	Mode    Mode
}

func NewFile(dir, name, content string) File {
	return File{Path: dir, Name: name, Content: content, Mode: ReadWrite}
}

// FileAt splits a full guest path into directory and name.
func FileAt(fullPath, content string) File {
	dir, name := path.Split(strings.ReplaceAll(fullPath, `\`, "/"))
	if dir != "/" {
		dir = strings.TrimSuffix(dir, "/")
	}
	return NewFile(dir, name, content)
}

// WithMode returns a copy of f with the given mode.
func (f File) WithMode(mode Mode) File {
	f.Mode = mode
	return f
}

// FullPath returns the guest path of the file.
func (f File) FullPath() string {
	return path.Join(f.Path, f.Name)
}

// Directory is a set of files mounted together at Path.
type Directory struct {
	Path  string
	Mode  Mode
	Files map[string]string
}

func NewDirectory(dir string) *Directory {
	return &Directory{Path: dir, Mode: ReadWrite, Files: make(map[string]string)}
}

// AddFile adds or replaces an entry of the directory.
func (d *Directory) AddFile(name, content string) {
	if d.Files == nil {
		d.Files = make(map[string]string)
	}
	d.Files[name] = content
}

// Names returns the entry names in sorted order.
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.Files))
	for name := range d.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HostFile bind-mounts an existing host path into the container.
type HostFile struct {
	HostPath      string
	ContainerPath string
	Mode          Mode
}

func NewHostFile(hostPath, containerPath string) HostFile {
	return HostFile{HostPath: hostPath, ContainerPath: containerPath, Mode: ReadWrite}
}

func readOnly(mode Mode) bool {
	return mode == ReadOnly
}
