// Package shellcmd builds the remote commands used to inspect files inside
// test containers, one builder per shell family.
package shellcmd

import (
	"fmt"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

func sh(script string) []string {
	return []string{"sh", "-c", script}
}

// PosixFileWithContent exits 0 and prints the matching file names when some
// regular file directly under dir contains text as a literal substring.
// An empty dir also exits 0, so callers must check the output too. A missing
// dir exits non-zero.
func PosixFileWithContent(dir, text string) []string {
	return sh(fmt.Sprintf("test -d %s && find %s -maxdepth 1 -type f -print0 | xargs -0 -r grep -l -F -- %s",
		shellescape.Quote(dir), shellescape.Quote(dir), shellescape.Quote(text)))
}

// PosixFileWithRegex is PosixFileWithContent with pattern as an extended regex.
func PosixFileWithRegex(dir, pattern string) []string {
	return sh(fmt.Sprintf("test -d %s && find %s -maxdepth 1 -type f -print0 | xargs -0 -r grep -l -E -- %s",
		shellescape.Quote(dir), shellescape.Quote(dir), shellescape.Quote(pattern)))
}

// PosixMatchingLineCount prints how many lines of path equal content exactly.
func PosixMatchingLineCount(path, content string) []string {
	return sh(fmt.Sprintf("cat %s 2>/dev/null | grep -x -F -- %s | wc -l",
		shellescape.Quote(path), shellescape.Quote(content)))
}

// PosixFileCount prints the number of regular files directly under dir and
// exits non-zero when dir is not a directory.
func PosixFileCount(dir string) []string {
	return sh(fmt.Sprintf("test -d %s && find %s -maxdepth 1 -type f | wc -l",
		shellescape.Quote(dir), shellescape.Quote(dir)))
}

// PosixListFiles prints the regular files directly under dir, NUL separated.
func PosixListFiles(dir string) []string {
	return sh(fmt.Sprintf("test -d %s && find %s -maxdepth 1 -type f -print0",
		shellescape.Quote(dir), shellescape.Quote(dir)))
}

// PosixReadFile prints the content of path.
func PosixReadFile(path string) []string {
	return []string{"cat", path}
}

// PosixMkdir creates dir and its parents.
func PosixMkdir(dir string) []string {
	return []string{"mkdir", "-p", dir}
}

// SplitNul splits find -print0 output into paths.
func SplitNul(output string) []string {
	var paths []string
	for _, p := range strings.Split(output, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// ParseCount reads the integer on the last non-blank line of output.
func ParseCount(output string) (int, bool) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NormalizeContent maps CRLF to LF and trims surrounding whitespace so file
// contents compare equal across platforms.
func NormalizeContent(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
}
