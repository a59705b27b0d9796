package shellcmd

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Exit codes shared by every PowerShell check.
const (
	ExitMatch   = 0
	ExitNoMatch = 1
	ExitMissing = 2
)

var psQuoteReplacer = strings.NewReplacer(
	"'", "''",
	"\u2018", "\u2018\u2018",
	"\u2019", "\u2019\u2019",
	"\u201a", "\u201a\u201a",
	"\u201b", "\u201b\u201b",
)

// PSQuote renders s as a PowerShell single-quoted literal. PowerShell treats
// the typographic single quotes as delimiters too, so they are doubled as well.
func PSQuote(s string) string {
	return "'" + psQuoteReplacer.Replace(s) + "'"
}

// EncodePowerShell returns the base64 of the UTF-16LE script, the form
// expected by powershell -EncodedCommand.
func EncodePowerShell(script string) (string, error) {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(script)
	if err != nil {
		return "", fmt.Errorf("failed to encode PowerShell script: %w", err)
	}
	return base64.StdEncoding.EncodeToString([]byte(encoded)), nil
}

// PowerShell wraps script in a non-interactive encoded-command invocation.
func PowerShell(script string) ([]string, error) {
	encoded, err := EncodePowerShell(script)
	if err != nil {
		return nil, err
	}
	return []string{"powershell", "-NonInteractive", "-NoProfile", "-EncodedCommand", encoded}, nil
}

// guarded runs body with errors turned into ExitMissing.
func guarded(body string) string {
	return "$ErrorActionPreference = 'Stop'\n" +
		"try {\n" + body + "\n} catch {\n  exit 2\n}\n"
}

func requireDir(dir string) string {
	return fmt.Sprintf("$dir = %s\nif (-not (Test-Path -LiteralPath $dir -PathType Container)) { exit 2 }\n", PSQuote(dir))
}

const listFiles = "$files = @(Get-ChildItem -LiteralPath $dir -File -Force -Depth 0)\n"

// WindowsFileWithContent exits 0 when a file directly under dir contains text literally.
func WindowsFileWithContent(dir, text string) string {
	return selectScript(dir, text, "-SimpleMatch ")
}

// WindowsFileWithRegex exits 0 when a file directly under dir matches pattern.
func WindowsFileWithRegex(dir, pattern string) string {
	return selectScript(dir, pattern, "")
}

func selectScript(dir, pattern, mode string) string {
	return guarded(requireDir(dir) + listFiles + fmt.Sprintf(
		"foreach ($f in $files) {\n"+
			"  if (Select-String -LiteralPath $f.FullName -Pattern %s %s-CaseSensitive -List -Quiet) { exit 0 }\n"+
			"}\n"+
			"exit 1", PSQuote(pattern), mode))
}

// WindowsSingleLineMatch exits 0 when exactly one line of path equals content.
func WindowsSingleLineMatch(path, content string) string {
	return guarded(fmt.Sprintf(
		"$path = %s\n"+
			"if (-not (Test-Path -LiteralPath $path -PathType Leaf)) { exit 2 }\n"+
			"$n = @(Get-Content -LiteralPath $path | Where-Object { $_ -ceq %s }).Count\n"+
			"if ($n -eq 1) { exit 0 }\n"+
			"exit 1", PSQuote(path), PSQuote(content)))
}

// WindowsFileCount prints the number of files directly under dir.
func WindowsFileCount(dir string) string {
	return guarded(requireDir(dir) + listFiles + "Write-Output $files.Count\nexit 0")
}

// WindowsSingleFileWithContent exits 0 when dir holds exactly one file whose
// trimmed content equals the trimmed content argument.
func WindowsSingleFileWithContent(dir, content string) string {
	return guarded(requireDir(dir) + listFiles + fmt.Sprintf(
		"if ($files.Count -ne 1) { exit 1 }\n"+
			"$actual = [System.IO.File]::ReadAllText($files[0].FullName).Trim()\n"+
			"if ($actual -ceq %s) { exit 0 }\n"+
			"exit 1", PSQuote(strings.TrimSpace(content))))
}

// WindowsFileContents exits 0 when the files directly under dir hold exactly
// the expected contents in any order, after CRLF normalization and trimming.
func WindowsFileContents(dir string, expected []string) string {
	quoted := make([]string, 0, len(expected))
	for _, e := range expected {
		quoted = append(quoted, PSQuote(NormalizeContent(e)))
	}

	return guarded(requireDir(dir) + listFiles + fmt.Sprintf(
		"$remaining = [System.Collections.Generic.List[string]]::new()\n"+
			"foreach ($e in @(%s)) { $remaining.Add($e) }\n"+
			"if ($files.Count -ne $remaining.Count) { exit 1 }\n"+
			"foreach ($f in $files) {\n"+
			"  $c = ([System.IO.File]::ReadAllText($f.FullName) -replace \"`r`n\", \"`n\").Trim()\n"+
			"  $i = $remaining.IndexOf($c)\n"+
			"  if ($i -lt 0) { exit 1 }\n"+
			"  $remaining.RemoveAt($i)\n"+
			"}\n"+
			"exit 0", strings.Join(quoted, ", ")))
}

// WindowsMkdir creates dir and its parents.
func WindowsMkdir(dir string) string {
	return guarded(fmt.Sprintf("New-Item -ItemType Directory -Force -Path %s | Out-Null\nexit 0", PSQuote(dir)))
}

// WindowsPath converts a POSIX-style guest path to an absolute Windows path.
// Forward slashes become backslashes and a path without a drive letter is
// rooted on C:.
func WindowsPath(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)
	if len(p) >= 2 && p[1] == ':' && isLetter(p[0]) {
		return p
	}
	return `C:\` + strings.TrimLeft(p, `\`)
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
