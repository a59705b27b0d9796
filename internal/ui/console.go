package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

type ConsoleStyle int

const (
	StyleNormal ConsoleStyle = iota
	StyleError
	StyleWarning
	StyleSuccess
	StyleInfo
)

type Console struct {
	useColors bool
	out       io.Writer
	errOut    io.Writer
}

func NewConsole() *Console {
	return &Console{
		useColors: !color.NoColor,
		out:       os.Stdout,
		errOut:    os.Stderr,
	}
}

// NewConsoleWithWriters builds an uncolored console writing to the given streams.
func NewConsoleWithWriters(out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut}
}

func styleColor(style ConsoleStyle) *color.Color {
	switch style {
	case StyleError:
		return color.New(color.FgRed, color.Bold)
	case StyleWarning:
		return color.New(color.FgYellow)
	case StyleSuccess:
		return color.New(color.FgGreen)
	case StyleInfo:
		return color.New(color.FgBlue)
	default:
		return nil
	}
}

func (c *Console) formatMessage(style ConsoleStyle, message string) string {
	if !c.useColors {
		return message
	}

	col := styleColor(style)
	if col == nil {
		return message
	}
	col.EnableColor()
	return col.Sprint(message)
}

func (c *Console) PrintError(message string) {
	fmt.Fprintf(c.errOut, "%s\n", c.formatMessage(StyleError, "Error: "+message))
}

func (c *Console) PrintWarning(message string) {
	fmt.Fprintf(c.errOut, "%s\n", c.formatMessage(StyleWarning, "Warning: "+message))
}

func (c *Console) PrintSuccess(message string) {
	fmt.Fprintf(c.out, "%s\n", c.formatMessage(StyleSuccess, message))
}

func (c *Console) PrintInfo(message string) {
	fmt.Fprintf(c.out, "%s\n", c.formatMessage(StyleInfo, message))
}

// PrintCheck reports the outcome of a single post-deploy check.
func (c *Console) PrintCheck(name string, passed bool, detail string) {
	mark, style := "PASS", StyleSuccess
	if !passed {
		mark, style = "FAIL", StyleError
	}
	line := fmt.Sprintf("[%s] %s", mark, name)
	if detail != "" {
		line += ": " + detail
	}
	fmt.Fprintf(c.out, "%s\n", c.formatMessage(style, line))
}

func (c *Console) FormatErrorMessage(context, cause, suggestion string) string {
	var parts []string

	if context != "" {
		parts = append(parts, context)
	}

	if cause != "" {
		parts = append(parts, fmt.Sprintf("Cause: %s", cause))
	}

	if suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", suggestion))
	}

	return strings.Join(parts, "\n")
}
