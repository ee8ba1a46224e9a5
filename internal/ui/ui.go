// Package ui prints user-facing progress. Messages go to stderr so stdout
// stays clean for listings; colour is used only on terminals and never when
// NO_COLOR is set.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var (
	writer io.Writer = os.Stderr
	out    io.Writer = os.Stdout
)

// SetWriter overrides the stderr writer. nil restores os.Stderr.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	writer = w
}

// SetOutput overrides the stdout writer. nil restores os.Stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// Out returns the stdout writer.
func Out() io.Writer {
	return out
}

var color = detectColor(os.Stderr)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	color = enabled
}

func ansi(code, s string) string {
	if !color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func Bold(s string) string   { return ansi("1", s) }
func Dim(s string) string    { return ansi("2", s) }
func Green(s string) string  { return ansi("32", s) }
func Red(s string) string    { return ansi("31", s) }
func Yellow(s string) string { return ansi("33", s) }

// OKTag returns a green "✓".
func OKTag() string { return Green("✓") }

// FailTag returns a red "✗".
func FailTag() string { return Red("✗") }

// Section prints a bold title with a thin underline.
func Section(title string) {
	fmt.Fprintln(writer, Bold(title))
	fmt.Fprintln(writer, Dim(strings.Repeat("─", len([]rune(title)))))
}

// Step announces item index (0-based) of total.
func Step(index, total int, msg string) {
	fmt.Fprintf(writer, "%s %s\n", Dim(fmt.Sprintf("[%d/%d]", index+1, total)), msg)
}

// OK prints an indented success line.
func OK(msg string) {
	fmt.Fprintf(writer, "    %s %s\n", OKTag(), msg)
}

// Fail prints an indented failure line.
func Fail(msg string) {
	fmt.Fprintf(writer, "    %s %s\n", FailTag(), msg)
}

// Summary prints the final "Succeeded: n/m" line, green when everything
// succeeded.
func Summary(succeeded, attempted int) {
	ratio := fmt.Sprintf("%d/%d", succeeded, attempted)
	switch {
	case attempted > 0 && succeeded == attempted:
		ratio = Green(ratio)
	case succeeded == 0 && attempted > 0:
		ratio = Red(ratio)
	default:
		ratio = Yellow(ratio)
	}
	fmt.Fprintf(writer, "%s %s\n", Bold("Succeeded:"), ratio)
}

// Warn prints a user-facing warning.
func Warn(msg string) {
	fmt.Fprintf(writer, "%s %s\n", ansi("33", "Warning:"), msg)
}

// Warnf prints a formatted user-facing warning.
func Warnf(format string, args ...any) {
	Warn(fmt.Sprintf(format, args...))
}

// Error prints a user-facing error.
func Error(msg string) {
	fmt.Fprintf(writer, "%s %s\n", ansi("31", "Error:"), msg)
}

// Errorf prints a formatted user-facing error.
func Errorf(format string, args ...any) {
	Error(fmt.Sprintf(format, args...))
}

// Info prints a message with no prefix.
func Info(msg string) {
	fmt.Fprintln(writer, msg)
}

// Infof prints a formatted message with no prefix.
func Infof(format string, args ...any) {
	fmt.Fprintf(writer, format+"\n", args...)
}
