package runlog

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Logger writes styled pipeline log lines into a Sink. Styling is forced to
// the basic ANSI profile so output renders the same whether it lands in a
// terminal or is captured by the transport.
type Logger struct {
	sink *Sink

	info      lipgloss.Style
	success   lipgloss.Style
	warning   lipgloss.Style
	errStyle  lipgloss.Style
	stage     lipgloss.Style
	step      lipgloss.Style
	command   lipgloss.Style
	highlight lipgloss.Style
}

// NewLogger creates a logger bound to the given sink. A nil sink writes to
// standard output.
func NewLogger(sink *Sink) *Logger {
	if sink == nil {
		sink = NewSink()
		sink.SetMirror(true)
	}
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI)

	return &Logger{
		sink:      sink,
		info:      r.NewStyle().Faint(true),
		success:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		warning:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		errStyle:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		stage:     r.NewStyle().Bold(true).Reverse(true),
		step:      r.NewStyle().Bold(true),
		command:   r.NewStyle().Faint(true),
		highlight: r.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
	}
}

// Sink returns the sink this logger writes to
func (l *Logger) Sink() *Sink {
	return l.sink
}

// Write implements io.Writer so arbitrary output can be captured
func (l *Logger) Write(p []byte) (int, error) {
	l.sink.Append(string(p))
	return len(p), nil
}

func (l *Logger) println(line string) {
	l.sink.Append(line + "\n")
}

// Stage logs a major pipeline stage header in a reversed block
func (l *Logger) Stage(name string) {
	l.println("")
	l.println(l.stage.Render(" " + strings.ToUpper(name) + " "))
	l.println("")
}

// Step logs a step within the current stage, prefixed with a chevron
func (l *Logger) Step(text string) {
	l.println("❯ " + l.step.Render(text))
}

// Info logs an informational message
func (l *Logger) Info(text string) {
	l.println("ℹ " + l.info.Render(text))
}

// Infof logs a formatted informational message
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// Success logs a success message
func (l *Logger) Success(text string) {
	l.println("✓ " + l.success.Render(text))
}

// Warning logs a warning message
func (l *Logger) Warning(text string) {
	l.println("⚠ " + l.warning.Render(text))
}

// Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...any) {
	l.Warning(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(text string) {
	l.println("✘ " + l.errStyle.Render(text))
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// Command logs a command about to be executed
func (l *Logger) Command(cmd string) {
	l.println("  " + l.command.Render("$ "+cmd))
}

// Plain logs text without any prefix or styling
func (l *Logger) Plain(text string) {
	l.println(text)
}

// Highlight logs an emphasized message
func (l *Logger) Highlight(text string) {
	l.println(l.highlight.Render(text))
}

// Indent logs text indented by level two-space stops
func (l *Logger) Indent(text string, level int) {
	if level < 1 {
		level = 1
	}
	l.println(strings.Repeat("  ", level) + text)
}
