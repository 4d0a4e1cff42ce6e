package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Logger provides verbosity-controlled logging for analysis runs.
// Output goes to stderr so stdout stays clean for results.
type Logger struct {
	verbosity   VerbosityLevel
	writer      io.Writer
	startTime   time.Time
	timings     map[string]time.Duration
	isTTY       bool
	progressBar *progressbar.ProgressBar
}

// NewLogger creates a logger with the specified verbosity writing to stderr.
func NewLogger(verbosity VerbosityLevel) *Logger {
	return NewLoggerWithWriter(verbosity, os.Stderr)
}

// NewLoggerWithWriter creates a logger with a custom writer (for testing).
func NewLoggerWithWriter(verbosity VerbosityLevel, w io.Writer) *Logger {
	return &Logger{
		verbosity: verbosity,
		writer:    w,
		startTime: time.Now(),
		timings:   make(map[string]time.Duration),
		isTTY:     IsTTY(w),
	}
}

// Progress logs high-level progress messages (verbose and debug modes).
func (l *Logger) Progress(format string, args ...interface{}) {
	if l.verbosity >= VerbosityVerbose {
		fmt.Fprintf(l.writer, format+"\n", args...)
	}
}

// Statistic logs counts and metrics (verbose and debug modes).
func (l *Logger) Statistic(format string, args ...interface{}) {
	if l.verbosity >= VerbosityVerbose {
		fmt.Fprintf(l.writer, format+"\n", args...)
	}
}

// Debug logs diagnostics with an elapsed-time prefix (debug mode only).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.verbosity >= VerbosityDebug {
		elapsed := time.Since(l.startTime)
		fmt.Fprintf(l.writer, "[%s] %s\n", formatDuration(elapsed), fmt.Sprintf(format, args...))
	}
}

// Warning logs warnings (always shown).
func (l *Logger) Warning(format string, args ...interface{}) {
	fmt.Fprintf(l.writer, "Warning: %s\n", fmt.Sprintf(format, args...))
}

// Error logs errors (always shown).
func (l *Logger) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.writer, "Error: %s\n", fmt.Sprintf(format, args...))
}

// StartTiming begins timing a named operation; the returned func records it.
func (l *Logger) StartTiming(name string) func() {
	start := time.Now()
	return func() {
		l.timings[name] = time.Since(start)
	}
}

// GetTiming returns the duration recorded for a named operation.
func (l *Logger) GetTiming(name string) time.Duration {
	return l.timings[name]
}

// PrintTimingSummary prints all recorded timings (verbose mode only).
func (l *Logger) PrintTimingSummary() {
	if l.verbosity < VerbosityVerbose {
		return
	}
	fmt.Fprintln(l.writer, "\nTiming Summary:")
	for name, duration := range l.timings {
		fmt.Fprintf(l.writer, "  %s: %s\n", name, duration.Round(time.Millisecond))
	}
}

// IsTTY returns true if the logger's output is connected to a terminal.
func (l *Logger) IsTTY() bool {
	return l.isTTY
}

// GetWriter returns the logger's output writer.
func (l *Logger) GetWriter() io.Writer {
	return l.writer
}

// IsVerbose returns true if verbose or debug mode is enabled.
func (l *Logger) IsVerbose() bool {
	return l.verbosity >= VerbosityVerbose
}

// StartProgress shows a progress bar for a long operation. Indeterminate
// operations (total = -1) get a spinner. Non-TTY runs print the description
// as a progress line, which appears only in verbose and debug modes.
func (l *Logger) StartProgress(description string, total int) {
	if !l.isTTY {
		l.Progress("%s...", description)
		return
	}

	if l.progressBar != nil {
		_ = l.progressBar.Finish()
	}

	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(l.writer),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65 * time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintf(l.writer, "\n")
		}),
	}
	if total < 0 {
		opts = append(opts, progressbar.OptionSpinnerType(14))
	} else {
		opts = append(opts, progressbar.OptionShowCount(), progressbar.OptionSetRenderBlankState(true))
	}

	l.progressBar = progressbar.NewOptions(total, opts...)
}

// UpdateProgress advances the progress bar by delta.
func (l *Logger) UpdateProgress(delta int) {
	if l.progressBar != nil {
		_ = l.progressBar.Add(delta)
	}
}

// FinishProgress completes and clears the progress bar.
func (l *Logger) FinishProgress() {
	if l.progressBar != nil {
		_ = l.progressBar.Finish()
		l.progressBar = nil
	}
}

// formatDuration formats duration as MM:SS.mmm.
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
}
