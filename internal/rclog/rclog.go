// Package rclog is a small leveled logger in the style of rclone's
// fs.Logf/fs.Debugf/fs.Errorf family: each call takes the subject the
// message is about, a format string, and arguments.
package rclog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log severity.
type Level int

// Severities, lowest first.
const (
	Debug Level = iota
	Info
	Notice
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO "
	case Notice:
		return "NOTICE"
	case Error:
		return "ERROR"
	default:
		return "?????"
	}
}

func (l Level) color() string {
	switch l {
	case Debug:
		return "\x1b[37m"
	case Notice:
		return "\x1b[33m"
	case Error:
		return "\x1b[31m"
	default:
		return ""
	}
}

const colorReset = "\x1b[0m"

var (
	mu         sync.Mutex
	out        io.Writer = colorable.NewColorableStdout()
	minLevel             = Info
	showTime             = true
	useColor             = isatty.IsTerminal(os.Stdout.Fd())
)

// SetOutput redirects all log output, e.g. to a test buffer or a log file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetLevel sets the minimum level that will be printed. bisync.Run sets
// it from the --verbose count: Notice with none, Info with one, Debug
// with two or more.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetShowTime controls the "YYYY/MM/DD HH:MM:SS " prefix; disabled by
// --no-datetime-log so that test output is reproducible.
func SetShowTime(show bool) {
	mu.Lock()
	defer mu.Unlock()
	showTime = show
}

// SetColor forces color on or off, overriding terminal detection.
func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	useColor = enabled
}

func logf(level Level, subject any, format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}
	msg := fmt.Sprintf(format, a...)
	prefix := ""
	if showTime {
		prefix = time.Now().Format("2006/01/02 15:04:05") + " "
	}
	line := fmt.Sprintf("%s%s: ", prefix, level)
	if subject != nil {
		line += fmt.Sprintf("%v: ", subject)
	}
	line += msg
	if useColor {
		line = level.color() + line + colorReset
	}
	fmt.Fprintln(out, line)
}

// Debugf logs at debug level, shown only with -vv.
func Debugf(subject any, format string, a ...any) { logf(Debug, subject, format, a...) }

// Infof logs routine progress, shown with -v.
func Infof(subject any, format string, a ...any) { logf(Info, subject, format, a...) }

// Noticef logs messages shown by default (skipped files, dry-run actions).
func Noticef(subject any, format string, a ...any) { logf(Notice, subject, format, a...) }

// Errorf logs failures. It does not exit the process; callers decide.
func Errorf(subject any, format string, a ...any) { logf(Error, subject, format, a...) }
