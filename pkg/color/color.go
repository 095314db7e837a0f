package color

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ANSI color codes
const (
	Reset     = "\033[0m"
	Red       = "\033[31m"
	Green     = "\033[32m"
	Yellow    = "\033[33m"
	Cyan      = "\033[36m"
	BoldStyle = "\033[1m"
)

var markers = map[string]string{
	"{green}":  Green,
	"{red}":    Red,
	"{yellow}": Yellow,
	"{cyan}":   Cyan,
	"{bold}":   BoldStyle,
	"{reset}":  Reset,
}

// Enabled reports whether w should receive color codes: it must be a
// terminal, NO_COLOR must be unset and TERM must not be dumb.
func Enabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if fileInfo, err := f.Stat(); err != nil || (fileInfo.Mode()&os.ModeCharDevice) == 0 {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}

// Expand replaces {color} markers with ANSI codes, or strips them.
func Expand(format string, enabled bool) string {
	for marker, code := range markers {
		if enabled {
			format = strings.ReplaceAll(format, marker, code)
		} else {
			format = strings.ReplaceAll(format, marker, "")
		}
	}
	return format
}

// Fprintf prints formatted text with {color} markers to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, Expand(format, Enabled(w)), args...)
}

// Printf prints formatted text with optional color
func Printf(format string, args ...interface{}) {
	Fprintf(os.Stdout, format, args...)
}

// Bold formats text in bold when w supports color.
func Bold(w io.Writer, text string) string {
	if !Enabled(w) {
		return text
	}
	return BoldStyle + text + Reset
}
