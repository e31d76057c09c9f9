package monitoring

import (
	"fmt"
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level is a reporting verbosity. Higher levels are more verbose.
type Level int

const (
	LevelQuiet Level = iota
	LevelError
	LevelWarning
	LevelResult
	LevelInfo
	LevelDebug
)

var levelNames = map[Level]string{
	LevelQuiet:   "QUIET",
	LevelError:   "ERROR",
	LevelWarning: "WARNING",
	LevelResult:  "RESULT",
	LevelInfo:    "INFO",
	LevelDebug:   "DEBUG",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a level name such as "INFO" or "debug" to a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARN" {
		name = "WARNING"
	}
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// reporting is the current verbosity; messages above it are dropped.
var reporting = LevelInfo

// SetLevel sets the reporting verbosity.
func SetLevel(l Level) { reporting = l }

// CurrentLevel returns the reporting verbosity.
func CurrentLevel() Level { return reporting }

// Enabled reports whether messages at l are emitted.
func Enabled(l Level) bool { return l != LevelQuiet && l <= reporting }

func logAt(l Level, format string, v ...interface{}) {
	if !Enabled(l) {
		return
	}
	Logf("["+l.String()+"] "+format, v...)
}

func Errorf(format string, v ...interface{})  { logAt(LevelError, format, v...) }
func Warnf(format string, v ...interface{})   { logAt(LevelWarning, format, v...) }
func Resultf(format string, v ...interface{}) { logAt(LevelResult, format, v...) }
func Infof(format string, v ...interface{})   { logAt(LevelInfo, format, v...) }
func Debugf(format string, v ...interface{})  { logAt(LevelDebug, format, v...) }
