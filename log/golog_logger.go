package log

import (
	"github.com/kataras/golog"
)

// gologLevels maps LogLevel onto golog's level names.
var gologLevels = map[LogLevel]string{
	LogLevelDebug: "debug",
	LogLevelInfo:  "info",
	LogLevelWarn:  "warn",
	LogLevelError: "error",
	LogLevelNone:  "disable",
}

// GologLogger is the Logger used everywhere in fabflow. Filtering happens
// twice: here, so disabled calls skip formatting, and in golog itself.
type GologLogger struct {
	logger *golog.Logger
	level  LogLevel
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger at info level.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	return &GologLogger{logger: logger, level: LogLevelInfo}
}

func (l *GologLogger) enabled(level LogLevel) bool {
	return l.level <= level
}

func (l *GologLogger) Debug(format string, v ...any) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debugf(format, v...)
	}
}

func (l *GologLogger) Info(format string, v ...any) {
	if l.enabled(LogLevelInfo) {
		l.logger.Infof(format, v...)
	}
}

func (l *GologLogger) Warn(format string, v ...any) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warnf(format, v...)
	}
}

func (l *GologLogger) Error(format string, v ...any) {
	if l.enabled(LogLevelError) {
		l.logger.Errorf(format, v...)
	}
}

// SetLevel changes the level of both this logger and the wrapped golog.Logger.
// Unknown levels fall back to info.
func (l *GologLogger) SetLevel(level LogLevel) {
	name, ok := gologLevels[level]
	if !ok {
		level, name = LogLevelInfo, "info"
	}
	l.level = level
	l.logger.SetLevel(name)
}

func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}
