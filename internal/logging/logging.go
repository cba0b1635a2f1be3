// Package logging implements npresenced's leveled log facility: the eight
// syslog priorities (emerg…debug) fanned out to one of two sinks, matching
// spec.md §2.9 and §7. Sink selection mirrors the teacher's use of
// log/slog for human-readable stdout output; the syslog sink itself has no
// third-party analogue anywhere in the example corpus, so it is built on
// the standard library's log/syslog (see DESIGN.md).
package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
)

// Level is one of the eight RFC 5424 / BSD syslog priorities the daemon's
// command line accepts via --loglevel.
type Level int

const (
	Emerg Level = iota
	Alert
	Crit
	Err
	Warning
	Notice
	Info
	Debug
)

// ParseLevel maps a --loglevel flag value (e.g. "LOG_WARNING") to a Level.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "LOG_EMERG":
		return Emerg, nil
	case "LOG_ALERT":
		return Alert, nil
	case "LOG_CRIT":
		return Crit, nil
	case "LOG_ERR":
		return Err, nil
	case "LOG_WARNING":
		return Warning, nil
	case "LOG_NOTICE":
		return Notice, nil
	case "LOG_INFO":
		return Info, nil
	case "LOG_DEBUG":
		return Debug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

func (l Level) String() string {
	switch l {
	case Emerg:
		return "EMERG"
	case Alert:
		return "ALERT"
	case Crit:
		return "CRIT"
	case Err:
		return "ERR"
	case Warning:
		return "WARNING"
	case Notice:
		return "NOTICE"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger is npresenced's leveled sink: messages below the configured level
// are dropped, the rest go to either stdout (via slog) or syslog.
type Logger struct {
	level Level
	out   *slog.Logger
	sys   *syslog.Writer // nil unless target == "syslog"
}

// New builds a Logger for the given target ("stdout" or "syslog") and
// minimum level. An unreachable syslog daemon is a setup error (spec.md §7).
func New(target string, level Level) (*Logger, error) {
	l := &Logger{level: level}

	switch target {
	case "syslog":
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "npresenced")
		if err != nil {
			return nil, fmt.Errorf("connecting to syslog: %w", err)
		}
		l.sys = w
	default:
		l.out = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return l, nil
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if level > l.level {
		return
	}
	line := msg
	if len(args) > 0 {
		line = fmt.Sprintf(msg, args...)
	}
	if l.sys != nil {
		l.writeSyslog(level, line)
		return
	}
	switch {
	case level <= Err:
		l.out.Error(line)
	case level == Warning:
		l.out.Warn(line)
	case level == Debug:
		l.out.Debug(line)
	default:
		l.out.Info(line)
	}
}

func (l *Logger) writeSyslog(level Level, line string) {
	switch level {
	case Emerg:
		_ = l.sys.Emerg(line)
	case Alert:
		_ = l.sys.Alert(line)
	case Crit:
		_ = l.sys.Crit(line)
	case Err:
		_ = l.sys.Err(line)
	case Warning:
		_ = l.sys.Warning(line)
	case Notice:
		_ = l.sys.Notice(line)
	case Info:
		_ = l.sys.Info(line)
	default:
		_ = l.sys.Debug(line)
	}
}

func (l *Logger) Emergf(msg string, args ...any)   { l.log(Emerg, msg, args...) }
func (l *Logger) Alertf(msg string, args ...any)   { l.log(Alert, msg, args...) }
func (l *Logger) Critf(msg string, args ...any)    { l.log(Crit, msg, args...) }
func (l *Logger) Errf(msg string, args ...any)     { l.log(Err, msg, args...) }
func (l *Logger) Warningf(msg string, args ...any) { l.log(Warning, msg, args...) }
func (l *Logger) Noticef(msg string, args ...any)  { l.log(Notice, msg, args...) }
func (l *Logger) Infof(msg string, args ...any)    { l.log(Info, msg, args...) }
func (l *Logger) Debugf(msg string, args ...any)   { l.log(Debug, msg, args...) }

// def is the process-wide logger, normally replaced once by main via
// SetDefault; it starts as a stdout/Info logger so package-level calls
// from tests and early startup never see a nil logger.
var def = &Logger{level: Info, out: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))}

// SetDefault installs l as the logger used by the package-level helpers.
func SetDefault(l *Logger) { def = l }

func Emergf(msg string, args ...any)   { def.Emergf(msg, args...) }
func Alertf(msg string, args ...any)   { def.Alertf(msg, args...) }
func Critf(msg string, args ...any)    { def.Critf(msg, args...) }
func Errf(msg string, args ...any)     { def.Errf(msg, args...) }
func Warningf(msg string, args ...any) { def.Warningf(msg, args...) }
func Noticef(msg string, args ...any)  { def.Noticef(msg, args...) }
func Infof(msg string, args ...any)    { def.Infof(msg, args...) }
func Debugf(msg string, args ...any)   { def.Debugf(msg, args...) }
