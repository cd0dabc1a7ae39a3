package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

func newDefault() Logger {
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: DefaultPattern, time: DefaultTime})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stdout)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

func initByConfig(cfg *LoggerConfig) (Logger, error) {
	if cfg == nil {
		return newDefault(), nil
	}
	console, err := consoleAppender(cfg.Output)
	if err != nil {
		return nil, err
	}
	out := NewMultiWriter(console)
	if cfg.File.Enabled {
		file, err := fileAppender(cfg.File)
		if err != nil {
			return nil, err
		}
		out.Add(file)
	}
	return newLogrus(cfg, out)
}

func newLogrus(cfg *LoggerConfig, out io.Writer) (Logger, error) {
	l := logrus.New()
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	timeLayout := cfg.Time
	if timeLayout == "" {
		timeLayout = DefaultTime
	}
	l.SetFormatter(&formatter{
		pattern: pattern,
		time:    timeLayout,
	})

	levelName := cfg.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)
	l.SetReportCaller(cfg.Caller)
	l.SetOutput(out)

	return &logrusAdapter{
		entry: logrus.NewEntry(l),
	}, nil
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
