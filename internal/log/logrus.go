package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = &logrusLogger{log: logrus.NewEntry(logrus.New())}

type logrusLogger struct {
	log *logrus.Entry
}

// Config controls the global logger.
type Config struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"` // "text" or "json"
	File   FileConfig `mapstructure:"file"`
}

// FileConfig enables rotated file output in addition to stdout.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Init configures the global logger. Safe to call once at boot, before any
// packets flow.
func Init(cfg Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	writers := []io.Writer{os.Stdout}
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return fmt.Errorf("file output requires 'path' field")
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))

	logger = &logrusLogger{log: logrus.NewEntry(l)}
	return nil
}

// GetLogger returns the global logger.
func GetLogger() Logger {
	return logger
}

func (l *logrusLogger) Debug(args ...interface{}) { l.log.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

func (l *logrusLogger) Info(args ...interface{}) { l.log.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

func (l *logrusLogger) Warn(args ...interface{}) { l.log.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

func (l *logrusLogger) Error(args ...interface{}) { l.log.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

func (l *logrusLogger) Fatal(args ...interface{}) { l.log.Fatal(args...) }
func (l *logrusLogger) Fatalf(format string, args ...interface{}) {
	l.log.Fatalf(format, args...)
}

func (l *logrusLogger) WithField(field string, value interface{}) Logger {
	return &logrusLogger{log: l.log.WithField(field, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{log: l.log.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{log: l.log.WithError(err)}
}
