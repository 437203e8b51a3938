package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	DebugEnabled = false

	logFile *lumberjack.Logger
)

// InitLogging sets up logging based on configuration. An empty path or
// "console" keeps output on stderr.
func InitLogging(debugMode bool, logPath string) error {
	DebugEnabled = debugMode

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	level := log.InfoLevel
	if DebugEnabled {
		level = log.DebugLevel
	}

	log.SetLevel(level)

	if logPath == "" || logPath == "console" {
		log.SetOutput(os.Stderr)
		return nil
	}

	err := os.MkdirAll(filepath.Dir(logPath), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile = &lumberjack.Logger{
		Filename:   filepath.ToSlash(logPath),
		MaxSize:    5, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.Writer(logFile))

	return nil
}

// Close closes the log file if open.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// WithUpdate returns an entry tagged with an update id.
func WithUpdate(id string) *log.Entry {
	return log.WithField("update", id)
}

func Infof(format string, v ...interface{}) {
	log.Infof(format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	log.Errorf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	log.Warnf(format, v...)
}
