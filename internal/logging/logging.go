// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitalscope/vitalscope-business/internal/config"
)

// Setup applies the logging configuration: level, format and an optional
// rotated file sink alongside stderr.
func Setup(cfg config.LoggingConfig) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := log.InfoLevel
	if parsed, errParse := log.ParseLevel(cfg.Level); errParse == nil {
		level = parsed
	}
	if cfg.Debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
}
