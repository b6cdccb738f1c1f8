package app

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"studentmonitor/internal/config"
)

// ConfigureLogging sets standard logger flags and, when cfg.File is set,
// mirrors output into a size-rotated file. The returned closer releases
// the file and is a no-op otherwise.
func ConfigureLogging(cfg *config.LoggingConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if cfg == nil || cfg.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	log.Printf("Logging to %s (max %d MB, %d backups, %d days)", cfg.File, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)

	return rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
