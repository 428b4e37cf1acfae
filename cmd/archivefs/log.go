package main

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSizeMB  = 50
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// setupLogging points the global logger at stderr and, when path is not
// empty, at a rotating log file as well. The returned closer flushes the
// log file.
func setupLogging(stderr io.Writer, debug bool, path string) io.Closer {
	// fix console colors on windows
	out := stderr
	if f, ok := stderr.(*os.File); ok {
		out = colorable.NewColorable(f)
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: out}}

	var closer io.Closer = nopCloser{}
	if path != "" {
		rolling := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		writers = append(writers, rolling)
		closer = rolling
	}
	log.Logger = log.Output(io.MultiWriter(writers...))

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
