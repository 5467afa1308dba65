package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the CLI logger. Output goes to stderr and, when a log
// file is configured, to a size-rotated file as well. The returned closer
// flushes the file.
func newLogger(c logConfig) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if c.File == "" {
		l.SetOutput(os.Stderr)
		return l, nopCloser{}, nil
	}
	file := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
	l.SetOutput(io.MultiWriter(os.Stderr, file))
	return l, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
