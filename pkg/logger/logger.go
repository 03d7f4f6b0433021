package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Logger
}

// New builds a logger writing to out. Colors are only forced for stdout.
func New(out io.Writer, verbose bool) *Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   out == os.Stdout,
	})

	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Logger: log}
}

// Discard returns a logger that drops everything. Used by tests and by
// callers that pass no logger.
func Discard() *Logger {
	return New(io.Discard, false)
}

// ForStatement returns an entry annotated with a SQL statement and its args.
func (l *Logger) ForStatement(sql string, args []any) *logrus.Entry {
	entry := l.WithField("sql", sql)
	if len(args) > 0 {
		entry = entry.WithField("args", args)
	}
	return entry
}
