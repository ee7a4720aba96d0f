package ipcam

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from settings
func NewLogger(ls LogSettings, out io.Writer) (*log.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	logger := log.New()
	logger.SetOutput(out)

	level := ls.Level
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", ls.Level)
	}
	logger.SetLevel(lvl)

	switch ls.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("unknown log format %q", ls.Format)
	}
	return logger, nil
}

func moduleLogger(entry *log.Entry, module string) *log.Entry {
	if entry == nil {
		discard := log.New()
		discard.SetOutput(io.Discard)
		entry = log.NewEntry(discard)
	}
	return entry.WithField("module", module)
}
