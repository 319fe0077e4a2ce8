package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger.
var Log = logrus.New()

// InitLogger configures level and output format of Log.
func InitLogger(level, format string) {
	Log.SetOutput(os.Stdout)

	if format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Log.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}
