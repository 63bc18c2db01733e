package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is usable before Init so packages can log from tests without setup.
var Log = logrus.New()

func Init() {
	Log = logrus.New()
	Log.SetOutput(os.Stdout)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	Log.SetLevel(logLevel)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// ForTask returns an entry tagged with the identifiers every engine logs.
func ForTask(component string, taskID, moduleIndex int) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"component":    component,
		"task_id":      taskID,
		"module_index": moduleIndex,
	})
}
