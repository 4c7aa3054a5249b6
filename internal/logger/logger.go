// Package logger initializes process-wide structured logging on logrus.
// Components import logrus as `log` and prefix messages with their component
// tag, e.g. log.Infof("[engine] ...").
package logger

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures the shared logrus logger for the given service.
// format is "json" or "text"; level is one of trace/debug/info/warn/error.
// Returns an entry carrying the service field for callers that want it.
func Init(service, format, level string) *log.Entry {
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stdout)

	return log.WithField("service", service)
}
