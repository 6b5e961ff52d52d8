// Package ui holds the terminal styling and log setup shared by the docvec
// commands.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Environment variables read before any config file is loaded.
const (
	EnvLogLevel  = "DOCVEC_LOG_LEVEL"  // debug, info, warn, error
	EnvLogFormat = "DOCVEC_LOG_FORMAT" // text, json, logfmt
)

// InitLogger configures the default charm logger on stderr so stdout stays
// clean for --json output.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
	log.SetLevel(log.InfoLevel)

	if v := os.Getenv(EnvLogLevel); v != "" {
		if lvl, err := log.ParseLevel(v); err == nil {
			log.SetLevel(lvl)
		} else {
			log.Warn("Ignoring invalid log level", "env", EnvLogLevel, "value", v)
		}
	}

	switch strings.ToLower(os.Getenv(EnvLogFormat)) {
	case "json":
		log.SetFormatter(log.JSONFormatter)
		log.SetReportTimestamp(true)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
		log.SetReportTimestamp(true)
	}
}

// SetDebug switches to debug level. Disabling it leaves an explicit
// DOCVEC_LOG_LEVEL in place.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	}
}
