package logutils

import "github.com/sirupsen/logrus"

var log = logrus.StandardLogger()

// SetLoggerLevel sets the standard logger level, falling back to info
// when level cannot be parsed.
func SetLoggerLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

// SetJSONFormatter switches the standard logger to JSON output, which is
// what the log shipper expects when running in a container.
func SetJSONFormatter(enabled bool) {
	if enabled {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
}
