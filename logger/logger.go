// Package logger is the tiny logging shim referenced by samlsp and by
// the metadata provider's refresh path, backed by logrus.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Interface is satisfied by both *log.Logger and *logrus.Logger, so
// callers can pass either without this package forcing logrus on
// them.
type Interface interface {
	Printf(format string, v ...interface{})
}

type logrusAdapter struct {
	entry *logrus.Logger
}

func (l logrusAdapter) Printf(format string, v ...interface{}) {
	l.entry.Printf(format, v...)
}

// DefaultLogger is used by package saml whenever no logger has been
// supplied explicitly (e.g. during lazy metadata-refresh failures).
var DefaultLogger Interface = newDefault()

func newDefault() Interface {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return logrusAdapter{entry: l}
}

// SetDefault replaces DefaultLogger, e.g. so a host application can
// route these messages into its own structured logger.
func SetDefault(l Interface) {
	DefaultLogger = l
}
