// Package praeflog defines the narrow logging capability the rest of this
// repository depends on, plus a logrus-backed default implementation.
package praeflog

import (
	"os"

	"github.com/sirupsen/logrus"
	plog "github.com/prometheus/common/log"
)

// Logger is the capability every subsystem logs through: a small,
// level-keyed interface rather than a god object.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	// WithField scopes subsequent calls under a structured field, used to
	// tag log lines by subsystem (join, mod, commit, htm, router).
	WithField(key string, value interface{}) Logger
}

// Logrus is the default Logger, backed by github.com/sirupsen/logrus.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus creates a Logger writing structured lines to stderr.
func NewLogrus() *Logrus {
	l := logrus.New()
	l.Out = os.Stderr
	return &Logrus{entry: logrus.NewEntry(l)}
}

func (l *Logrus) Info(v ...interface{})                    { l.entry.Info(v...) }
func (l *Logrus) Infof(format string, v ...interface{})    { l.entry.Infof(format, v...) }
func (l *Logrus) Warn(v ...interface{})                     { l.entry.Warn(v...) }
func (l *Logrus) Warnf(format string, v ...interface{})    { l.entry.Warnf(format, v...) }
func (l *Logrus) Error(v ...interface{})                    { l.entry.Error(v...) }
func (l *Logrus) Errorf(format string, v ...interface{})   { l.entry.Errorf(format, v...) }
func (l *Logrus) Debug(v ...interface{})                    { l.entry.Debug(v...) }
func (l *Logrus) Debugf(format string, v ...interface{})   { l.entry.Debugf(format, v...) }

func (l *Logrus) WithField(key string, value interface{}) Logger {
	return &Logrus{entry: l.entry.WithField(key, value)}
}

// Bootstrap logs through prometheus/common/log, the fallback sink for the
// rare call site (startup, before a system.Config.Logger exists) that needs
// to log something before any Logger has been constructed.
func Bootstrap(msg string) { plog.Error(msg) }
