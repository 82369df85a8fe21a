// Package logging holds the process-wide logger used by the compiler and
// zerocopy packages.
//
// Nothing is logged unless the host asks for it: until Init or SetLogger is
// called, the package logger discards all output. Libraries should not
// write to stderr on their own.
package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu       sync.RWMutex
	logger   logrus.FieldLogger = newDiscardLogger()
	initOnce sync.Once
)

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Init installs l as the process-wide logger. It is meant to be called once
// by the host during startup; only the first call has any effect, and it
// reports whether this call was the one that took effect. A nil logger
// keeps logging silenced.
func Init(l logrus.FieldLogger) bool {
	installed := false
	initOnce.Do(func() {
		if l != nil {
			SetLogger(l)
		}
		installed = true
	})
	return installed
}

// SetLogger replaces the process-wide logger unconditionally. Passing nil
// restores the silenced default. Unlike Init, it may be called any number
// of times, which is mostly useful in tests.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = newDiscardLogger()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Logger returns the current process-wide logger. It never returns nil.
func Logger() logrus.FieldLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Or returns l if it is non-nil and the process-wide logger otherwise.
// Components that accept an optional logger use it to pick a destination.
func Or(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	return Logger()
}
