// Package logging holds the logger used by the sink packages. Nothing is
// logged until a logger is set with SetLogging.
package logging

import "sync"

// LoggingInterface needs to be implemented, if the internal logs should be printed
type LoggingInterface interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// NoLogging is an empty implementation of Logging which does nothing.
type NoLogging struct{}

func (l *NoLogging) Trace(args ...interface{})                 {}
func (l *NoLogging) Tracef(format string, args ...interface{}) {}
func (l *NoLogging) Debug(args ...interface{})                 {}
func (l *NoLogging) Debugf(format string, args ...interface{}) {}
func (l *NoLogging) Info(args ...interface{})                  {}
func (l *NoLogging) Infof(format string, args ...interface{})  {}
func (l *NoLogging) Error(args ...interface{})                 {}
func (l *NoLogging) Errorf(format string, args ...interface{}) {}

var log LoggingInterface = &NoLogging{}
var mux sync.Mutex

// SetLogging sets a custom logging implementation. Passing nil is ignored.
func SetLogging(logger LoggingInterface) {
	if logger == nil {
		return
	}
	mux.Lock()
	defer mux.Unlock()

	log = logger
}

// Log returns the current logger.
func Log() LoggingInterface {
	mux.Lock()
	defer mux.Unlock()

	return log
}
