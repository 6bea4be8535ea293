package main

import (
	"fmt"
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log levels selected with -v.
const (
	levelInfo = iota
	levelDebug
	levelTrace
)

func logWriter(logfile string, stderr io.Writer) io.Writer {
	if logfile == "" {
		return stderr
	}
	return &lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
	}
}

// stdLogger implements logging.LoggingInterface on top of a log.Logger.
type stdLogger struct {
	l     *log.Logger
	level int
}

func newLogger(w io.Writer, level int) *stdLogger {
	return &stdLogger{
		l:     log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		level: level,
	}
}

func (s *stdLogger) print(level int, prefix string, args ...interface{}) {
	if level > s.level {
		return
	}
	s.l.Print(prefix + fmt.Sprint(args...))
}

func (s *stdLogger) printf(level int, prefix, format string, args ...interface{}) {
	if level > s.level {
		return
	}
	s.l.Printf(prefix+format, args...)
}

func (s *stdLogger) Trace(args ...interface{}) { s.print(levelTrace, "TRACE ", args...) }
func (s *stdLogger) Tracef(format string, args ...interface{}) {
	s.printf(levelTrace, "TRACE ", format, args...)
}
func (s *stdLogger) Debug(args ...interface{}) { s.print(levelDebug, "DEBUG ", args...) }
func (s *stdLogger) Debugf(format string, args ...interface{}) {
	s.printf(levelDebug, "DEBUG ", format, args...)
}
func (s *stdLogger) Info(args ...interface{}) { s.print(levelInfo, "INFO ", args...) }
func (s *stdLogger) Infof(format string, args ...interface{}) {
	s.printf(levelInfo, "INFO ", format, args...)
}
func (s *stdLogger) Error(args ...interface{}) { s.print(levelInfo, "ERROR ", args...) }
func (s *stdLogger) Errorf(format string, args ...interface{}) {
	s.printf(levelInfo, "ERROR ", format, args...)
}
