// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package log

import (
	"fmt"
	"log"
	"sync/atomic"
)

// LogLevel orders log output from least to most verbose
type LogLevel int

const (
	LevelError LogLevel = iota + 1
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[string]LogLevel{
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelTrace,
}

func (l LogLevel) String() string {
	for name, lvl := range levelNames {
		if lvl == l {
			return name
		}
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLogLevel converts a lowercase level name into a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	if lvl, ok := levelNames[s]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("invalid log level %q (want error, warn, info, debug or trace)", s)
}

var (
	enabled atomic.Bool
	level   atomic.Int32
)

func init() {
	enabled.Store(true)
	level.Store(int32(LevelInfo))
}

// SetVerbose switches the default logger between info and debug output
func SetVerbose(v bool) {
	if v {
		SetLogLevel(LevelDebug)
	} else {
		SetLogLevel(LevelInfo)
	}
}

// SetLogLevel sets the most verbose level the default logger emits
func SetLogLevel(l LogLevel) {
	level.Store(int32(l))
}

// EnabledLogging turns the default logger on or off
func EnabledLogging(v bool) {
	enabled.Store(v)
}

func shouldLog(l LogLevel) bool {
	return enabled.Load() && LogLevel(level.Load()) >= l
}

type Logger struct {
	Tracef    func(format string, args ...interface{})
	Trace     func(format string)
	Infof     func(format string, args ...interface{})
	Debugf    func(format string, args ...interface{})
	Warnf     func(format string, args ...interface{}) error
	Errorf    func(format string, args ...interface{}) error
	TraceFunc func(func() string)
}

var logger = DefaultLogger()

// DefaultLogger returns the stdlib-backed logger used until SetLogger is called
func DefaultLogger() Logger {
	return Logger{
		Tracef:    defaultTracef,
		Trace:     defaultTrace,
		Infof:     defaultInfof,
		Debugf:    defaultDebugf,
		Warnf:     defaultWarnf,
		Errorf:    defaultErrorf,
		TraceFunc: defaultTraceFunc,
	}
}

func SetLogger(l Logger) {
	logger = l
}

func Tracef(format string, args ...interface{}) {
	if logger.Tracef != nil {
		logger.Tracef(format, args...)
	}
}

func Trace(format string, args ...interface{}) {
	if logger.Trace != nil {
		logger.Trace(format)
	}
}

func Infof(format string, args ...interface{}) {
	if logger.Infof != nil {
		logger.Infof(format, args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if logger.Debugf != nil {
		logger.Debugf(format, args...)
	}
}

func Warnf(format string, args ...interface{}) error {
	if logger.Warnf != nil {
		return logger.Warnf(format, args...)
	}
	return nil
}

func Errorf(format string, args ...interface{}) error {
	if logger.Errorf != nil {
		return logger.Errorf(format, args...)
	}
	return nil
}

func TraceFunc(logFunc func() string) {
	if logger.TraceFunc != nil {
		logger.TraceFunc(logFunc)
	}
}

var (
	defaultTracef = func(format string, args ...interface{}) {
		if shouldLog(LevelTrace) {
			log.Printf("[TRACE] "+format, args...)
		}
	}

	defaultTrace = func(format string) {
		if shouldLog(LevelTrace) {
			log.Print("[TRACE] " + format)
		}
	}

	defaultInfof = func(format string, args ...interface{}) {
		if shouldLog(LevelInfo) {
			log.Printf("[INFO] "+format, args...)
		}
	}

	defaultDebugf = func(format string, args ...interface{}) {
		if shouldLog(LevelDebug) {
			log.Printf("[DEBUG] "+format, args...)
		}
	}

	defaultErrorf = func(format string, args ...interface{}) error {
		if shouldLog(LevelError) {
			log.Printf("[ERROR] "+format, args...)
		}
		return fmt.Errorf(format, args...)
	}

	defaultWarnf = func(format string, args ...interface{}) error {
		if shouldLog(LevelWarn) {
			log.Printf("[WARN] "+format, args...)
		}
		return fmt.Errorf(format, args...)
	}

	defaultTraceFunc = func(logFunc func() string) {
		if shouldLog(LevelTrace) {
			log.Print("[TRACEFUNC] " + logFunc())
		}
	}
)
