// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var logrusLevels = map[LogLevel]logrus.Level{
	LevelError: logrus.ErrorLevel,
	LevelWarn:  logrus.WarnLevel,
	LevelInfo:  logrus.InfoLevel,
	LevelDebug: logrus.DebugLevel,
	LevelTrace: logrus.TraceLevel,
}

// NewLogrus builds a text logrus logger writing to stderr at the given level
func NewLogrus(l LogLevel) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	lg.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if lvl, ok := logrusLevels[l]; ok {
		lg.SetLevel(lvl)
	}
	return lg
}

// NewLogrusLogger adapts a logrus logger to the Logger facade
func NewLogrusLogger(lg *logrus.Logger) Logger {
	return Logger{
		Tracef: lg.Tracef,
		Trace: func(format string) {
			lg.Trace(format)
		},
		Infof:  lg.Infof,
		Debugf: lg.Debugf,
		Warnf: func(format string, args ...interface{}) error {
			lg.Warnf(format, args...)
			return fmt.Errorf(format, args...)
		},
		Errorf: func(format string, args ...interface{}) error {
			lg.Errorf(format, args...)
			return fmt.Errorf(format, args...)
		},
		TraceFunc: func(logFunc func() string) {
			if lg.IsLevelEnabled(logrus.TraceLevel) {
				lg.Trace(logFunc())
			}
		},
	}
}
