package paho

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// levelLogger writes paho's log lines to logrus at a fixed level
type levelLogger struct {
	entry *log.Entry
	level log.Level
}

func (l levelLogger) Println(v ...interface{}) {
	l.entry.Logln(l.level, v...)
}

func (l levelLogger) Printf(format string, v ...interface{}) {
	l.entry.Logf(l.level, format, v...)
}

// RouteLogs sends the paho client library logs to the logger. Paho keeps
// its loggers in package variables, so this affects every Transport.
func RouteLogs(logger *log.Logger) {
	entry := logger.WithField("component", "paho")
	mqtt.CRITICAL = levelLogger{entry: entry, level: log.ErrorLevel}
	mqtt.ERROR = levelLogger{entry: entry, level: log.ErrorLevel}
	mqtt.WARN = levelLogger{entry: entry, level: log.WarnLevel}
	if logger.IsLevelEnabled(log.TraceLevel) {
		mqtt.DEBUG = levelLogger{entry: entry, level: log.TraceLevel}
	}
}
