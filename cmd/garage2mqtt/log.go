package main

import (
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type pahoLogger struct {
	level logrus.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	logrus.StandardLogger().Logln(l.level, append([]interface{}{"paho:"}, v...)...)
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	logrus.StandardLogger().Logf(l.level, "paho: "+format, v...)
}

func routePahoLogs() {
	paho.ERROR = pahoLogger{logrus.ErrorLevel}
	paho.CRITICAL = pahoLogger{logrus.ErrorLevel}
	paho.WARN = pahoLogger{logrus.WarnLevel}
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		paho.DEBUG = pahoLogger{logrus.TraceLevel}
	}
}
