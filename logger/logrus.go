package logger

import "github.com/sirupsen/logrus"

// Logrus adapts a *logrus.Logger (or logrus.StandardLogger) to the Logger
// interface the rest of this module depends on.
type Logrus struct {
	log *logrus.Logger
}

// NewLogrus builds a Logrus adapter. Pass nil to use logrus.StandardLogger().
func NewLogrus(log *logrus.Logger) *Logrus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logrus{log: log}
}

func (l *Logrus) Debug(args ...interface{})   { l.log.Debug(args...) }
func (l *Logrus) Info(args ...interface{})    { l.log.Info(args...) }
func (l *Logrus) Warning(args ...interface{}) { l.log.Warn(args...) }
func (l *Logrus) Error(args ...interface{})   { l.log.Error(args...) }

func (l *Logrus) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
func (l *Logrus) Infof(format string, args ...interface{})    { l.log.Infof(format, args...) }
func (l *Logrus) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l *Logrus) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
