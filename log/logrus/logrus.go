package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/riakcache"
)

var _ riakcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every entry with component=riakcache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "riakcache")}
}

func (l LogrusLogger) Debug(msg string, f riakcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f riakcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f riakcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f riakcache.Fields) { l.with(f).Error(msg) }

// with routes an "err" field through WithError so hooks and formatters
// treat it as the entry's error.
func (l LogrusLogger) with(f riakcache.Fields) *logrus.Entry {
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			if _, ok := v.(error); ok {
				continue
			}
		}
		fields[k] = v
	}
	return e.WithFields(fields)
}
