package http2

import "github.com/sirupsen/logrus"

// Logger is the diagnostic-trace sink a Connection writes to: stream
// destruction, connection close reasons, rejected frames. It generalizes
// the teacher's bespoke `fasthttp.Logger` (a bare `Printf` interface) into
// something a logrus.Logger or logrus.Entry already satisfies, since
// logrus is the structured-logging choice the wider example pack (the
// docker-compose dependency set) reaches for.
type Logger interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

// discardLogger is the default when Options.Logger is nil: every call
// returns a *logrus.Entry wired to a Logger whose output is /dev/null, so
// callers never need a nil check.
type discardLogger struct{}

func (discardLogger) WithFields(fields logrus.Fields) *logrus.Entry {
	return discardEntry
}

var discardEntry = func() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return logrus.NewEntry(l)
}()

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
