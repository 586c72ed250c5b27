// Package log sets up the pipeline's loggers: a package-level
// logrus.FieldLogger per component, JSON-formatted for file/pipe
// output, with a context carrier for request-scoped fields.
package log

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// Pipeline is the default logger used by every stage unless
// overridden by Configure. Component loggers (Reader, Biller, and so
// on) are derived from it with WithField("stage", ...).
var Pipeline logrus.FieldLogger = New()

// New builds a fresh logrus.Logger writing JSON to stderr, matching
// the formatter choice in bcdaworker/main.go's init().
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stderr)
	return l
}

// Configure rebuilds Pipeline with the given output and level. When
// pretty is true (interactive runs), reports are written through
// go-colorable so ANSI color survives on Windows terminals, and the
// formatter switches to logrus's TextFormatter with forced color.
func Configure(out io.Writer, level logrus.Level, pretty bool) {
	l := logrus.New()
	l.SetLevel(level)
	if pretty {
		l.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true})
		l.SetOutput(colorable.NewColorable(toFile(out)))
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetOutput(out)
	}
	Pipeline = l
}

// toFile best-efforts a colorable-compatible writer; colorable only
// special-cases *os.File, everything else passes through untouched.
func toFile(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return os.Stdout
}

// For derives a component-scoped logger, e.g. log.For("biller").
func For(stage string) logrus.FieldLogger {
	return Pipeline.WithField("stage", stage)
}

type logFieldsCtxKeyType string

const logFieldsCtxKey logFieldsCtxKeyType = "logFields"

// WithFields stashes structured fields (claim_id, payer_id, ...) on a
// context so nested calls can recover them without threading a
// logger explicitly, mirroring bcdaworker/log's WithLogFields.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(ctx, logFieldsCtxKey, fields)
}

// FieldsFrom recovers fields stashed by WithFields, or nil.
func FieldsFrom(ctx context.Context) logrus.Fields {
	fields, _ := ctx.Value(logFieldsCtxKey).(logrus.Fields)
	return fields
}
