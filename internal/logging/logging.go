package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	// Logger is the process-wide structured logger.
	Logger = newLogger(os.Stderr, false, false)

	// Verbose reports whether debug output was requested.
	Verbose bool
)

// Setup configures the structured logger. A nil writer means stderr.
func Setup(verbose, jsonOutput bool, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	Verbose = verbose
	Logger = newLogger(w, verbose, jsonOutput)
}

func newLogger(w io.Writer, verbose, jsonOutput bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)

	if jsonOutput {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: !verbose,
		})
	}

	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// fields turns alternating key/value arguments into logrus fields.
// A trailing key without a value is recorded under "!BADKEY".
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			f["!BADKEY"] = key
			break
		}
		f[key] = args[i+1]
	}
	return f
}

// Debug logs at debug level with key/value pairs.
func Debug(msg string, args ...any) {
	Logger.WithFields(fields(args)).Debug(msg)
}

// Info logs at info level with key/value pairs.
func Info(msg string, args ...any) {
	Logger.WithFields(fields(args)).Info(msg)
}

// Warn logs at warn level with key/value pairs.
func Warn(msg string, args ...any) {
	Logger.WithFields(fields(args)).Warn(msg)
}

// Error logs at error level with key/value pairs.
func Error(msg string, args ...any) {
	Logger.WithFields(fields(args)).Error(msg)
}

// With returns an entry carrying the given key/value pairs.
func With(args ...any) *logrus.Entry {
	return Logger.WithFields(fields(args))
}
