// Package logging sets up the two loggers the CLI uses: a plain stdout
// logger for user-facing summaries and stats dumps, and a structured stderr
// logger for per-file failures, backed by github.com/sirupsen/logrus so
// per-file errors carry structured fields (path, kind) instead of free-form
// strings.
package logging

import (
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dircrypt/internal/errkind"
)

// Stdout is the destination for user-facing output: the stats dump and the
// final summary line. It is deliberately plain text, not structured JSON,
// since it is a human-facing contract, not a log stream.
var Stdout = logrus.New()

// Stderr carries structured per-file failure records.
var Stderr = logrus.New()

// JobID correlates every log line from one run, so concurrent runs'
// interleaved stderr output can still be told apart by an operator.
var JobID = uuid.NewString()

func init() {
	Stdout.SetOutput(os.Stdout)
	Stdout.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})

	Stderr.SetOutput(os.Stderr)
	Stderr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// FileError logs a per-file failure with its path and error kind. Per-file
// errors don't fail the job unless no file is processed at all.
func FileError(path string, err error) {
	entry := Stderr.WithField("job", JobID).WithField("path", path)

	var tagged *errkind.Tagged
	if e, ok := err.(*errkind.Tagged); ok {
		tagged = e
	}
	if tagged != nil {
		entry = entry.WithField("kind", tagged.Kind.String())
	}
	entry.Error(err)
}

// TempFileLeftBehind warns that a failed transform left its temp file on
// disk under tmpPath. The design leaves cleanup to the operator rather than
// unlinking automatically.
func TempFileLeftBehind(tmpPath string) {
	Stderr.WithField("job", JobID).WithField("path", tmpPath).Warn("temp file left on disk after failed transform")
}
