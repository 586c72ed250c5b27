// Package reader implements the Reader stage: it reads claim records
// from a line-delimited JSON source and emits them onto the ingest
// stream in file order, closing the stream at end-of-input.
package reader

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dimchansky/utfbom"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/CMSgov/claimflow/internal/claims"
	"github.com/CMSgov/claimflow/internal/metrics"
	"github.com/CMSgov/claimflow/internal/wire"
)

// maxLineSize bounds a single claim record; generous for the
// service-line fan-out a real claim can carry.
const maxLineSize = 1 << 20

// Reader reads claims from path and emits them on its Out channel.
type Reader struct {
	Path string
	Out  chan<- claims.Claim

	Log     logrus.FieldLogger
	Metrics *metrics.Registry
}

// Run opens Path, strips a leading BOM if present, and scans it line
// by line. Parse failures on individual lines are logged and skipped
// the scan is not torn down. Run always closes Out
// before returning, cascading shutdown to downstream stages. A
// non-EOF I/O error on the source is returned to the caller, who is
// expected to treat it as fatal; a context cancellation stops the
// scan early without error.
func (r *Reader) Run(ctx context.Context) error {
	defer close(r.Out)

	f, err := os.Open(r.Path)
	if err != nil {
		return errors.Wrapf(err, "opening input file %s", r.Path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(utfbom.SkipOnly(bufio.NewReader(f)))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(trimSpace(line)) == 0 {
			continue
		}

		claim, perr := wire.ParseLine(line)
		if perr != nil {
			r.logger().WithFields(logrus.Fields{"line": lineNo, "error": perr}).
				Warn("reader: skipping unparseable claim record")
			continue
		}

		select {
		case r.Out <- claim:
			if r.Metrics != nil {
				r.Metrics.ClaimsIngested.Inc()
			}
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "reading input file")
	}
	return nil
}

func (r *Reader) logger() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
