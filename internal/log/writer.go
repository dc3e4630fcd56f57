package log

import (
	"bufio"
	"bytes"

	"github.com/charmbracelet/log"
)

// Writer adapts a charm logger to io.Writer so libraries which log through a
// plain writer, e.g. echo's internal logger, emit through our logging setup.
type Writer struct {
	Log   *log.Logger
	Level log.Level
}

func (l *Writer) Write(p []byte) (n int, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		l.Log.Log(l.Level, scanner.Text())
	}

	return len(p), nil
}
