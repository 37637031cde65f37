package journal

import (
	"io"

	"github.com/sirupsen/logrus"
)

// discardLogger is used by callers (mainly tests) that want a Journal
// without any log output.
func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
