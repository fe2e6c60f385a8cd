package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// dbLogger routes badger's internal logging into the store's zap logger.
// Badger is chatty at info level (compaction, value log rotation), so
// info is demoted to debug; warnings and errors keep their severity.
type dbLogger struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*dbLogger)(nil)

func (l *dbLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(render(format, args...))
}

func (l *dbLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(render(format, args...))
}

func (l *dbLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(render(format, args...))
}

func (l *dbLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(render(format, args...))
}

// render formats the message and strips badger's trailing newline so the
// entries compose with zap's own line handling.
func render(format string, args ...interface{}) string {
	return strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
}
