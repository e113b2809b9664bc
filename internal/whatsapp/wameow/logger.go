package wameow

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogLogger はwhatsmeowのロガーをslogに橋渡しする。
type slogLogger struct {
	logger *slog.Logger
}

var _ waLog.Logger = (*slogLogger)(nil)

func newSlogLogger(logger *slog.Logger, module string) *slogLogger {
	return &slogLogger{logger: logger.With(slog.String("module", module))}
}

func (l *slogLogger) Errorf(msg string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l *slogLogger) Warnf(msg string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l *slogLogger) Infof(msg string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(msg, args...))
}

func (l *slogLogger) Debugf(msg string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

func (l *slogLogger) Sub(module string) waLog.Logger {
	return &slogLogger{logger: l.logger.With(slog.String("submodule", module))}
}
