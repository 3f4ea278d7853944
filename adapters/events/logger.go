package events

import (
	"github.com/ThreeDotsLabs/watermill"
	log "github.com/inconshreveable/log15"
)

// LoggerAdapter routes watermill logs to log15
type LoggerAdapter struct {
	log log.Logger
}

// NewLoggerAdapter wraps logger for use by watermill publishers
func NewLoggerAdapter(logger log.Logger) *LoggerAdapter {
	return &LoggerAdapter{log: logger}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error(msg, append(flatten(fields), "err", err)...)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.log.Info(msg, flatten(fields)...)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, flatten(fields)...)
}

// Trace has no log15 counterpart and is logged at debug level
func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, flatten(fields)...)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{log: l.log.New(flatten(fields)...)}
}

func flatten(fields watermill.LogFields) []interface{} {
	ctx := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		ctx = append(ctx, k, v)
	}
	return ctx
}
