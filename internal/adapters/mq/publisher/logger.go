package publisher

import (
	"context"
	"sort"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// loggerAdapter routes watermill logs through the service logger.
type loggerAdapter struct {
	log logger.Logger
}

// NewLoggerAdapter adapts log to watermill.LoggerAdapter. Trace is logged at debug.
func NewLoggerAdapter(log logger.Logger) watermill.LoggerAdapter {
	if log == nil {
		log = logger.Nop()
	}
	return &loggerAdapter{log: log}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(context.Background(), msg, append(convert(fields), logger.Error(err))...)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(context.Background(), msg, convert(fields)...)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, convert(fields)...)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, convert(fields)...)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{log: a.log.With(convert(fields)...)}
}

func convert(fields watermill.LogFields) []logger.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]logger.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, logger.Any(k, fields[k]))
	}
	return out
}
