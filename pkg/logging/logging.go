package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is the common shape of a service log record.
type Fields struct {
	Service    string
	OrderID    string
	EventID    string
	Step       string
	Status     string
	DurationMS int64
	Message    string
}

// New builds the JSON logger every binary writes to stdout with.
func New(service string, debug bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "timestamp"

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stdout), level)
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service", service)),
	)
}

// Log writes one record at info level, skipping empty fields.
func Log(logger *zap.Logger, f Fields) {
	logger.Info(f.Message, f.ZapFields()...)
}

func (f Fields) ZapFields() []zap.Field {
	out := make([]zap.Field, 0, 6)
	if f.Service != "" {
		out = append(out, zap.String("component", f.Service))
	}
	if f.OrderID != "" {
		out = append(out, zap.String("order_id", f.OrderID))
	}
	if f.EventID != "" {
		out = append(out, zap.String("event_id", f.EventID))
	}
	if f.Step != "" {
		out = append(out, zap.String("step", f.Step))
	}
	if f.Status != "" {
		out = append(out, zap.String("status", f.Status))
	}
	if f.DurationMS != 0 {
		out = append(out, zap.Int64("duration_ms", f.DurationMS))
	}
	return out
}
