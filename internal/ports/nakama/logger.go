package nakama

import (
	"github.com/heroiclabs/nakama-common/runtime"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogger returns a zap logger that writes through the Nakama runtime
// logger, so app and rules logs land in the server's log stream.
func NewZapLogger(logger runtime.Logger) *zap.Logger {
	return zap.New(&runtimeCore{logger: logger, LevelEnabler: zapcore.DebugLevel})
}

type runtimeCore struct {
	zapcore.LevelEnabler
	logger runtime.Logger
	fields []zapcore.Field
}

func (c *runtimeCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &runtimeCore{LevelEnabler: c.LevelEnabler, logger: c.logger, fields: merged}
}

func (c *runtimeCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *runtimeCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	l := c.logger
	if len(enc.Fields) > 0 {
		l = l.WithFields(enc.Fields)
	}
	switch {
	case ent.Level >= zapcore.ErrorLevel:
		l.Error("%s", ent.Message)
	case ent.Level == zapcore.WarnLevel:
		l.Warn("%s", ent.Message)
	case ent.Level == zapcore.InfoLevel:
		l.Info("%s", ent.Message)
	default:
		l.Debug("%s", ent.Message)
	}
	return nil
}

func (c *runtimeCore) Sync() error { return nil }
