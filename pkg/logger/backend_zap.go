package logger

import (
	"io"
	"log/slog"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultSampleInitial    = 100
	defaultSampleThereafter = 10
)

// newZapHandler writes JSON through zap. Prod output is sampled per
// message per second; stage keeps everything.
func newZapHandler(w io.Writer, cfg Config) slog.Handler {
	lvl := cfg.effectiveLevel()

	var core zapcore.Core = zapcore.NewCore(
		zapcore.NewJSONEncoder(zapEncoderConfig(cfg)),
		zapcore.AddSync(w),
		zapLevel(lvl),
	)
	if cfg.Env == EnvProd {
		core = zapcore.NewSamplerWithOptions(core, time.Second,
			orDefault(cfg.SampleInitial, defaultSampleInitial),
			orDefault(cfg.SampleThereafter, defaultSampleThereafter))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return slogzap.Option{Level: lvl, Logger: zap.New(core, opts...)}.NewZapHandler()
}

func zapEncoderConfig(cfg Config) zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "msg"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if !cfg.AddSource {
		enc.CallerKey = zapcore.OmitKey
	}
	return enc
}

func zapLevel(lvl slog.Level) zapcore.Level {
	switch {
	case lvl < slog.LevelInfo:
		return zapcore.DebugLevel
	case lvl < slog.LevelWarn:
		return zapcore.InfoLevel
	case lvl < slog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
