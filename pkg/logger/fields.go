package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

var envAliases = map[string]Env{
	"prod":           EnvProd,
	"production":     EnvProd,
	"stage":          EnvStage,
	"staging":        EnvStage,
	"preprod":        EnvStage,
	"pre-production": EnvStage,
}

// ParseEnv normalizes an environment name; unknown values mean dev.
func ParseEnv(s string) Env {
	if e, ok := envAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return e
	}
	return EnvDev
}

// DetectEnv reads PLANCHAT_ENV, then APP_ENV.
func DetectEnv() Env {
	if v := os.Getenv("PLANCHAT_ENV"); v != "" {
		return ParseEnv(v)
	}
	return ParseEnv(os.Getenv("APP_ENV"))
}

// Attribute keys shared by the gateway components.
const (
	KeyPlanID = "plan_id"
	KeyUserID = "user_id"
	KeyErr    = "err"
)

func PlanID(id string) slog.Attr { return slog.String(KeyPlanID, id) }
func UserID(id string) slog.Attr { return slog.String(KeyUserID, id) }
func Err(err error) slog.Attr    { return slog.Any(KeyErr, err) }

// AttrsFromCtx returns trace_id and span_id of the active span, if any.
func AttrsFromCtx(ctx context.Context) []slog.Attr {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}

func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	hn, err := os.Hostname()
	if err != nil || hn == "" {
		hn = "plan-chat"
	}
	return hn + "-" + uuid.NewString()[:8]
}

func commonAttrs(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}
