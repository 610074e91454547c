package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwrk-planet/plan-chat/pkg/logger"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectEnv(t *testing.T) {
	t.Setenv("PLANCHAT_ENV", "")
	t.Setenv("APP_ENV", "")
	if got := logger.DetectEnv(); got != logger.EnvDev {
		t.Fatalf("default should be dev, got %q", got)
	}

	t.Setenv("APP_ENV", "staging")
	if got := logger.DetectEnv(); got != logger.EnvStage {
		t.Fatalf("expected stage, got %q", got)
	}

	t.Setenv("APP_ENV", "production")
	if got := logger.DetectEnv(); got != logger.EnvProd {
		t.Fatalf("expected prod, got %q", got)
	}

	t.Setenv("PLANCHAT_ENV", "preprod")
	if got := logger.DetectEnv(); got != logger.EnvStage {
		t.Fatalf("PLANCHAT_ENV should win, got %q", got)
	}
}

func TestAttrHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := logger.InitWriter(&buf, logger.Config{Env: logger.EnvProd, Backend: logger.BackendStd})
	log.Info("ws.join", logger.PlanID("p1"), logger.UserID("u1"))

	out := buf.String()
	if !strings.Contains(out, "plan_id=p1") || !strings.Contains(out, "user_id=u1") {
		t.Fatalf("missing attrs: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := logger.ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.Config{
		Service: "demo",
		Version: "v0.0.1",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
	})
	slog.Info("Hello world")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	if !strings.Contains(out, "Hello world") {
		t.Fatalf("message missing: %s", out)
	}
	if !strings.Contains(out, "service=demo") || !strings.Contains(out, "env=dev") {
		t.Fatalf("common attrs missing: %s", out)
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})
	slog.Info("booted", slog.String("k", "v"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON line, got %s, err=%v", buf.String(), err)
	}
	if m["msg"] != "booted" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "demo" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("attrs missing: %v", m)
	}
	if m["level"] != "info" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["k"] != "v" {
		t.Fatalf("custom field missing: %v", m["k"])
	}
}

func TestZap_SamplingOnlyInProd(t *testing.T) {
	count := func(env logger.Env) int {
		var buf bytes.Buffer
		logger.InitWriter(&buf, logger.Config{
			Env:              env,
			Backend:          logger.BackendZap,
			SampleInitial:    1,
			SampleThereafter: 1000,
		})
		for i := 0; i < 20; i++ {
			slog.Info("same message")
		}
		return strings.Count(buf.String(), "same message")
	}

	if got := count(logger.EnvStage); got != 20 {
		t.Fatalf("stage should not sample, got %d lines", got)
	}
	if got := count(logger.EnvProd); got >= 20 {
		t.Fatalf("prod should sample, got %d lines", got)
	}
}

func TestFromContext_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.Config{
		Service:          "demo",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.FromContext(ctx).InfoContext(ctx, "with trace")
	span.End()

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON, got: %s, err=%v", buf.String(), err)
	}
	if m["trace_id"] == nil || m["span_id"] == nil {
		t.Fatalf("trace_id/span_id missing in log: %v", m)
	}
}

func TestFromContext_PrefersScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logger.InitWriter(&buf, logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd})

	ctx := logger.WithContext(context.Background(), base.With("req_id", "abc"))
	logger.FromContext(ctx).Info("scoped")

	if !strings.Contains(buf.String(), "req_id=abc") {
		t.Fatalf("scoped attrs missing: %s", buf.String())
	}
}
