package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/plan-chat/pkg/logger"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// Error writes {"error": {"code", "message"}}.
func Error(ctx context.Context, w http.ResponseWriter, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("http.error_response", slog.Int("status", status), slog.String("message", msg))
	}
	JSON(w, status, envelope{
		"error": envelope{
			"code":    code,
			"message": msg,
		},
	})
}
