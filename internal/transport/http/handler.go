package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/postgres"
	"github.com/cwrk-planet/plan-chat/internal/service"
	httpmw "github.com/cwrk-planet/plan-chat/internal/transport/http/middleware"
	"github.com/cwrk-planet/plan-chat/pkg/httputil"
	"github.com/cwrk-planet/plan-chat/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type Authorizer interface {
	Authorize(ctx context.Context, planID, userID string) (domain.Role, error)
}

type PresenceLister interface {
	Occupants(planID string) []domain.Identity
}

type Handler struct {
	history    *service.HistoryService
	membership Authorizer
	presence   PresenceLister
}

func NewHandler(history *service.HistoryService, membership Authorizer, presence PresenceLister) *Handler {
	return &Handler{history: history, membership: membership, presence: presence}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := ToHTTP(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op, logger.Err(err))
	}
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	httputil.Error(r.Context(), w, status, code, msg)
}

// GET /plans/{id}/messages?after=&limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := httpmw.IdentityFromCtx(r.Context())
	planID := chi.URLParam(r, "id")

	cur, err := postgres.DecodeCursor(r.URL.Query().Get("after"))
	if err != nil {
		h.fail(w, r, "handler.GetHistory.cursor", err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, r, "handler.GetHistory.limit", err)
		return
	}

	var after *domain.Position
	if cur != nil {
		after = cur.Position()
	}
	msgs, err := h.history.GetHistoryAfter(r.Context(), planID, id, after, limit)
	if err != nil {
		h.fail(w, r, "handler.GetHistory", err)
		return
	}

	resp := HistoryResponse{Items: lo.Map(msgs, toMessageItem), NextCursor: postgres.NextCursor(msgs)}
	if resp.NextCursor == "" {
		// nothing new: hand the caller's cursor back so polling can continue
		resp.NextCursor = r.URL.Query().Get("after")
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// GET /plans/{id}/presence
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	id, _ := httpmw.IdentityFromCtx(r.Context())
	planID := chi.URLParam(r, "id")

	if _, err := h.membership.Authorize(r.Context(), planID, id.UserID); err != nil {
		h.fail(w, r, "handler.GetPresence", err)
		return
	}
	httputil.JSON(w, http.StatusOK, PresenceResponse{Items: lo.Map(h.presence.Occupants(planID), toPresenceItem)})
}

// parseLimit accepts an empty value (server default) or a non-negative integer.
func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidArgument)
	}
	return n, nil
}
