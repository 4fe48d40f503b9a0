package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/audiolti/internal/lti"
	"github.com/hitoshi/audiolti/internal/middleware"
	"github.com/hitoshi/audiolti/internal/model"
)

// RosterClient は名簿サービスへの問い合わせインターフェース。*lti.Clientが満たす。
type RosterClient interface {
	GetMembers(ctx context.Context, identity *model.IdentityToken) (json.RawMessage, error)
}

// MembersHandler はコースの名簿を返すHTTPハンドラー。
type MembersHandler struct {
	roster RosterClient
}

// NewMembersHandler はMembersHandlerを生成する。
func NewMembersHandler(roster RosterClient) *MembersHandler {
	return &MembersHandler{roster: roster}
}

// ListMembers は名簿サービスのメンバーシップをそのまま返す。講師区分のみ。
// GET /api/members
func (h *MembersHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	identity, perm, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	if !perm.IsInstructor() {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("only instructors may view the roster"))
		return
	}
	if identity.PlatformContext == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidContextError())
		return
	}

	members, err := h.roster.GetMembers(r.Context(), identity)
	if errors.Is(err, lti.ErrNoRosterService) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("roster service is not available for this launch"))
		return
	}
	if err != nil {
		slog.Error("failed to fetch roster",
			slog.String("user_id", identity.Subject),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     "ROSTER_SERVICE_ERROR",
			Message:  "failed to fetch the course roster",
			Category: "system",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(members)
}
