package api

import (
	"net/http"

	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type joinRequestBody struct {
	Message string `json:"message" validate:"max=500"`
}

type joinByCodeBody struct {
	TeamCode string `json:"team_code" validate:"required,len=8"`
	Message  string `json:"message" validate:"max=500"`
}

func (b *joinRequestBody) Sanitize(clean func(string) string) {
	b.Message = clean(b.Message)
}

func (b *joinByCodeBody) Sanitize(clean func(string) string) {
	b.Message = clean(b.Message)
}

func (h *Handler) SubmitJoinRequest(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req joinRequestBody
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	created, err := h.requests.SubmitJoinRequest(e.Request().Context(), currentUserID(e), e.Param("id"), req.Message)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"message": "join request sent",
		"request": created,
	})
}

func (h *Handler) JoinByCode(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req joinByCodeBody
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	created, err := h.requests.SubmitJoinRequestByCode(e.Request().Context(), currentUserID(e), req.TeamCode, req.Message)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"message": "join request sent",
		"request": created,
	})
}

func (h *Handler) CancelJoinRequest(e echo.Context) error {
	if err := h.requests.CancelJoinRequest(e.Request().Context(), currentUserID(e), e.Param("requestId")); err != nil {
		return h.transportError(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) ApproveJoinRequest(e echo.Context) error {
	return h.resolveJoinRequest(e, model.DecisionApprove)
}

func (h *Handler) RejectJoinRequest(e echo.Context) error {
	return h.resolveJoinRequest(e, model.DecisionReject)
}

func (h *Handler) resolveJoinRequest(e echo.Context, decision model.Decision) error {
	l := logger.FromContext(e.Request().Context())

	teamID, requestID := e.Param("id"), e.Param("requestId")

	resolved, err := h.requests.ResolveJoinRequest(e.Request().Context(), currentUserID(e), teamID, requestID, decision)
	if err != nil {
		l.Warn("failed to resolve join request",
			zap.String("team_id", teamID),
			zap.String("request_id", requestID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, resolved)
}

func (h *Handler) ListTeamJoinRequests(e echo.Context) error {
	reqs, err := h.requests.ListTeamJoinRequests(e.Request().Context(), currentUserID(e), e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, reqs)
}

func (h *Handler) ListMyJoinRequests(e echo.Context) error {
	reqs, err := h.requests.ListMyJoinRequests(e.Request().Context(), currentUserID(e))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, reqs)
}

func (h *Handler) InviteUser(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var target model.InviteTarget
	if err := h.decodeRequest(e, &target); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	inv, err := h.invitations.InviteUser(e.Request().Context(), currentUserID(e), e.Param("id"), target)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"message":    "invitation sent",
		"invitation": inv,
	})
}

func (h *Handler) AcceptInvitation(e echo.Context) error {
	inv, err := h.invitations.AcceptInvitation(e.Request().Context(), currentUserID(e), e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, inv)
}

func (h *Handler) DeclineInvitation(e echo.Context) error {
	inv, err := h.invitations.DeclineInvitation(e.Request().Context(), currentUserID(e), e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, inv)
}

func (h *Handler) ListMyInvitations(e echo.Context) error {
	invs, err := h.invitations.ListMyInvitations(e.Request().Context(), currentUserID(e))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, invs)
}
