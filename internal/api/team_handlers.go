package api

import (
	"net/http"

	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/service"
	"github.com/crackzone/teams/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func (h *Handler) ListTeams(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	filter := model.TeamFilter{
		Game:   e.QueryParam("game"),
		Search: e.QueryParam("search"),
	}
	err := echo.QueryParamsBinder(e).
		Int("limit", &filter.Limit).
		Int("offset", &filter.Offset).
		BindError()
	if err != nil {
		l.Warn("invalid paging", zap.Error(err))
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "limit and offset must be integers"))
	}

	teams, serr := h.team.ListTeams(e.Request().Context(), currentUserID(e), filter)
	if serr != nil {
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusOK, teams)
}

func (h *Handler) GetMyTeams(e echo.Context) error {
	teams, err := h.team.GetMyTeams(e.Request().Context(), currentUserID(e))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, teams)
}

func (h *Handler) GetTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	team, err := h.team.GetTeam(e.Request().Context(), currentUserID(e), teamID)
	if err != nil {
		l.Warn("failed to get team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	spec := &model.TeamSpec{}
	if err := h.decodeRequest(e, spec); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.CreateTeam(e.Request().Context(), currentUserID(e), spec)
	if err != nil {
		l.Error("failed to create team", zap.String("team_name", spec.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, team)
}

func (h *Handler) UpdateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	patch := &model.TeamPatch{}
	if err := h.decodeRequest(e, patch); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.UpdateTeam(e.Request().Context(), currentUserID(e), e.Param("id"), patch)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) DeleteTeam(e echo.Context) error {
	if err := h.team.DeleteTeam(e.Request().Context(), currentUserID(e), e.Param("id")); err != nil {
		return h.transportError(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) LeaveTeam(e echo.Context) error {
	if err := h.team.LeaveTeam(e.Request().Context(), currentUserID(e), e.Param("id")); err != nil {
		return h.transportError(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) RemoveMember(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, memberID := e.Param("id"), e.Param("memberId")

	if err := h.team.RemoveMember(e.Request().Context(), currentUserID(e), teamID, memberID); err != nil {
		l.Warn("failed to remove member",
			zap.String("team_id", teamID),
			zap.String("member_id", memberID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) TransferLeadership(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		UserID string `json:"user_id" validate:"required"`
	}
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.TransferLeadership(e.Request().Context(), currentUserID(e), e.Param("id"), req.UserID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}
