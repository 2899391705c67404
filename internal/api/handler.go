package api

import (
	"net/http"

	"github.com/crackzone/teams/internal/auth"
	"github.com/crackzone/teams/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Handler struct {
	team        *service.TeamService
	user        *service.UserService
	requests    *service.JoinRequestService
	invitations *service.InvitationService

	healthChecker HealthChecker

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithTeamService(team *service.TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithUserService(user *service.UserService) *Handler {
	h.user = user
	return h
}

func (h *Handler) WithJoinRequestService(requests *service.JoinRequestService) *Handler {
	h.requests = requests
	return h
}

func (h *Handler) WithInvitationService(invitations *service.InvitationService) *Handler {
	h.invitations = invitations
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}

	api := e.Group("/api", h.AuthMiddleware(auth.TokenTypeUser, auth.TokenTypeAdmin))

	api.GET("/users/me", h.GetMe)

	api.GET("/teams", h.ListTeams)
	api.GET("/teams/my", h.GetMyTeams)
	api.POST("/teams", h.CreateTeam)
	api.POST("/teams/join-by-code", h.JoinByCode)
	api.GET("/teams/:id", h.GetTeam)
	api.PUT("/teams/:id", h.UpdateTeam)
	api.DELETE("/teams/:id", h.DeleteTeam)
	api.POST("/teams/:id/join", h.SubmitJoinRequest)
	api.POST("/teams/:id/leave", h.LeaveTeam)
	api.POST("/teams/:id/invite", h.InviteUser)
	api.POST("/teams/:id/leader", h.TransferLeadership)
	api.DELETE("/teams/:id/members/:memberId", h.RemoveMember)
	api.GET("/teams/:id/join-requests", h.ListTeamJoinRequests)
	api.POST("/teams/:id/join-requests/:requestId/approve", h.ApproveJoinRequest)
	api.POST("/teams/:id/join-requests/:requestId/reject", h.RejectJoinRequest)

	api.GET("/join-requests/my", h.ListMyJoinRequests)
	api.DELETE("/join-requests/:requestId", h.CancelJoinRequest)

	api.GET("/invitations/my", h.ListMyInvitations)
	api.POST("/invitations/:id/accept", h.AcceptInvitation)
	api.POST("/invitations/:id/decline", h.DeclineInvitation)
}

func (h *Handler) GetMe(e echo.Context) error {
	user, err := h.user.GetUser(e.Request().Context(), currentUserID(e))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, user)
}

func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}

	if s, ok := req.(sanitizable); ok {
		s.Sanitize(cleanText)
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	return e.JSON(statusFor(err.Code), response)
}
