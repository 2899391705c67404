package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/crackzone/teams/internal/auth"
	"github.com/crackzone/teams/internal/service"
	"github.com/crackzone/teams/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			latency := time.Since(start)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", latency),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return err
		}
	}
}

// AuthMiddleware verifies the bearer token, records the caller as a known
// user and puts the session into the request context.
func (h *Handler) AuthMiddleware(types ...auth.TokenType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			l := logger.FromContext(ctx)

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return h.transportError(c, service.NewError(service.ErrorCodeUnauthorized, "missing bearer token"))
			}

			session, err := auth.ParseSession(token)
			if err != nil {
				l.Warn("invalid token", zap.Error(err))
				return h.transportError(c, service.NewError(service.ErrorCodeUnauthorized, "invalid token"))
			}
			if !session.HasType(types...) {
				return h.transportError(c, service.NewError(service.ErrorCodeForbidden, "token type not allowed"))
			}

			l = l.With(zap.String("user_id", session.UserID))
			ctx = logger.WithLogger(auth.WithSession(ctx, session), l)

			if serr := h.user.RegisterSession(ctx, session.UserID, session.Username); serr != nil {
				if serr.Code != service.ErrorCodeInvalidState {
					return h.transportError(c, serr)
				}
				l.Warn("session user not synced", zap.String("username", session.Username))
			}

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func currentUserID(c echo.Context) string {
	if s, ok := auth.SessionFromContext(c.Request().Context()); ok {
		return s.UserID
	}
	return ""
}

func statusFor(code service.ErrorCode) int {
	switch code {
	case service.ErrorCodeNotFound:
		return http.StatusNotFound
	case service.ErrorCodeForbidden:
		return http.StatusForbidden
	case service.ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case service.ErrorCodeInvalidBody:
		return http.StatusBadRequest
	case service.ErrorCodeAlreadyInTeam,
		service.ErrorCodeTeamFull,
		service.ErrorCodeDuplicatePending,
		service.ErrorCodeInvalidState,
		service.ErrorCodeLeaderCannotLeave,
		service.ErrorCodeTeamExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
