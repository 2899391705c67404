package service

import (
	"context"
	"time"

	"github.com/crackzone/teams/internal/db"
	"github.com/crackzone/teams/internal/events"
	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/repository"
	"github.com/crackzone/teams/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type JoinRequestService struct {
	tx db.Transactor

	teams    repository.TeamRepository
	members  repository.MemberRepository
	requests repository.JoinRequestRepository
	events   events.Sink

	now func() time.Time
}

func NewJoinRequestService(tx db.Transactor) *JoinRequestService {
	return &JoinRequestService{
		tx:     tx,
		events: events.NewNopSink(),
		now:    time.Now,
	}
}

func (s *JoinRequestService) SubmitJoinRequest(ctx context.Context, userID, teamID, message string) (*model.JoinRequest, *Error) {
	return s.submit(ctx, userID, message, func(txCtx context.Context) (*repository.Team, error) {
		team, err := s.teams.Get(txCtx, teamID)
		if err != nil {
			return nil, err
		}
		if team.IsPrivate {
			return nil, repository.ErrNotFound
		}
		return team, nil
	})
}

// SubmitJoinRequestByCode resolves the team by its join code, which is the
// only way to reach a private team.
func (s *JoinRequestService) SubmitJoinRequestByCode(ctx context.Context, userID, code, message string) (*model.JoinRequest, *Error) {
	return s.submit(ctx, userID, message, func(txCtx context.Context) (*repository.Team, error) {
		return s.teams.GetByCode(txCtx, code)
	})
}

func (s *JoinRequestService) submit(
	ctx context.Context,
	userID, message string,
	findTeam func(context.Context) (*repository.Team, error),
) (*model.JoinRequest, *Error) {
	l := logger.FromContext(ctx)

	var (
		res *model.JoinRequest
		evs []model.Event
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil

		team, err := findTeam(txCtx)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get team", err)
		}
		l.Info("submitting join request", zap.String("team_id", team.ID), zap.String("user_id", userID))

		_, err = s.members.GetByUser(txCtx, userID)
		switch {
		case err == nil:
			return NewError(ErrorCodeAlreadyInTeam, "user is already in a team")
		case !errors.Is(err, repository.ErrNotFound):
			return wrapError(ErrorCodeUnspecified, "failed to get membership", err)
		}

		pending, err := s.requests.ListPendingByUser(txCtx, userID)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to list join requests", err)
		}
		for _, r := range pending {
			if r.TeamID == team.ID {
				return NewError(ErrorCodeDuplicatePending, "a pending request for this team already exists")
			}
		}

		// Advisory only: capacity is enforced again on approval.
		if team.MemberCount >= team.MaxMembers {
			return NewError(ErrorCodeTeamFull, "team is full")
		}

		req := &repository.JoinRequest{
			ID:      newID(),
			TeamID:  team.ID,
			UserID:  userID,
			Message: message,
			Status:  model.JoinRequestPending,
		}
		err = s.requests.Create(txCtx, req)
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return NewError(ErrorCodeDuplicatePending, "a pending request for this team already exists")
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "user not found")
		case err != nil:
			l.Error("failed to create join request", zap.String("team_id", team.ID), zap.Error(err))
			return wrapError(ErrorCodeUnspecified, "failed to create join request", err)
		}

		created, err := s.requests.Get(txCtx, req.ID)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get join request", err)
		}

		res = toJoinRequest(created)
		evs = append(evs, model.Event{
			Type:       model.EventRequestSubmitted,
			TeamID:     team.ID,
			ActorID:    userID,
			SubjectID:  userID,
			RequestID:  req.ID,
			OccurredAt: s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	publish(ctx, s.events, evs)

	return res, nil
}

func (s *JoinRequestService) CancelJoinRequest(ctx context.Context, userID, requestID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("cancelling join request", zap.String("request_id", requestID), zap.String("user_id", userID))

	var evs []model.Event
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil

		req, serr := s.lockRequest(txCtx, requestID)
		if serr != nil {
			return serr
		}
		if req.UserID != userID {
			return NewError(ErrorCodeForbidden, "not your join request")
		}
		if req.Status != model.JoinRequestPending {
			return NewError(ErrorCodeInvalidState, "join request is already resolved")
		}

		if _, err := s.requests.Resolve(txCtx, requestID, model.JoinRequestCancelled); err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to cancel join request", err)
		}

		evs = append(evs, model.Event{
			Type:       model.EventRequestCancelled,
			TeamID:     req.TeamID,
			ActorID:    userID,
			SubjectID:  userID,
			RequestID:  requestID,
			OccurredAt: s.now(),
		})
		return nil
	})
	if err != nil {
		return asError(err)
	}

	publish(ctx, s.events, evs)

	return nil
}

// ResolveJoinRequest approves or rejects a pending request. A failed
// admission rolls back the whole transaction, so the request stays pending.
func (s *JoinRequestService) ResolveJoinRequest(
	ctx context.Context,
	leaderID, teamID, requestID string,
	decision model.Decision,
) (*model.JoinRequest, *Error) {
	l := logger.FromContext(ctx)
	l.Info("resolving join request",
		zap.String("request_id", requestID),
		zap.String("team_id", teamID),
		zap.String("decision", string(decision)))

	if decision != model.DecisionApprove && decision != model.DecisionReject {
		return nil, NewError(ErrorCodeInvalidBody, "unknown decision")
	}

	var (
		res *model.JoinRequest
		evs []model.Event
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil
		now := s.now()

		req, serr := s.lockRequest(txCtx, requestID)
		if serr != nil {
			return serr
		}
		if teamID != "" && req.TeamID != teamID {
			return NewError(ErrorCodeNotFound, "join request not found")
		}

		if _, err := s.teams.Lock(txCtx, req.TeamID); err != nil {
			// A deleted team leaves its requests cancelled behind it.
			if errors.Is(err, repository.ErrNotFound) && req.Status != model.JoinRequestPending {
				return NewError(ErrorCodeInvalidState, "join request is already resolved")
			}
			if errors.Is(err, repository.ErrNotFound) {
				return NewError(ErrorCodeNotFound, "team not found")
			}
			return wrapError(ErrorCodeUnspecified, "failed to lock team", err)
		}
		members, err := s.members.ListByTeam(txCtx, req.TeamID)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get team members", err)
		}
		if serr = requireLeader(members, leaderID); serr != nil {
			return serr
		}
		if req.Status != model.JoinRequestPending {
			l.Warn("join request already resolved",
				zap.String("request_id", requestID),
				zap.String("status", string(req.Status)))
			return NewError(ErrorCodeInvalidState, "join request is already resolved")
		}

		if decision == model.DecisionReject {
			resolved, err := s.requests.Resolve(txCtx, requestID, model.JoinRequestRejected)
			if err != nil {
				return wrapError(ErrorCodeUnspecified, "failed to reject join request", err)
			}
			res = toJoinRequest(resolved)
			evs = append(evs, model.Event{
				Type:       model.EventRequestRejected,
				TeamID:     req.TeamID,
				ActorID:    leaderID,
				SubjectID:  req.UserID,
				RequestID:  requestID,
				OccurredAt: now,
			})
			return nil
		}

		// Approve before admitting so the user's other pending requests are
		// the only ones swept to cancelled.
		resolved, err := s.requests.Resolve(txCtx, requestID, model.JoinRequestApproved)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to approve join request", err)
		}

		joined, serr := admission{
			teams:    s.teams,
			members:  s.members,
			requests: s.requests,
			now:      now,
		}.admit(txCtx, req.TeamID, req.UserID, leaderID)
		if serr != nil {
			return serr
		}

		res = toJoinRequest(resolved)
		evs = append(evs, model.Event{
			Type:       model.EventRequestApproved,
			TeamID:     req.TeamID,
			ActorID:    leaderID,
			SubjectID:  req.UserID,
			RequestID:  requestID,
			OccurredAt: now,
		})
		evs = append(evs, joined...)
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	publish(ctx, s.events, evs)

	return res, nil
}

func (s *JoinRequestService) lockRequest(ctx context.Context, requestID string) (*repository.JoinRequest, *Error) {
	req, err := s.requests.Lock(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "join request not found")
	}
	if err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to get join request", err)
	}
	return req, nil
}

func (s *JoinRequestService) ListTeamJoinRequests(ctx context.Context, leaderID, teamID string) ([]*model.JoinRequest, *Error) {
	l := logger.FromContext(ctx)

	_, err := s.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team")
	}

	members, err := s.members.ListByTeam(ctx, teamID)
	if err != nil {
		l.Error("failed to get team members", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team members")
	}
	if serr := requireLeader(members, leaderID); serr != nil {
		return nil, serr
	}

	reqs, err := s.requests.ListPendingByTeam(ctx, teamID)
	if err != nil {
		l.Error("failed to list join requests", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list join requests")
	}

	return toJoinRequests(reqs), nil
}

func (s *JoinRequestService) ListMyJoinRequests(ctx context.Context, userID string) ([]*model.JoinRequest, *Error) {
	reqs, err := s.requests.ListPendingByUser(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list join requests", zap.String("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list join requests")
	}
	return toJoinRequests(reqs), nil
}

func (s *JoinRequestService) WithTeamRepo(r repository.TeamRepository) *JoinRequestService {
	s.teams = r
	return s
}

func (s *JoinRequestService) WithMemberRepo(r repository.MemberRepository) *JoinRequestService {
	s.members = r
	return s
}

func (s *JoinRequestService) WithJoinRequestRepo(r repository.JoinRequestRepository) *JoinRequestService {
	s.requests = r
	return s
}

func (s *JoinRequestService) WithEventSink(sink events.Sink) *JoinRequestService {
	s.events = sink
	return s
}
