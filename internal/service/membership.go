package service

import (
	"context"
	"strings"
	"time"

	"github.com/crackzone/teams/internal/events"
	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/repository"
	"github.com/crackzone/teams/pkg/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// admission commits a user into a team. It is the single place where the
// capacity and one-team rules are enforced for joins, and it must run inside
// the caller's transaction.
type admission struct {
	teams    repository.TeamRepository
	members  repository.MemberRepository
	requests repository.JoinRequestRepository
	now      time.Time
}

func (a admission) admit(ctx context.Context, teamID, userID, actorID string) ([]model.Event, *Error) {
	l := logger.FromContext(ctx)

	team, err := a.teams.Lock(ctx, teamID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "team not found")
	case err != nil:
		return nil, wrapError(ErrorCodeUnspecified, "failed to lock team", err)
	}

	_, err = a.members.GetByUser(ctx, userID)
	switch {
	case err == nil:
		l.Warn("user already in a team", zap.String("user_id", userID))
		return nil, NewError(ErrorCodeAlreadyInTeam, "user is already in a team")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, wrapError(ErrorCodeUnspecified, "failed to get membership", err)
	}

	members, err := a.members.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to get team members", err)
	}
	if len(members) >= team.MaxMembers {
		l.Warn("team is full", zap.String("team_id", teamID), zap.Int("max_members", team.MaxMembers))
		return nil, NewError(ErrorCodeTeamFull, "team is full")
	}

	err = a.members.Add(ctx, &repository.Member{
		TeamID: teamID,
		UserID: userID,
		Role:   model.RoleMember,
	})
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		return nil, NewError(ErrorCodeAlreadyInTeam, "user is already in a team")
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "user not found")
	case err != nil:
		return nil, wrapError(ErrorCodeUnspecified, "failed to add member", err)
	}

	evs := []model.Event{{
		Type:       model.EventMemberJoined,
		TeamID:     teamID,
		ActorID:    actorID,
		SubjectID:  userID,
		OccurredAt: a.now,
	}}

	cancelled, cerr := a.cancelPendingRequests(ctx, userID)
	if cerr != nil {
		return nil, cerr
	}
	return append(evs, cancelled...), nil
}

// cancelPendingRequests retires every pending request of a user who has just
// become a team member; none of them could succeed any more.
func (a admission) cancelPendingRequests(ctx context.Context, userID string) ([]model.Event, *Error) {
	cancelled, err := a.requests.CancelPendingByUser(ctx, userID)
	if err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to cancel pending requests", err)
	}

	evs := make([]model.Event, 0, len(cancelled))
	for _, r := range cancelled {
		evs = append(evs, model.Event{
			Type:       model.EventRequestCancelled,
			TeamID:     r.TeamID,
			ActorID:    userID,
			SubjectID:  userID,
			RequestID:  r.ID,
			OccurredAt: a.now,
		})
	}
	return evs, nil
}

func findMember(members []*repository.Member, userID string) *repository.Member {
	for _, m := range members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func requireLeader(members []*repository.Member, userID string) *Error {
	if m := findMember(members, userID); m == nil || m.Role != model.RoleLeader {
		return NewError(ErrorCodeForbidden, "only the team leader can do this")
	}
	return nil
}

// publish hands committed events to the sink. The state change already
// happened, so failures are logged and swallowed.
func publish(ctx context.Context, sink events.Sink, evs []model.Event) {
	if sink == nil || len(evs) == 0 {
		return
	}
	if err := sink.Publish(ctx, evs...); err != nil {
		logger.FromContext(ctx).Error("failed to publish events", zap.Int("count", len(evs)), zap.Error(err))
	}
}

func newID() string {
	return uuid.NewString()
}

func newTeamCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
