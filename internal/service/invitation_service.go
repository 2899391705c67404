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

type InvitationService struct {
	tx db.Transactor

	users       repository.UserRepository
	teams       repository.TeamRepository
	members     repository.MemberRepository
	requests    repository.JoinRequestRepository
	invitations repository.InvitationRepository
	events      events.Sink

	now func() time.Time
}

func NewInvitationService(tx db.Transactor) *InvitationService {
	return &InvitationService{
		tx:     tx,
		events: events.NewNopSink(),
		now:    time.Now,
	}
}

func (s *InvitationService) InviteUser(ctx context.Context, leaderID, teamID string, target model.InviteTarget) (*model.Invitation, *Error) {
	l := logger.FromContext(ctx)
	l.Info("inviting user",
		zap.String("team_id", teamID),
		zap.String("user_id", leaderID),
		zap.String("target_id", target.UserID),
		zap.String("target_username", target.Username))

	var (
		res *model.Invitation
		evs []model.Event
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil

		team, err := s.teams.Lock(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to lock team", err)
		}

		members, err := s.members.ListByTeam(txCtx, teamID)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get team members", err)
		}
		if serr := requireLeader(members, leaderID); serr != nil {
			return serr
		}

		user, serr := s.findUser(txCtx, target)
		if serr != nil {
			return serr
		}
		if findMember(members, user.ID) != nil {
			return NewError(ErrorCodeAlreadyInTeam, "user is already on this team")
		}
		if len(members) >= team.MaxMembers {
			l.Warn("team is full", zap.String("team_id", teamID))
			return NewError(ErrorCodeTeamFull, "team is full")
		}

		inv := &repository.Invitation{
			ID:        newID(),
			TeamID:    teamID,
			InviterID: leaderID,
			UserID:    user.ID,
			Status:    model.InvitationPending,
		}
		err = s.invitations.Create(txCtx, inv)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeDuplicatePending, "a pending invitation for this user already exists")
		}
		if err != nil {
			l.Error("failed to create invitation", zap.String("team_id", teamID), zap.Error(err))
			return wrapError(ErrorCodeUnspecified, "failed to create invitation", err)
		}

		created, err := s.invitations.Get(txCtx, inv.ID)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get invitation", err)
		}

		res = toInvitation(created)
		evs = append(evs, model.Event{
			Type:         model.EventInvitationSent,
			TeamID:       teamID,
			ActorID:      leaderID,
			SubjectID:    user.ID,
			InvitationID: inv.ID,
			OccurredAt:   s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	publish(ctx, s.events, evs)

	return res, nil
}

func (s *InvitationService) findUser(ctx context.Context, target model.InviteTarget) (*repository.User, *Error) {
	var (
		user *repository.User
		err  error
	)
	switch {
	case target.UserID != "":
		user, err = s.users.Get(ctx, target.UserID)
	case target.Username != "":
		user, err = s.users.GetByUsername(ctx, target.Username)
	default:
		return nil, NewError(ErrorCodeInvalidBody, "user_id or username is required")
	}

	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to get user", err)
	}
	return user, nil
}

func (s *InvitationService) AcceptInvitation(ctx context.Context, userID, invitationID string) (*model.Invitation, *Error) {
	return s.respond(ctx, userID, invitationID, true)
}

func (s *InvitationService) DeclineInvitation(ctx context.Context, userID, invitationID string) (*model.Invitation, *Error) {
	return s.respond(ctx, userID, invitationID, false)
}

func (s *InvitationService) respond(ctx context.Context, userID, invitationID string, accept bool) (*model.Invitation, *Error) {
	l := logger.FromContext(ctx)
	l.Info("responding to invitation",
		zap.String("invitation_id", invitationID),
		zap.String("user_id", userID),
		zap.Bool("accept", accept))

	var (
		res *model.Invitation
		evs []model.Event
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil
		now := s.now()

		inv, err := s.invitations.Lock(txCtx, invitationID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "invitation not found")
		}
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get invitation", err)
		}
		if inv.UserID != userID {
			return NewError(ErrorCodeForbidden, "not your invitation")
		}
		if inv.Status != model.InvitationPending {
			return NewError(ErrorCodeInvalidState, "invitation is already resolved")
		}

		if !accept {
			resolved, err := s.invitations.Resolve(txCtx, invitationID, model.InvitationDeclined)
			if err != nil {
				return wrapError(ErrorCodeUnspecified, "failed to decline invitation", err)
			}
			res = toInvitation(resolved)
			evs = append(evs, model.Event{
				Type:         model.EventInvitationDeclined,
				TeamID:       inv.TeamID,
				ActorID:      userID,
				SubjectID:    userID,
				InvitationID: invitationID,
				OccurredAt:   now,
			})
			return nil
		}

		resolved, err := s.invitations.Resolve(txCtx, invitationID, model.InvitationAccepted)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to accept invitation", err)
		}

		joined, serr := admission{
			teams:    s.teams,
			members:  s.members,
			requests: s.requests,
			now:      now,
		}.admit(txCtx, inv.TeamID, userID, userID)
		if serr != nil {
			return serr
		}

		res = toInvitation(resolved)
		evs = append(evs, model.Event{
			Type:         model.EventInvitationAccepted,
			TeamID:       inv.TeamID,
			ActorID:      userID,
			SubjectID:    userID,
			InvitationID: invitationID,
			OccurredAt:   now,
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

func (s *InvitationService) ListMyInvitations(ctx context.Context, userID string) ([]*model.Invitation, *Error) {
	invs, err := s.invitations.ListPendingByUser(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list invitations", zap.String("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list invitations")
	}
	return toInvitations(invs), nil
}

func (s *InvitationService) WithUserRepo(r repository.UserRepository) *InvitationService {
	s.users = r
	return s
}

func (s *InvitationService) WithTeamRepo(r repository.TeamRepository) *InvitationService {
	s.teams = r
	return s
}

func (s *InvitationService) WithMemberRepo(r repository.MemberRepository) *InvitationService {
	s.members = r
	return s
}

func (s *InvitationService) WithJoinRequestRepo(r repository.JoinRequestRepository) *InvitationService {
	s.requests = r
	return s
}

func (s *InvitationService) WithInvitationRepo(r repository.InvitationRepository) *InvitationService {
	s.invitations = r
	return s
}

func (s *InvitationService) WithEventSink(sink events.Sink) *InvitationService {
	s.events = sink
	return s
}
