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

const (
	defaultListLimit = 20
	maxListLimit     = 100

	teamCodeAttempts = 5
)

type TeamService struct {
	tx db.Transactor

	teams       repository.TeamRepository
	members     repository.MemberRepository
	requests    repository.JoinRequestRepository
	invitations repository.InvitationRepository
	events      events.Sink

	now func() time.Time
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx:     tx,
		events: events.NewNopSink(),
		now:    time.Now,
	}
}

func (t *TeamService) admission() admission {
	return admission{
		teams:    t.teams,
		members:  t.members,
		requests: t.requests,
		now:      t.now(),
	}
}

func (t *TeamService) CreateTeam(ctx context.Context, userID string, spec *model.TeamSpec) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("creating team", zap.String("user_id", userID), zap.String("team_name", spec.Name))

	if spec.MaxMembers < model.MinTeamSize || spec.MaxMembers > model.MaxTeamSize {
		return nil, NewError(ErrorCodeInvalidBody, "max_members must be between 2 and 5")
	}

	var (
		res *model.Team
		evs []model.Event
	)
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil
		now := t.now()

		_, err := t.members.GetByUser(txCtx, userID)
		switch {
		case err == nil:
			l.Warn("user already in a team", zap.String("user_id", userID))
			return NewError(ErrorCodeAlreadyInTeam, "user is already in a team")
		case !errors.Is(err, repository.ErrNotFound):
			return wrapError(ErrorCodeUnspecified, "failed to get membership", err)
		}

		code, serr := t.uniqueTeamCode(txCtx)
		if serr != nil {
			return serr
		}

		team := &repository.Team{
			ID:           newID(),
			Name:         spec.Name,
			Game:         spec.Game,
			Description:  spec.Description,
			Requirements: spec.Requirements,
			MaxMembers:   spec.MaxMembers,
			IsPrivate:    spec.IsPrivate,
			Avatar:       spec.Avatar,
			TeamCode:     code,
		}
		err = t.teams.Create(txCtx, team)
		if errors.Is(err, repository.ErrAlreadyExists) {
			l.Warn("team already exists", zap.String("team_name", spec.Name))
			return NewError(ErrorCodeTeamExists, "team name already taken")
		}
		if err != nil {
			l.Error("failed to create team", zap.String("team_name", spec.Name), zap.Error(err))
			return wrapError(ErrorCodeUnspecified, "failed to create team", err)
		}

		err = t.members.Add(txCtx, &repository.Member{
			TeamID: team.ID,
			UserID: userID,
			Role:   model.RoleLeader,
		})
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return NewError(ErrorCodeAlreadyInTeam, "user is already in a team")
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "user not found")
		case err != nil:
			return wrapError(ErrorCodeUnspecified, "failed to add leader", err)
		}

		cancelled, serr := t.admission().cancelPendingRequests(txCtx, userID)
		if serr != nil {
			return serr
		}

		members, err := t.members.ListByTeam(txCtx, team.ID)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get team members", err)
		}

		res = toTeam(team, members)
		evs = append([]model.Event{{
			Type:       model.EventTeamCreated,
			TeamID:     team.ID,
			ActorID:    userID,
			SubjectID:  userID,
			OccurredAt: now,
		}}, cancelled...)

		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	publish(ctx, t.events, evs)
	l.Debug("team created", zap.String("team_id", res.ID))

	return res, nil
}

func (t *TeamService) uniqueTeamCode(ctx context.Context) (string, *Error) {
	for i := 0; i < teamCodeAttempts; i++ {
		code := newTeamCode()
		_, err := t.teams.GetByCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", wrapError(ErrorCodeUnspecified, "failed to check team code", err)
		}
	}
	return "", NewError(ErrorCodeUnspecified, "failed to generate team code")
}

func (t *TeamService) UpdateTeam(ctx context.Context, actorID, teamID string, patch *model.TeamPatch) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("updating team", zap.String("team_id", teamID), zap.String("user_id", actorID))

	var (
		res *model.Team
		evs []model.Event
	)
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil

		_, members, serr := t.lockTeam(txCtx, teamID)
		if serr != nil {
			return serr
		}
		if serr = requireLeader(members, actorID); serr != nil {
			return serr
		}

		if patch.MaxMembers != nil {
			if *patch.MaxMembers < model.MinTeamSize || *patch.MaxMembers > model.MaxTeamSize {
				return NewError(ErrorCodeInvalidBody, "max_members must be between 2 and 5")
			}
			if *patch.MaxMembers < len(members) {
				l.Warn("max_members below member count",
					zap.String("team_id", teamID),
					zap.Int("max_members", *patch.MaxMembers),
					zap.Int("member_count", len(members)))
				return NewError(ErrorCodeInvalidBody, "max_members is below the current member count")
			}
		}

		updated, err := t.teams.Patch(txCtx, &repository.TeamPatch{
			ID:           teamID,
			Name:         patch.Name,
			Game:         patch.Game,
			Description:  patch.Description,
			Requirements: patch.Requirements,
			MaxMembers:   patch.MaxMembers,
			IsPrivate:    patch.IsPrivate,
			Avatar:       patch.Avatar,
		})
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return NewError(ErrorCodeTeamExists, "team name already taken")
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "team not found")
		case err != nil:
			l.Error("failed to patch team", zap.String("team_id", teamID), zap.Error(err))
			return wrapError(ErrorCodeUnspecified, "failed to update team", err)
		}

		res = toTeam(updated, members)
		evs = append(evs, model.Event{
			Type:       model.EventTeamUpdated,
			TeamID:     teamID,
			ActorID:    actorID,
			OccurredAt: t.now(),
		})
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	publish(ctx, t.events, evs)

	return res, nil
}

func (t *TeamService) DeleteTeam(ctx context.Context, actorID, teamID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("deleting team", zap.String("team_id", teamID), zap.String("user_id", actorID))

	var evs []model.Event
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil

		_, members, serr := t.lockTeam(txCtx, teamID)
		if serr != nil {
			return serr
		}
		if serr = requireLeader(members, actorID); serr != nil {
			return serr
		}

		dissolved, serr := t.dissolve(txCtx, teamID, actorID, t.now())
		if serr != nil {
			return serr
		}
		evs = append(evs, dissolved...)
		return nil
	})
	if err != nil {
		return asError(err)
	}

	publish(ctx, t.events, evs)
	l.Debug("team deleted", zap.String("team_id", teamID))

	return nil
}

// dissolve removes every trace of a live team: memberships go, pending
// requests and invitations become cancelled, the team row is soft-deleted.
// The returned events cover the team and every cancelled request and
// invitation.
func (t *TeamService) dissolve(ctx context.Context, teamID, actorID string, now time.Time) ([]model.Event, *Error) {
	if err := t.members.RemoveAll(ctx, teamID); err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to remove members", err)
	}
	reqs, err := t.requests.CancelPendingByTeam(ctx, teamID)
	if err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to cancel join requests", err)
	}
	invs, err := t.invitations.CancelPendingByTeam(ctx, teamID)
	if err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to cancel invitations", err)
	}
	if err = t.teams.Delete(ctx, teamID); err != nil {
		return nil, wrapError(ErrorCodeUnspecified, "failed to delete team", err)
	}

	evs := make([]model.Event, 0, 1+len(reqs)+len(invs))
	evs = append(evs, model.Event{
		Type:       model.EventTeamDeleted,
		TeamID:     teamID,
		ActorID:    actorID,
		OccurredAt: now,
	})
	for _, r := range reqs {
		evs = append(evs, model.Event{
			Type:       model.EventRequestCancelled,
			TeamID:     teamID,
			ActorID:    actorID,
			SubjectID:  r.UserID,
			RequestID:  r.ID,
			OccurredAt: now,
		})
	}
	for _, inv := range invs {
		evs = append(evs, model.Event{
			Type:         model.EventInvitationCancelled,
			TeamID:       teamID,
			ActorID:      actorID,
			SubjectID:    inv.UserID,
			InvitationID: inv.ID,
			OccurredAt:   now,
		})
	}
	return evs, nil
}

func (t *TeamService) LeaveTeam(ctx context.Context, actorID, teamID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("leaving team", zap.String("team_id", teamID), zap.String("user_id", actorID))

	var evs []model.Event
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil
		now := t.now()

		_, members, serr := t.lockTeam(txCtx, teamID)
		if serr != nil {
			return serr
		}

		me := findMember(members, actorID)
		if me == nil {
			return NewError(ErrorCodeNotFound, "not a member of this team")
		}

		if me.Role == model.RoleLeader {
			if len(members) > 1 {
				l.Warn("leader tried to leave a non-empty team", zap.String("team_id", teamID))
				return NewError(ErrorCodeLeaderCannotLeave, "transfer leadership before leaving")
			}
			dissolved, serr := t.dissolve(txCtx, teamID, actorID, now)
			if serr != nil {
				return serr
			}
			evs = append(evs, dissolved...)
			return nil
		}

		if err := t.members.Remove(txCtx, teamID, actorID); err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to remove member", err)
		}
		evs = append(evs, model.Event{
			Type:       model.EventMemberLeft,
			TeamID:     teamID,
			ActorID:    actorID,
			SubjectID:  actorID,
			OccurredAt: now,
		})
		return nil
	})
	if err != nil {
		return asError(err)
	}

	publish(ctx, t.events, evs)

	return nil
}

func (t *TeamService) RemoveMember(ctx context.Context, actorID, teamID, targetID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("removing member",
		zap.String("team_id", teamID),
		zap.String("user_id", actorID),
		zap.String("target_id", targetID))

	var evs []model.Event
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil

		_, members, serr := t.lockTeam(txCtx, teamID)
		if serr != nil {
			return serr
		}
		if serr = requireLeader(members, actorID); serr != nil {
			return serr
		}
		if targetID == actorID {
			return NewError(ErrorCodeForbidden, "the leader cannot be removed")
		}
		if findMember(members, targetID) == nil {
			return NewError(ErrorCodeNotFound, "member not found")
		}

		if err := t.members.Remove(txCtx, teamID, targetID); err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to remove member", err)
		}

		evs = append(evs, model.Event{
			Type:       model.EventMemberRemoved,
			TeamID:     teamID,
			ActorID:    actorID,
			SubjectID:  targetID,
			OccurredAt: t.now(),
		})
		return nil
	})
	if err != nil {
		return asError(err)
	}

	publish(ctx, t.events, evs)

	return nil
}

func (t *TeamService) TransferLeadership(ctx context.Context, actorID, teamID, newLeaderID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("transferring leadership",
		zap.String("team_id", teamID),
		zap.String("user_id", actorID),
		zap.String("new_leader_id", newLeaderID))

	var (
		res *model.Team
		evs []model.Event
	)
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		evs = nil

		team, members, serr := t.lockTeam(txCtx, teamID)
		if serr != nil {
			return serr
		}
		if serr = requireLeader(members, actorID); serr != nil {
			return serr
		}
		if newLeaderID == actorID {
			return NewError(ErrorCodeInvalidState, "user is already the leader")
		}
		if findMember(members, newLeaderID) == nil {
			return NewError(ErrorCodeNotFound, "member not found")
		}

		// Demote first so the one-leader index never sees two leaders.
		if err := t.members.SetRole(txCtx, teamID, actorID, model.RoleMember); err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to demote leader", err)
		}
		if err := t.members.SetRole(txCtx, teamID, newLeaderID, model.RoleLeader); err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to promote member", err)
		}

		members, err := t.members.ListByTeam(txCtx, teamID)
		if err != nil {
			return wrapError(ErrorCodeUnspecified, "failed to get team members", err)
		}

		res = toTeam(team, members)
		evs = append(evs, model.Event{
			Type:       model.EventLeadershipTransferred,
			TeamID:     teamID,
			ActorID:    actorID,
			SubjectID:  newLeaderID,
			OccurredAt: t.now(),
		})
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	publish(ctx, t.events, evs)
	if leader := res.Leader(); leader != nil {
		l.Debug("leadership transferred", zap.String("team_id", teamID), zap.String("leader_id", leader.UserID))
	}

	return res, nil
}

func (t *TeamService) lockTeam(ctx context.Context, teamID string) (*repository.Team, []*repository.Member, *Error) {
	team, err := t.teams.Lock(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		return nil, nil, wrapError(ErrorCodeUnspecified, "failed to lock team", err)
	}

	members, err := t.members.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, nil, wrapError(ErrorCodeUnspecified, "failed to get team members", err)
	}

	return team, members, nil
}

// GetTeam returns a team with its roster. Private teams are visible to their
// members only and the join code is shown to members only.
func (t *TeamService) GetTeam(ctx context.Context, viewerID, teamID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("getting team", zap.String("team_id", teamID))

	teamRepo, err := t.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("team not found", zap.String("team_id", teamID))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team")
	}

	members, err := t.members.ListByTeam(ctx, teamID)
	if err != nil {
		l.Error("failed to get team members", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team members")
	}

	team := toTeam(teamRepo, members)
	team.IsMember = findMember(members, viewerID) != nil
	if !team.IsMember {
		if team.IsPrivate {
			return nil, NewError(ErrorCodeNotFound, "team not found")
		}
		team.TeamCode = ""
	}

	return team, nil
}

func (t *TeamService) ListTeams(ctx context.Context, viewerID string, filter model.TeamFilter) ([]*model.Team, *Error) {
	l := logger.FromContext(ctx)

	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	teams, err := t.teams.List(ctx, filter)
	if err != nil {
		l.Error("failed to list teams", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list teams")
	}

	var myTeamID string
	pending := map[string]bool{}
	if viewerID != "" {
		m, err := t.members.GetByUser(ctx, viewerID)
		switch {
		case err == nil:
			myTeamID = m.TeamID
		case !errors.Is(err, repository.ErrNotFound):
			l.Error("failed to get membership", zap.String("user_id", viewerID), zap.Error(err))
			return nil, NewError(ErrorCodeUnspecified, "failed to get membership")
		}

		reqs, err := t.requests.ListPendingByUser(ctx, viewerID)
		if err != nil {
			l.Error("failed to list join requests", zap.String("user_id", viewerID), zap.Error(err))
			return nil, NewError(ErrorCodeUnspecified, "failed to list join requests")
		}
		for _, r := range reqs {
			pending[r.TeamID] = true
		}
	}

	res := make([]*model.Team, 0, len(teams))
	for _, tr := range teams {
		team := toTeam(tr, nil)
		team.TeamCode = ""
		team.IsMember = tr.ID == myTeamID
		team.HasPendingRequest = pending[tr.ID]
		res = append(res, team)
	}

	return res, nil
}

// GetMyTeams returns the caller's team as a list; the one-team rule keeps it
// at most one element long.
func (t *TeamService) GetMyTeams(ctx context.Context, userID string) ([]*model.Team, *Error) {
	l := logger.FromContext(ctx)

	m, err := t.members.GetByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return []*model.Team{}, nil
	}
	if err != nil {
		l.Error("failed to get membership", zap.String("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get membership")
	}

	team, serr := t.GetTeam(ctx, userID, m.TeamID)
	if serr != nil {
		return nil, serr
	}

	return []*model.Team{team}, nil
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}

func (t *TeamService) WithMemberRepo(r repository.MemberRepository) *TeamService {
	t.members = r
	return t
}

func (t *TeamService) WithJoinRequestRepo(r repository.JoinRequestRepository) *TeamService {
	t.requests = r
	return t
}

func (t *TeamService) WithInvitationRepo(r repository.InvitationRepository) *TeamService {
	t.invitations = r
	return t
}

func (t *TeamService) WithEventSink(s events.Sink) *TeamService {
	t.events = s
	return t
}
