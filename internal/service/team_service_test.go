package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type repoMocks struct {
	users       *MockUserRepository
	teams       *MockTeamRepository
	members     *MockMemberRepository
	requests    *MockJoinRequestRepository
	invitations *MockInvitationRepository
	sink        *MockSink
}

func newRepoMocks() *repoMocks {
	return &repoMocks{
		users:       new(MockUserRepository),
		teams:       new(MockTeamRepository),
		members:     new(MockMemberRepository),
		requests:    new(MockJoinRequestRepository),
		invitations: new(MockInvitationRepository),
		sink:        new(MockSink),
	}
}

func (r *repoMocks) assertExpectations(t *testing.T) {
	r.users.AssertExpectations(t)
	r.teams.AssertExpectations(t)
	r.members.AssertExpectations(t)
	r.requests.AssertExpectations(t)
	r.invitations.AssertExpectations(t)
	r.sink.AssertExpectations(t)
}

func (r *repoMocks) teamService() *TeamService {
	s := NewTeamService(new(MockTransactor)).
		WithTeamRepo(r.teams).
		WithMemberRepo(r.members).
		WithJoinRequestRepo(r.requests).
		WithInvitationRepo(r.invitations).
		WithEventSink(r.sink)
	s.now = func() time.Time { return fixedNow }
	return s
}

func eventTypes(types ...model.EventType) interface{} {
	return mock.MatchedBy(func(evs []model.Event) bool {
		if len(evs) != len(types) {
			return false
		}
		for i, e := range evs {
			if e.Type != types[i] {
				return false
			}
		}
		return true
	})
}

func assertErrorCode(t *testing.T, err *Error, code ErrorCode) {
	t.Helper()
	if assert.NotNil(t, err) {
		assert.Equal(t, code, err.Code, "unexpected error code: %s", err.Message)
	}
}

func leaderOf(teamID string, userID string) *repository.Member {
	return &repository.Member{TeamID: teamID, UserID: userID, Username: userID, Role: model.RoleLeader}
}

func memberOf(teamID string, userID string) *repository.Member {
	return &repository.Member{TeamID: teamID, UserID: userID, Username: userID, Role: model.RoleMember}
}

func TestTeamService_GetTeam(t *testing.T) {
	tests := []struct {
		name          string
		viewerID      string
		setupMocks    func(*repoMocks)
		expectedError bool
		errorCode     ErrorCode
		expectedTeam  *model.Team
	}{
		{
			name:     "member sees code",
			viewerID: "u1",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Get", mock.Anything, "t1").Return(&repository.Team{
					ID: "t1", Name: "Aces", MaxMembers: 5, TeamCode: "ABCD1234",
				}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
			},
			expectedTeam: &model.Team{
				ID: "t1", Name: "Aces", MaxMembers: 5, TeamCode: "ABCD1234", MemberCount: 1, IsMember: true,
				Members: []*model.TeamMember{{UserID: "u1", Username: "u1", Role: model.RoleLeader}},
			},
		},
		{
			name:     "outsider does not see code",
			viewerID: "u2",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Get", mock.Anything, "t1").Return(&repository.Team{
					ID: "t1", Name: "Aces", MaxMembers: 5, TeamCode: "ABCD1234",
				}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
			},
			expectedTeam: &model.Team{
				ID: "t1", Name: "Aces", MaxMembers: 5, MemberCount: 1,
				Members: []*model.TeamMember{{UserID: "u1", Username: "u1", Role: model.RoleLeader}},
			},
		},
		{
			name:     "private team hidden from outsider",
			viewerID: "u2",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Get", mock.Anything, "t1").Return(&repository.Team{ID: "t1", IsPrivate: true}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:     "team not found",
			viewerID: "u1",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Get", mock.Anything, "t1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:     "get members failure",
			viewerID: "u1",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Get", mock.Anything, "t1").Return(&repository.Team{ID: "t1"}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(nil, errors.New("db error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepoMocks()
			tt.setupMocks(r)

			got, err := r.teamService().GetTeam(context.Background(), tt.viewerID, "t1")

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, tt.expectedTeam, got)
			}

			r.assertExpectations(t)
		})
	}
}

func TestTeamService_CreateTeam(t *testing.T) {
	spec := &model.TeamSpec{Name: "Aces", Game: "valorant", MaxMembers: 5}

	tests := []struct {
		name          string
		spec          *model.TeamSpec
		setupMocks    func(*repoMocks)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success cancels pending requests",
			spec: spec,
			setupMocks: func(r *repoMocks) {
				r.members.On("GetByUser", mock.Anything, "u1").Return(nil, repository.ErrNotFound)
				r.teams.On("GetByCode", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
				r.teams.On("Create", mock.Anything, mock.MatchedBy(func(t *repository.Team) bool {
					return t.Name == "Aces" && t.MaxMembers == 5 && len(t.TeamCode) == 8 && t.ID != ""
				})).Return(nil)
				r.members.On("Add", mock.Anything, mock.MatchedBy(func(m *repository.Member) bool {
					return m.UserID == "u1" && m.Role == model.RoleLeader
				})).Return(nil)
				r.requests.On("CancelPendingByUser", mock.Anything, "u1").Return([]*repository.JoinRequest{
					{ID: "r1", TeamID: "t9", UserID: "u1", Status: model.JoinRequestCancelled},
				}, nil)
				r.members.On("ListByTeam", mock.Anything, mock.Anything).Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
				r.sink.On("Publish", mock.Anything,
					eventTypes(model.EventTeamCreated, model.EventRequestCancelled)).Return(nil)
			},
		},
		{
			name: "publish failure is not reported",
			spec: spec,
			setupMocks: func(r *repoMocks) {
				r.members.On("GetByUser", mock.Anything, "u1").Return(nil, repository.ErrNotFound)
				r.teams.On("GetByCode", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
				r.teams.On("Create", mock.Anything, mock.Anything).Return(nil)
				r.members.On("Add", mock.Anything, mock.Anything).Return(nil)
				r.requests.On("CancelPendingByUser", mock.Anything, "u1").Return(nil, nil)
				r.members.On("ListByTeam", mock.Anything, mock.Anything).Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
				r.sink.On("Publish", mock.Anything, eventTypes(model.EventTeamCreated)).Return(errors.New("redis down"))
			},
		},
		{
			name: "already in a team",
			spec: spec,
			setupMocks: func(r *repoMocks) {
				r.members.On("GetByUser", mock.Anything, "u1").Return(memberOf("t2", "u1"), nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeAlreadyInTeam,
		},
		{
			name: "name taken",
			spec: spec,
			setupMocks: func(r *repoMocks) {
				r.members.On("GetByUser", mock.Anything, "u1").Return(nil, repository.ErrNotFound)
				r.teams.On("GetByCode", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
				r.teams.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeTeamExists,
		},
		{
			name: "lost race for membership",
			spec: spec,
			setupMocks: func(r *repoMocks) {
				r.members.On("GetByUser", mock.Anything, "u1").Return(nil, repository.ErrNotFound)
				r.teams.On("GetByCode", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
				r.teams.On("Create", mock.Anything, mock.Anything).Return(nil)
				r.members.On("Add", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeAlreadyInTeam,
		},
		{
			name:          "max members out of range",
			spec:          &model.TeamSpec{Name: "Aces", Game: "valorant", MaxMembers: 6},
			setupMocks:    func(r *repoMocks) {},
			expectedError: true,
			errorCode:     ErrorCodeInvalidBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepoMocks()
			tt.setupMocks(r)

			got, err := r.teamService().CreateTeam(context.Background(), "u1", tt.spec)

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				if assert.NotNil(t, got) {
					assert.Equal(t, "Aces", got.Name)
					assert.Equal(t, 1, got.MemberCount)
					assert.Equal(t, "u1", got.Leader().UserID)
				}
			}

			r.assertExpectations(t)
		})
	}
}

func TestTeamService_UpdateTeam(t *testing.T) {
	two, four := 2, 4
	name := "Kings"

	threeMembers := []*repository.Member{leaderOf("t1", "u1"), memberOf("t1", "u2"), memberOf("t1", "u3")}

	tests := []struct {
		name          string
		actorID       string
		patch         *model.TeamPatch
		setupMocks    func(*repoMocks)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name:    "success",
			actorID: "u1",
			patch:   &model.TeamPatch{Name: &name, MaxMembers: &four},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(threeMembers, nil)
				r.teams.On("Patch", mock.Anything, &repository.TeamPatch{ID: "t1", Name: &name, MaxMembers: &four}).
					Return(&repository.Team{ID: "t1", Name: name, MaxMembers: 4}, nil)
				r.sink.On("Publish", mock.Anything, eventTypes(model.EventTeamUpdated)).Return(nil)
			},
		},
		{
			name:    "max members below member count",
			actorID: "u1",
			patch:   &model.TeamPatch{MaxMembers: &two},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(threeMembers, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeInvalidBody,
		},
		{
			name:    "not the leader",
			actorID: "u2",
			patch:   &model.TeamPatch{Name: &name},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(threeMembers, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeForbidden,
		},
		{
			name:    "name taken",
			actorID: "u1",
			patch:   &model.TeamPatch{Name: &name},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(threeMembers, nil)
				r.teams.On("Patch", mock.Anything, mock.Anything).Return(nil, repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeTeamExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepoMocks()
			tt.setupMocks(r)

			got, err := r.teamService().UpdateTeam(context.Background(), tt.actorID, "t1", tt.patch)

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, "Kings", got.Name)
				assert.Equal(t, 4, got.MaxMembers)
				assert.Equal(t, 3, got.MemberCount)
			}

			r.assertExpectations(t)
		})
	}
}

func TestTeamService_LeaveTeam(t *testing.T) {
	tests := []struct {
		name          string
		actorID       string
		setupMocks    func(*repoMocks)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name:    "member leaves",
			actorID: "u2",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").
					Return([]*repository.Member{leaderOf("t1", "u1"), memberOf("t1", "u2")}, nil)
				r.members.On("Remove", mock.Anything, "t1", "u2").Return(nil)
				r.sink.On("Publish", mock.Anything, eventTypes(model.EventMemberLeft)).Return(nil)
			},
		},
		{
			name:    "leader with members cannot leave",
			actorID: "u1",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").
					Return([]*repository.Member{leaderOf("t1", "u1"), memberOf("t1", "u2")}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeLeaderCannotLeave,
		},
		{
			name:    "sole leader leaving deletes team",
			actorID: "u1",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
				r.members.On("RemoveAll", mock.Anything, "t1").Return(nil)
				r.requests.On("CancelPendingByTeam", mock.Anything, "t1").Return(nil, nil)
				r.invitations.On("CancelPendingByTeam", mock.Anything, "t1").Return(nil, nil)
				r.teams.On("Delete", mock.Anything, "t1").Return(nil)
				r.sink.On("Publish", mock.Anything, eventTypes(model.EventTeamDeleted)).Return(nil)
			},
		},
		{
			name:    "sole leader leaving cancels pending requests and invitations",
			actorID: "u1",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
				r.members.On("RemoveAll", mock.Anything, "t1").Return(nil)
				r.requests.On("CancelPendingByTeam", mock.Anything, "t1").
					Return([]*repository.JoinRequest{{ID: "r1", TeamID: "t1", UserID: "u3"}}, nil)
				r.invitations.On("CancelPendingByTeam", mock.Anything, "t1").
					Return([]*repository.Invitation{{ID: "i1", TeamID: "t1", UserID: "u4"}}, nil)
				r.teams.On("Delete", mock.Anything, "t1").Return(nil)
				r.sink.On("Publish", mock.Anything, eventTypes(
					model.EventTeamDeleted, model.EventRequestCancelled, model.EventInvitationCancelled)).Return(nil)
			},
		},
		{
			name:    "not a member",
			actorID: "u9",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:    "team not found",
			actorID: "u1",
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepoMocks()
			tt.setupMocks(r)

			err := r.teamService().LeaveTeam(context.Background(), tt.actorID, "t1")

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
			} else {
				assert.Nil(t, err)
			}

			r.assertExpectations(t)
		})
	}
}

func TestTeamService_RemoveMember(t *testing.T) {
	roster := []*repository.Member{leaderOf("t1", "u1"), memberOf("t1", "u2")}

	tests := []struct {
		name          string
		actorID       string
		targetID      string
		setupMocks    func(*repoMocks)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name:     "success",
			actorID:  "u1",
			targetID: "u2",
			setupMocks: func(r *repoMocks) {
				r.members.On("Remove", mock.Anything, "t1", "u2").Return(nil)
				r.sink.On("Publish", mock.Anything, eventTypes(model.EventMemberRemoved)).Return(nil)
			},
		},
		{
			name:          "leader cannot remove self",
			actorID:       "u1",
			targetID:      "u1",
			setupMocks:    func(r *repoMocks) {},
			expectedError: true,
			errorCode:     ErrorCodeForbidden,
		},
		{
			name:          "member cannot remove",
			actorID:       "u2",
			targetID:      "u1",
			setupMocks:    func(r *repoMocks) {},
			expectedError: true,
			errorCode:     ErrorCodeForbidden,
		},
		{
			name:          "target not a member",
			actorID:       "u1",
			targetID:      "u9",
			setupMocks:    func(r *repoMocks) {},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepoMocks()
			r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
			r.members.On("ListByTeam", mock.Anything, "t1").Return(roster, nil)
			tt.setupMocks(r)

			err := r.teamService().RemoveMember(context.Background(), tt.actorID, "t1", tt.targetID)

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
			} else {
				assert.Nil(t, err)
			}

			r.assertExpectations(t)
		})
	}
}

func TestTeamService_TransferLeadership(t *testing.T) {
	r := newRepoMocks()
	r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
	r.members.On("ListByTeam", mock.Anything, "t1").
		Return([]*repository.Member{leaderOf("t1", "u1"), memberOf("t1", "u2")}, nil).Once()
	r.members.On("SetRole", mock.Anything, "t1", "u1", model.RoleMember).Return(nil).Once()
	r.members.On("SetRole", mock.Anything, "t1", "u2", model.RoleLeader).Return(nil).Once()
	r.members.On("ListByTeam", mock.Anything, "t1").
		Return([]*repository.Member{memberOf("t1", "u1"), leaderOf("t1", "u2")}, nil).Once()
	r.sink.On("Publish", mock.Anything, eventTypes(model.EventLeadershipTransferred)).Return(nil)

	got, err := r.teamService().TransferLeadership(context.Background(), "u1", "t1", "u2")

	assert.Nil(t, err)
	assert.Equal(t, "u2", got.Leader().UserID)
	r.assertExpectations(t)
}

func TestTeamService_ListTeams(t *testing.T) {
	r := newRepoMocks()
	r.teams.On("List", mock.Anything, model.TeamFilter{Game: "cs2", Limit: defaultListLimit}).Return([]*repository.Team{
		{ID: "t1", Name: "Aces", TeamCode: "SECRET01", MemberCount: 2, MaxMembers: 5},
		{ID: "t2", Name: "Kings", TeamCode: "SECRET02", MemberCount: 1, MaxMembers: 3},
	}, nil)
	r.members.On("GetByUser", mock.Anything, "u1").Return(nil, repository.ErrNotFound)
	r.requests.On("ListPendingByUser", mock.Anything, "u1").Return([]*repository.JoinRequest{
		{ID: "r1", TeamID: "t2", UserID: "u1", Status: model.JoinRequestPending},
	}, nil)

	got, err := r.teamService().ListTeams(context.Background(), "u1", model.TeamFilter{Game: "cs2"})

	assert.Nil(t, err)
	if assert.Len(t, got, 2) {
		assert.Empty(t, got[0].TeamCode)
		assert.False(t, got[0].HasPendingRequest)
		assert.True(t, got[1].HasPendingRequest)
		assert.Equal(t, 2, got[0].MemberCount)
	}
	r.assertExpectations(t)
}

func TestTeamService_GetMyTeams_NoTeam(t *testing.T) {
	r := newRepoMocks()
	r.members.On("GetByUser", mock.Anything, "u1").Return(nil, repository.ErrNotFound)

	got, err := r.teamService().GetMyTeams(context.Background(), "u1")

	assert.Nil(t, err)
	assert.Empty(t, got)
	r.assertExpectations(t)
}
