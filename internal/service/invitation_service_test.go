package service

import (
	"context"
	"testing"
	"time"

	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func (r *repoMocks) invitationService() *InvitationService {
	s := NewInvitationService(new(MockTransactor)).
		WithUserRepo(r.users).
		WithTeamRepo(r.teams).
		WithMemberRepo(r.members).
		WithJoinRequestRepo(r.requests).
		WithInvitationRepo(r.invitations).
		WithEventSink(r.sink)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestInvitationService_InviteUser(t *testing.T) {
	roster := []*repository.Member{leaderOf("t1", "u1"), memberOf("t1", "u2")}

	tests := []struct {
		name          string
		leaderID      string
		target        model.InviteTarget
		setupMocks    func(*repoMocks)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name:     "success by username",
			leaderID: "u1",
			target:   model.InviteTarget{Username: "zed"},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(roster, nil)
				r.users.On("GetByUsername", mock.Anything, "zed").Return(&repository.User{ID: "u9", Username: "zed"}, nil)
				r.invitations.On("Create", mock.Anything, mock.MatchedBy(func(inv *repository.Invitation) bool {
					return inv.TeamID == "t1" && inv.UserID == "u9" && inv.InviterID == "u1"
				})).Return(nil)
				r.invitations.On("Get", mock.Anything, mock.Anything).Return(&repository.Invitation{
					ID: "i1", TeamID: "t1", InviterID: "u1", UserID: "u9", Status: model.InvitationPending,
				}, nil)
				r.sink.On("Publish", mock.Anything, eventTypes(model.EventInvitationSent)).Return(nil)
			},
		},
		{
			name:     "not the leader",
			leaderID: "u2",
			target:   model.InviteTarget{UserID: "u9"},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(roster, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeForbidden,
		},
		{
			name:     "unknown user",
			leaderID: "u1",
			target:   model.InviteTarget{UserID: "ghost"},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(roster, nil)
				r.users.On("Get", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:     "already on this team",
			leaderID: "u1",
			target:   model.InviteTarget{UserID: "u2"},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(roster, nil)
				r.users.On("Get", mock.Anything, "u2").Return(&repository.User{ID: "u2"}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeAlreadyInTeam,
		},
		{
			name:     "team full",
			leaderID: "u1",
			target:   model.InviteTarget{UserID: "u9"},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 2}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(roster, nil)
				r.users.On("Get", mock.Anything, "u9").Return(&repository.User{ID: "u9"}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeTeamFull,
		},
		{
			name:     "duplicate pending",
			leaderID: "u1",
			target:   model.InviteTarget{UserID: "u9"},
			setupMocks: func(r *repoMocks) {
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("ListByTeam", mock.Anything, "t1").Return(roster, nil)
				r.users.On("Get", mock.Anything, "u9").Return(&repository.User{ID: "u9"}, nil)
				r.invitations.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeDuplicatePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepoMocks()
			tt.setupMocks(r)

			got, err := r.invitationService().InviteUser(context.Background(), tt.leaderID, "t1", tt.target)

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, "u9", got.UserID)
				assert.Equal(t, model.InvitationPending, got.Status)
			}

			r.assertExpectations(t)
		})
	}
}

func TestInvitationService_Respond(t *testing.T) {
	pending := &repository.Invitation{ID: "i1", TeamID: "t1", InviterID: "u1", UserID: "u9", Status: model.InvitationPending}

	tests := []struct {
		name          string
		userID        string
		accept        bool
		setupMocks    func(*repoMocks)
		expectedError bool
		errorCode     ErrorCode
		expected      model.InvitationStatus
	}{
		{
			name:   "accept",
			userID: "u9",
			accept: true,
			setupMocks: func(r *repoMocks) {
				r.invitations.On("Lock", mock.Anything, "i1").Return(pending, nil)
				r.invitations.On("Resolve", mock.Anything, "i1", model.InvitationAccepted).
					Return(&repository.Invitation{ID: "i1", TeamID: "t1", UserID: "u9", Status: model.InvitationAccepted}, nil)
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("GetByUser", mock.Anything, "u9").Return(nil, repository.ErrNotFound)
				r.members.On("ListByTeam", mock.Anything, "t1").Return([]*repository.Member{leaderOf("t1", "u1")}, nil)
				r.members.On("Add", mock.Anything, mock.Anything).Return(nil)
				r.requests.On("CancelPendingByUser", mock.Anything, "u9").Return(nil, nil)
				r.sink.On("Publish", mock.Anything,
					eventTypes(model.EventInvitationAccepted, model.EventMemberJoined)).Return(nil)
			},
			expected: model.InvitationAccepted,
		},
		{
			name:   "decline",
			userID: "u9",
			setupMocks: func(r *repoMocks) {
				r.invitations.On("Lock", mock.Anything, "i1").Return(pending, nil)
				r.invitations.On("Resolve", mock.Anything, "i1", model.InvitationDeclined).
					Return(&repository.Invitation{ID: "i1", TeamID: "t1", UserID: "u9", Status: model.InvitationDeclined}, nil)
				r.sink.On("Publish", mock.Anything, eventTypes(model.EventInvitationDeclined)).Return(nil)
			},
			expected: model.InvitationDeclined,
		},
		{
			name:   "accept while in another team",
			userID: "u9",
			accept: true,
			setupMocks: func(r *repoMocks) {
				r.invitations.On("Lock", mock.Anything, "i1").Return(pending, nil)
				r.invitations.On("Resolve", mock.Anything, "i1", model.InvitationAccepted).
					Return(&repository.Invitation{ID: "i1", Status: model.InvitationAccepted}, nil)
				r.teams.On("Lock", mock.Anything, "t1").Return(&repository.Team{ID: "t1", MaxMembers: 5}, nil)
				r.members.On("GetByUser", mock.Anything, "u9").Return(memberOf("t4", "u9"), nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeAlreadyInTeam,
		},
		{
			name:   "not the addressee",
			userID: "u2",
			accept: true,
			setupMocks: func(r *repoMocks) {
				r.invitations.On("Lock", mock.Anything, "i1").Return(pending, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeForbidden,
		},
		{
			name:   "already declined",
			userID: "u9",
			accept: true,
			setupMocks: func(r *repoMocks) {
				r.invitations.On("Lock", mock.Anything, "i1").
					Return(&repository.Invitation{ID: "i1", TeamID: "t1", UserID: "u9", Status: model.InvitationDeclined}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepoMocks()
			tt.setupMocks(r)

			s := r.invitationService()
			var (
				got *model.Invitation
				err *Error
			)
			if tt.accept {
				got, err = s.AcceptInvitation(context.Background(), tt.userID, "i1")
			} else {
				got, err = s.DeclineInvitation(context.Background(), tt.userID, "i1")
			}

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, tt.expected, got.Status)
			}

			r.assertExpectations(t)
		})
	}
}
