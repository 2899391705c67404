package service

import (
	"context"

	"github.com/crackzone/teams/internal/db"
	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/repository"
	"github.com/crackzone/teams/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type UserService struct {
	tx db.Transactor

	users   repository.UserRepository
	members repository.MemberRepository
}

func NewUserService(tx db.Transactor) *UserService {
	return &UserService{tx: tx}
}

// RegisterSession records the identity carried by an access token so the
// user can be referenced by teams, requests and invitations.
func (u *UserService) RegisterSession(ctx context.Context, userID, username string) *Error {
	err := u.users.Upsert(ctx, &repository.User{
		ID:       userID,
		Username: username,
	})
	if errors.Is(err, repository.ErrAlreadyExists) {
		logger.FromContext(ctx).Warn("username taken by another user",
			zap.String("user_id", userID),
			zap.String("username", username))
		return NewError(ErrorCodeInvalidState, "username already taken")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to upsert user", zap.String("user_id", userID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to register user")
	}
	return nil
}

func (u *UserService) GetUser(ctx context.Context, userID string) (*model.User, *Error) {
	user, err := u.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}

	res := &model.User{
		ID:       user.ID,
		Username: user.Username,
	}

	m, err := u.members.GetByUser(ctx, userID)
	switch {
	case err == nil:
		res.TeamID = m.TeamID
	case !errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeUnspecified, "failed to get membership")
	}

	return res, nil
}

func (u *UserService) WithUserRepo(userRepo repository.UserRepository) *UserService {
	u.users = userRepo
	return u
}

func (u *UserService) WithMemberRepo(memberRepo repository.MemberRepository) *UserService {
	u.members = memberRepo
	return u
}
