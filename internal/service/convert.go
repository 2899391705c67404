package service

import (
	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/repository"
)

func toTeam(t *repository.Team, members []*repository.Member) *model.Team {
	res := &model.Team{
		ID:           t.ID,
		Name:         t.Name,
		Game:         t.Game,
		Description:  t.Description,
		Requirements: t.Requirements,
		MaxMembers:   t.MaxMembers,
		IsPrivate:    t.IsPrivate,
		Avatar:       t.Avatar,
		TeamCode:     t.TeamCode,
		Wins:         t.Wins,
		Losses:       t.Losses,
		MemberCount:  t.MemberCount,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}

	if members != nil {
		res.MemberCount = len(members)
		res.Members = make([]*model.TeamMember, 0, len(members))
		for _, m := range members {
			res.Members = append(res.Members, &model.TeamMember{
				UserID:   m.UserID,
				Username: m.Username,
				Role:     m.Role,
				JoinedAt: m.JoinedAt,
			})
		}
	}

	return res
}

func toJoinRequest(r *repository.JoinRequest) *model.JoinRequest {
	return &model.JoinRequest{
		ID:         r.ID,
		TeamID:     r.TeamID,
		TeamName:   r.TeamName,
		UserID:     r.UserID,
		Username:   r.Username,
		Message:    r.Message,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		ResolvedAt: r.ResolvedAt,
	}
}

func toJoinRequests(rs []*repository.JoinRequest) []*model.JoinRequest {
	out := make([]*model.JoinRequest, 0, len(rs))
	for _, r := range rs {
		out = append(out, toJoinRequest(r))
	}
	return out
}

func toInvitation(i *repository.Invitation) *model.Invitation {
	return &model.Invitation{
		ID:         i.ID,
		TeamID:     i.TeamID,
		TeamName:   i.TeamName,
		InviterID:  i.InviterID,
		UserID:     i.UserID,
		Status:     i.Status,
		CreatedAt:  i.CreatedAt,
		ResolvedAt: i.ResolvedAt,
	}
}

func toInvitations(is []*repository.Invitation) []*model.Invitation {
	out := make([]*model.Invitation, 0, len(is))
	for _, i := range is {
		out = append(out, toInvitation(i))
	}
	return out
}
