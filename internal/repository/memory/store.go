// Package memory is a process-local implementation of the repositories. A
// single mutex serializes transactions, and a failed transaction restores
// the snapshot taken when it began.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crackzone/teams/internal/db"
	"github.com/crackzone/teams/internal/model"
	"github.com/crackzone/teams/internal/repository"
)

type txKey struct{}

type team struct {
	repository.Team
	deleted bool
}

type state struct {
	users       map[string]repository.User
	teams       map[string]team
	members     map[string]repository.Member // by user id
	requests    map[string]repository.JoinRequest
	invitations map[string]repository.Invitation
}

func (s *state) clone() *state {
	c := &state{
		users:       make(map[string]repository.User, len(s.users)),
		teams:       make(map[string]team, len(s.teams)),
		members:     make(map[string]repository.Member, len(s.members)),
		requests:    make(map[string]repository.JoinRequest, len(s.requests)),
		invitations: make(map[string]repository.Invitation, len(s.invitations)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.teams {
		c.teams[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		st: &state{
			users:       map[string]repository.User{},
			teams:       map[string]team{},
			members:     map[string]repository.Member{},
			requests:    map[string]repository.JoinRequest{},
			invitations: map[string]repository.Invitation{},
		},
		now: time.Now,
	}
}

var _ db.Transactor = (*Store)(nil)

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// lock takes the store mutex unless ctx is already inside a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Users() repository.UserRepository               { return userRepo{s} }
func (s *Store) Teams() repository.TeamRepository               { return teamRepo{s} }
func (s *Store) Members() repository.MemberRepository           { return memberRepo{s} }
func (s *Store) JoinRequests() repository.JoinRequestRepository { return joinRequestRepo{s} }
func (s *Store) Invitations() repository.InvitationRepository   { return invitationRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Get(ctx context.Context, userID string) (*repository.User, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.st.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	defer r.s.lock(ctx)()
	for _, u := range r.s.st.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) Upsert(ctx context.Context, user *repository.User) error {
	defer r.s.lock(ctx)()
	for id, u := range r.s.st.users {
		if id != user.ID && u.Username == user.Username {
			return repository.ErrAlreadyExists
		}
	}
	r.s.st.users[user.ID] = *user
	return nil
}

type teamRepo struct{ s *Store }

func (r teamRepo) withCount(t repository.Team) *repository.Team {
	t.MemberCount = 0
	for _, m := range r.s.st.members {
		if m.TeamID == t.ID {
			t.MemberCount++
		}
	}
	return &t
}

func (r teamRepo) Create(ctx context.Context, t *repository.Team) error {
	defer r.s.lock(ctx)()
	for _, existing := range r.s.st.teams {
		if existing.deleted {
			continue
		}
		if strings.EqualFold(existing.Name, t.Name) || existing.TeamCode == t.TeamCode {
			return repository.ErrAlreadyExists
		}
	}
	if _, ok := r.s.st.teams[t.ID]; ok {
		return repository.ErrAlreadyExists
	}
	now := r.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.st.teams[t.ID] = team{Team: *t}
	return nil
}

func (r teamRepo) Get(ctx context.Context, id string) (*repository.Team, error) {
	defer r.s.lock(ctx)()
	t, ok := r.s.st.teams[id]
	if !ok || t.deleted {
		return nil, repository.ErrNotFound
	}
	return r.withCount(t.Team), nil
}

func (r teamRepo) GetByCode(ctx context.Context, code string) (*repository.Team, error) {
	defer r.s.lock(ctx)()
	for _, t := range r.s.st.teams {
		if !t.deleted && t.TeamCode == code {
			return r.withCount(t.Team), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r teamRepo) Lock(ctx context.Context, id string) (*repository.Team, error) {
	return r.Get(ctx, id)
}

func (r teamRepo) List(ctx context.Context, filter model.TeamFilter) ([]*repository.Team, error) {
	defer r.s.lock(ctx)()
	out := make([]*repository.Team, 0)
	for _, t := range r.s.st.teams {
		if t.deleted || t.IsPrivate {
			continue
		}
		if filter.Game != "" && t.Game != filter.Game {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, r.withCount(t.Team))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*repository.Team{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r teamRepo) Patch(ctx context.Context, patch *repository.TeamPatch) (*repository.Team, error) {
	defer r.s.lock(ctx)()
	t, ok := r.s.st.teams[patch.ID]
	if !ok || t.deleted {
		return nil, repository.ErrNotFound
	}
	if patch.Name != nil {
		for id, other := range r.s.st.teams {
			if id != t.ID && !other.deleted && strings.EqualFold(other.Name, *patch.Name) {
				return nil, repository.ErrAlreadyExists
			}
		}
		t.Name = *patch.Name
	}
	if patch.Game != nil {
		t.Game = *patch.Game
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Requirements != nil {
		t.Requirements = *patch.Requirements
	}
	if patch.MaxMembers != nil {
		t.MaxMembers = *patch.MaxMembers
	}
	if patch.IsPrivate != nil {
		t.IsPrivate = *patch.IsPrivate
	}
	if patch.Avatar != nil {
		t.Avatar = *patch.Avatar
	}
	t.UpdatedAt = r.s.now()
	r.s.st.teams[t.ID] = t
	return r.withCount(t.Team), nil
}

func (r teamRepo) Delete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	t, ok := r.s.st.teams[id]
	if !ok || t.deleted {
		return repository.ErrNotFound
	}
	t.deleted = true
	r.s.st.teams[id] = t
	return nil
}

type memberRepo struct{ s *Store }

func (r memberRepo) withUsername(m repository.Member) *repository.Member {
	m.Username = r.s.st.users[m.UserID].Username
	return &m
}

func (r memberRepo) Add(ctx context.Context, m *repository.Member) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.users[m.UserID]; !ok {
		return repository.ErrNotFound
	}
	if t, ok := r.s.st.teams[m.TeamID]; !ok || t.deleted {
		return repository.ErrNotFound
	}
	if _, ok := r.s.st.members[m.UserID]; ok {
		return repository.ErrAlreadyExists
	}
	if m.Role == model.RoleLeader {
		for _, other := range r.s.st.members {
			if other.TeamID == m.TeamID && other.Role == model.RoleLeader {
				return repository.ErrAlreadyExists
			}
		}
	}
	m.JoinedAt = r.s.now()
	r.s.st.members[m.UserID] = *m
	return nil
}

func (r memberRepo) Remove(ctx context.Context, teamID, userID string) error {
	defer r.s.lock(ctx)()
	m, ok := r.s.st.members[userID]
	if !ok || m.TeamID != teamID {
		return repository.ErrNotFound
	}
	delete(r.s.st.members, userID)
	return nil
}

func (r memberRepo) RemoveAll(ctx context.Context, teamID string) error {
	defer r.s.lock(ctx)()
	for userID, m := range r.s.st.members {
		if m.TeamID == teamID {
			delete(r.s.st.members, userID)
		}
	}
	return nil
}

func (r memberRepo) ListByTeam(ctx context.Context, teamID string) ([]*repository.Member, error) {
	defer r.s.lock(ctx)()
	out := make([]*repository.Member, 0)
	for _, m := range r.s.st.members {
		if m.TeamID == teamID {
			out = append(out, r.withUsername(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (r memberRepo) GetByUser(ctx context.Context, userID string) (*repository.Member, error) {
	defer r.s.lock(ctx)()
	m, ok := r.s.st.members[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.withUsername(m), nil
}

func (r memberRepo) SetRole(ctx context.Context, teamID, userID string, role model.Role) error {
	defer r.s.lock(ctx)()
	m, ok := r.s.st.members[userID]
	if !ok || m.TeamID != teamID {
		return repository.ErrNotFound
	}
	if role == model.RoleLeader {
		for id, other := range r.s.st.members {
			if id != userID && other.TeamID == teamID && other.Role == model.RoleLeader {
				return repository.ErrAlreadyExists
			}
		}
	}
	m.Role = role
	r.s.st.members[userID] = m
	return nil
}

type joinRequestRepo struct{ s *Store }

func (r joinRequestRepo) view(req repository.JoinRequest) *repository.JoinRequest {
	req.TeamName = r.s.st.teams[req.TeamID].Name
	req.Username = r.s.st.users[req.UserID].Username
	return &req
}

func (r joinRequestRepo) Create(ctx context.Context, req *repository.JoinRequest) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.users[req.UserID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.st.teams[req.TeamID]; !ok {
		return repository.ErrNotFound
	}
	for _, other := range r.s.st.requests {
		if other.TeamID == req.TeamID && other.UserID == req.UserID && other.Status == model.JoinRequestPending {
			return repository.ErrAlreadyExists
		}
	}
	req.CreatedAt = r.s.now()
	r.s.st.requests[req.ID] = *req
	return nil
}

func (r joinRequestRepo) Get(ctx context.Context, id string) (*repository.JoinRequest, error) {
	defer r.s.lock(ctx)()
	req, ok := r.s.st.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.view(req), nil
}

func (r joinRequestRepo) Lock(ctx context.Context, id string) (*repository.JoinRequest, error) {
	return r.Get(ctx, id)
}

func (r joinRequestRepo) Resolve(ctx context.Context, id string, status model.JoinRequestStatus) (*repository.JoinRequest, error) {
	defer r.s.lock(ctx)()
	req, ok := r.s.st.requests[id]
	if !ok || req.Status != model.JoinRequestPending {
		return nil, repository.ErrNotFound
	}
	r.resolve(&req, status)
	return r.view(req), nil
}

func (r joinRequestRepo) resolve(req *repository.JoinRequest, status model.JoinRequestStatus) {
	now := r.s.now()
	req.Status = status
	req.ResolvedAt = &now
	r.s.st.requests[req.ID] = *req
}

func (r joinRequestRepo) cancelWhere(match func(repository.JoinRequest) bool) []*repository.JoinRequest {
	out := make([]*repository.JoinRequest, 0)
	for _, req := range r.s.st.requests {
		if req.Status == model.JoinRequestPending && match(req) {
			r.resolve(&req, model.JoinRequestCancelled)
			out = append(out, r.view(req))
		}
	}
	sortRequests(out)
	return out
}

func (r joinRequestRepo) CancelPendingByUser(ctx context.Context, userID string) ([]*repository.JoinRequest, error) {
	defer r.s.lock(ctx)()
	return r.cancelWhere(func(req repository.JoinRequest) bool { return req.UserID == userID }), nil
}

func (r joinRequestRepo) CancelPendingByTeam(ctx context.Context, teamID string) ([]*repository.JoinRequest, error) {
	defer r.s.lock(ctx)()
	return r.cancelWhere(func(req repository.JoinRequest) bool { return req.TeamID == teamID }), nil
}

func (r joinRequestRepo) listPending(match func(repository.JoinRequest) bool) []*repository.JoinRequest {
	out := make([]*repository.JoinRequest, 0)
	for _, req := range r.s.st.requests {
		if req.Status == model.JoinRequestPending && match(req) {
			out = append(out, r.view(req))
		}
	}
	sortRequests(out)
	return out
}

func (r joinRequestRepo) ListPendingByTeam(ctx context.Context, teamID string) ([]*repository.JoinRequest, error) {
	defer r.s.lock(ctx)()
	return r.listPending(func(req repository.JoinRequest) bool { return req.TeamID == teamID }), nil
}

func (r joinRequestRepo) ListPendingByUser(ctx context.Context, userID string) ([]*repository.JoinRequest, error) {
	defer r.s.lock(ctx)()
	return r.listPending(func(req repository.JoinRequest) bool { return req.UserID == userID }), nil
}

func sortRequests(reqs []*repository.JoinRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}

type invitationRepo struct{ s *Store }

func (r invitationRepo) view(inv repository.Invitation) *repository.Invitation {
	inv.TeamName = r.s.st.teams[inv.TeamID].Name
	return &inv
}

func (r invitationRepo) Create(ctx context.Context, inv *repository.Invitation) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.users[inv.UserID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.st.teams[inv.TeamID]; !ok {
		return repository.ErrNotFound
	}
	for _, other := range r.s.st.invitations {
		if other.TeamID == inv.TeamID && other.UserID == inv.UserID && other.Status == model.InvitationPending {
			return repository.ErrAlreadyExists
		}
	}
	inv.CreatedAt = r.s.now()
	r.s.st.invitations[inv.ID] = *inv
	return nil
}

func (r invitationRepo) Get(ctx context.Context, id string) (*repository.Invitation, error) {
	defer r.s.lock(ctx)()
	inv, ok := r.s.st.invitations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.view(inv), nil
}

func (r invitationRepo) Lock(ctx context.Context, id string) (*repository.Invitation, error) {
	return r.Get(ctx, id)
}

func (r invitationRepo) resolve(inv *repository.Invitation, status model.InvitationStatus) {
	now := r.s.now()
	inv.Status = status
	inv.ResolvedAt = &now
	r.s.st.invitations[inv.ID] = *inv
}

func (r invitationRepo) Resolve(ctx context.Context, id string, status model.InvitationStatus) (*repository.Invitation, error) {
	defer r.s.lock(ctx)()
	inv, ok := r.s.st.invitations[id]
	if !ok || inv.Status != model.InvitationPending {
		return nil, repository.ErrNotFound
	}
	r.resolve(&inv, status)
	return r.view(inv), nil
}

func (r invitationRepo) CancelPendingByTeam(ctx context.Context, teamID string) ([]*repository.Invitation, error) {
	defer r.s.lock(ctx)()
	out := make([]*repository.Invitation, 0)
	for _, inv := range r.s.st.invitations {
		if inv.TeamID == teamID && inv.Status == model.InvitationPending {
			r.resolve(&inv, model.InvitationCancelled)
			out = append(out, r.view(inv))
		}
	}
	sortInvitations(out)
	return out, nil
}

func (r invitationRepo) ListPendingByUser(ctx context.Context, userID string) ([]*repository.Invitation, error) {
	defer r.s.lock(ctx)()
	out := make([]*repository.Invitation, 0)
	for _, inv := range r.s.st.invitations {
		if inv.UserID == userID && inv.Status == model.InvitationPending {
			out = append(out, r.view(inv))
		}
	}
	sortInvitations(out)
	return out, nil
}

func sortInvitations(invs []*repository.Invitation) {
	sort.Slice(invs, func(i, j int) bool {
		if invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].ID < invs[j].ID
		}
		return invs[i].CreatedAt.Before(invs[j].CreatedAt)
	})
}
