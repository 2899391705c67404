package model

import "time"

type Role string

const (
	RoleLeader Role = "leader"
	RoleMember Role = "member"
)

const (
	MinTeamSize = 2
	MaxTeamSize = 5
)

type Team struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Game         string        `json:"game"`
	Description  string        `json:"description"`
	Requirements string        `json:"requirements"`
	MaxMembers   int           `json:"max_members"`
	IsPrivate    bool          `json:"is_private"`
	Avatar       string        `json:"avatar"`
	TeamCode     string        `json:"team_code,omitempty"`
	Wins         int           `json:"wins"`
	Losses       int           `json:"losses"`
	MemberCount  int           `json:"member_count"`
	Members      []*TeamMember `json:"members,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	// Viewer-relative flags, filled for listings.
	IsMember          bool `json:"is_member"`
	HasPendingRequest bool `json:"has_pending_request"`
}

func (t *Team) Leader() *TeamMember {
	for _, m := range t.Members {
		if m.Role == RoleLeader {
			return m
		}
	}
	return nil
}

type TeamMember struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// TeamSpec is the user-supplied part of a team, used on create.
type TeamSpec struct {
	Name         string `json:"name" validate:"required,min=2,max=64"`
	Game         string `json:"game" validate:"required,max=64"`
	Description  string `json:"description" validate:"max=1000"`
	Requirements string `json:"requirements" validate:"max=1000"`
	MaxMembers   int    `json:"max_members" validate:"required,min=2,max=5"`
	IsPrivate    bool   `json:"is_private"`
	Avatar       string `json:"avatar" validate:"omitempty,max=512"`
}

// TeamPatch holds the fields a leader may change; nil means unchanged.
type TeamPatch struct {
	Name         *string `json:"name" validate:"omitempty,min=2,max=64"`
	Game         *string `json:"game" validate:"omitempty,max=64"`
	Description  *string `json:"description" validate:"omitempty,max=1000"`
	Requirements *string `json:"requirements" validate:"omitempty,max=1000"`
	MaxMembers   *int    `json:"max_members" validate:"omitempty,min=2,max=5"`
	IsPrivate    *bool   `json:"is_private"`
	Avatar       *string `json:"avatar" validate:"omitempty,max=512"`
}

func (s *TeamSpec) Sanitize(clean func(string) string) {
	s.Name = clean(s.Name)
	s.Game = clean(s.Game)
	s.Description = clean(s.Description)
	s.Requirements = clean(s.Requirements)
}

func (p *TeamPatch) Sanitize(clean func(string) string) {
	for _, f := range []*string{p.Name, p.Game, p.Description, p.Requirements} {
		if f != nil {
			*f = clean(*f)
		}
	}
}

type TeamFilter struct {
	Game   string
	Search string
	Limit  int
	Offset int
}
