package model

import "time"

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
)

type Invitation struct {
	ID         string           `json:"id"`
	TeamID     string           `json:"team_id"`
	TeamName   string           `json:"team_name,omitempty"`
	InviterID  string           `json:"inviter_id"`
	UserID     string           `json:"user_id"`
	Status     InvitationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// InviteTarget names the invited player by id or by username.
type InviteTarget struct {
	UserID   string `json:"user_id" validate:"required_without=Username"`
	Username string `json:"username" validate:"required_without=UserID"`
}
