package model

import "time"

type JoinRequestStatus string

const (
	JoinRequestPending   JoinRequestStatus = "pending"
	JoinRequestApproved  JoinRequestStatus = "approved"
	JoinRequestRejected  JoinRequestStatus = "rejected"
	JoinRequestCancelled JoinRequestStatus = "cancelled"
)

type JoinRequest struct {
	ID         string            `json:"id"`
	TeamID     string            `json:"team_id"`
	TeamName   string            `json:"team_name,omitempty"`
	UserID     string            `json:"user_id"`
	Username   string            `json:"username,omitempty"`
	Message    string            `json:"message,omitempty"`
	Status     JoinRequestStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
