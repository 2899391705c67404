package model

import "time"

type EventType string

const (
	EventTeamCreated           EventType = "team.created"
	EventTeamUpdated           EventType = "team.updated"
	EventTeamDeleted           EventType = "team.deleted"
	EventMemberJoined          EventType = "member.joined"
	EventMemberLeft            EventType = "member.left"
	EventMemberRemoved         EventType = "member.removed"
	EventLeadershipTransferred EventType = "leadership.transferred"
	EventRequestSubmitted      EventType = "request.submitted"
	EventRequestCancelled      EventType = "request.cancelled"
	EventRequestApproved       EventType = "request.approved"
	EventRequestRejected       EventType = "request.rejected"
	EventInvitationSent        EventType = "invitation.sent"
	EventInvitationAccepted    EventType = "invitation.accepted"
	EventInvitationDeclined    EventType = "invitation.declined"
	EventInvitationCancelled   EventType = "invitation.cancelled"
)

// Event is a committed state transition. SubjectID is the user the
// transition is about; ActorID is who caused it.
type Event struct {
	Type         EventType `json:"type"`
	TeamID       string    `json:"team_id"`
	ActorID      string    `json:"actor_id"`
	SubjectID    string    `json:"subject_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	InvitationID string    `json:"invitation_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
