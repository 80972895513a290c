package domain

import "time"

type MeetingID string
type UserID string

// MeetingPhase is the lifecycle phase of a meeting session.
type MeetingPhase string

const (
	PhaseScheduled MeetingPhase = "scheduled"
	PhaseActive    MeetingPhase = "active"
	PhaseEnded     MeetingPhase = "ended"
)

// Role distinguishes the host from ordinary participants. The host drives
// meeting start/end and is the fallback offer initiator.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// MeetingSession is the session-scoped view of a meeting. It lives from
// room entry until leave and is never shared across sessions.
type MeetingSession struct {
	ID          MeetingID    `json:"id"`
	HostID      UserID       `json:"host_id"`
	Phase       MeetingPhase `json:"phase"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   time.Time    `json:"started_at,omitempty"`
}

// MediaState mirrors the enabled bits of a participant's tracks. For the
// local participant it is authoritative; for remote participants it is
// derived from received events and may be stale until the next event.
type MediaState struct {
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`
}

// Participant is one member of the meeting roster.
type Participant struct {
	UserID     UserID     `json:"user_id"`
	Username   string     `json:"username"`
	Role       Role       `json:"role"`
	Media      MediaState `json:"media"`
	IsSharing  bool       `json:"is_sharing"`
	HandRaised bool       `json:"hand_raised"`
	JoinedAt   time.Time  `json:"joined_at"`
}

// LinkState is the negotiation state of a PeerLink.
type LinkState string

const (
	LinkIdle          LinkState = "idle"
	LinkNegotiating   LinkState = "negotiating"
	LinkConnected     LinkState = "connected"
	LinkRenegotiating LinkState = "renegotiating"
	LinkClosed        LinkState = "closed"
)

// MeetingDetails is the snapshot returned by the meeting details endpoint,
// consumed once at session load.
type MeetingDetails struct {
	ID           MeetingID     `json:"id"`
	HostID       UserID        `json:"host_id"`
	Participants []Participant `json:"participants"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	StartedAt    time.Time     `json:"started_at,omitempty"`
	Phase        MeetingPhase  `json:"phase"`
}
