package domain

import "errors"

// Client-side failure taxonomy. None of these are fatal to the session:
// the worst case is a degraded feature while the meeting continues.
var (
	// ErrMediaUnavailable: no camera/mic or permission denied. Callers
	// degrade to audio/video-off instead of aborting the session.
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrScreenShareCancelled: the user declined or cancelled the screen
	// capture prompt. A normal outcome, not a failure.
	ErrScreenShareCancelled = errors.New("screen share cancelled")

	// ErrPermissionDenied: display capture for recording was declined.
	// Callers revert to the prior state and show a transient status.
	ErrPermissionDenied = errors.New("permission denied")

	ErrSignalingDisconnected = errors.New("signaling disconnected")
	ErrNegotiationFailed     = errors.New("negotiation failed")
	ErrRecordingUnsupported  = errors.New("recording unsupported")
	ErrRecordingActive       = errors.New("recording already active")
	ErrUploadFailed          = errors.New("recording upload failed")

	ErrMeetingNotFound = errors.New("meeting not found")
	ErrMeetingExists   = errors.New("meeting already exists")
	ErrMeetingEnded    = errors.New("meeting ended")
	ErrPeerNotFound    = errors.New("peer not found")
	ErrNotHost         = errors.New("operation restricted to host")
)
