package ports

import (
	"context"

	"studylink/internal/core/domain"
	"studylink/internal/signaling"

	"github.com/pion/webrtc/v3"
)

// Signaling is the persistent meeting-scoped message channel.
type Signaling interface {
	Connect(ctx context.Context) error
	Send(msg signaling.Message)
	OnMessage(h signaling.Handler)
	OnStateChange(fn func(connected bool))
	Connected() bool
	Close() error
}

// PeerManager owns one PeerLink per remote participant and runs the
// offer/answer/candidate exchange through the signaling channel.
type PeerManager interface {
	SetLocalTracks(tracks []webrtc.TrackLocal)
	CreateLink(remote domain.UserID, initiator bool) error
	HandleSignal(from domain.UserID, sig signaling.SignalPayload) error
	Renegotiate(remote domain.UserID) error
	StartScreenShare(track webrtc.TrackLocal) error
	StopScreenShare() error
	CloseLink(remote domain.UserID)
	CloseAll()
	LinkState(remote domain.UserID) domain.LinkState
	Links() []domain.UserID
}

// MediaController owns the local capture tracks. Toggles flip the enabled
// gate only; they never renegotiate.
type MediaController interface {
	Acquire(ctx context.Context) error
	Tracks() []webrtc.TrackLocal
	ToggleAudio() bool
	ToggleVideo() bool
	AudioEnabled() bool
	VideoEnabled() bool
	AcquireScreen(ctx context.Context) (webrtc.TrackLocal, error)
	StopScreen()
	Close() error
}

// Recorder captures local media into chunked buffers and uploads the
// finalized blob.
type Recorder interface {
	OnStatusChange(fn func(recording bool))
	Start(ctx context.Context, source domain.RecordingSource) error
	Stop() (*domain.RecordingBlob, error)
	Upload(ctx context.Context, blob *domain.RecordingBlob) error
	Active() bool
	LastBlob() *domain.RecordingBlob
}
