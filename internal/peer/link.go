package peer

import (
	"fmt"
	"sync"
	"time"

	"studylink/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// peerConn is the slice of *webrtc.PeerConnection the link needs. Tests
// substitute a fake; production always uses pion.
type peerConn interface {
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	RemoveTrack(*webrtc.RTPSender) error
	Close() error
}

// TrackLabel classifies a remote track for the UI layer.
type TrackLabel string

const (
	TrackMicrophone TrackLabel = "microphone"
	TrackCamera     TrackLabel = "camera"
	TrackScreen     TrackLabel = "screen"
)

// Link is the negotiation state machine for one remote participant.
// Exactly one Link exists per remote; it is created when the participant
// is first seen and destroyed on leave or fatal connection failure.
type Link struct {
	remoteID  domain.UserID
	initiator bool

	mu           sync.Mutex
	pc           peerConn
	state        domain.LinkState
	pending      []webrtc.ICECandidateInit
	senders      map[TrackLabel]*webrtc.RTPSender
	screenSender *webrtc.RTPSender

	// primaryVideoID remembers the first remote video track so a later
	// second video track is classified as screen by identity, never by
	// arrival order.
	primaryVideoID string

	graceTimer *time.Timer
}

func newLink(remoteID domain.UserID, initiator bool, pc peerConn) *Link {
	return &Link{
		remoteID:  remoteID,
		initiator: initiator,
		pc:        pc,
		state:     domain.LinkIdle,
		senders:   make(map[TrackLabel]*webrtc.RTPSender),
	}
}

// State returns the current negotiation state.
func (l *Link) State() domain.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Initiator reports whether this side creates offers for the link.
func (l *Link) Initiator() bool { return l.initiator }

// createOffer runs a local offer round. Only the initiating side may call
// it; the other side requests renegotiation instead.
func (l *Link) createOffer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initiator {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: non-initiator must not offer", domain.ErrNegotiationFailed)
	}
	if l.state == domain.LinkClosed {
		return webrtc.SessionDescription{}, domain.ErrPeerNotFound
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer: %v", domain.ErrNegotiationFailed, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local offer: %v", domain.ErrNegotiationFailed, err)
	}

	if l.state == domain.LinkConnected {
		l.state = domain.LinkRenegotiating
	} else {
		l.state = domain.LinkNegotiating
	}
	return offer, nil
}

// handleOffer applies a remote offer and produces the answer. Queued ICE
// candidates are flushed once the remote description is in place.
func (l *Link) handleOffer(sdp string) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == domain.LinkClosed {
		return webrtc.SessionDescription{}, domain.ErrPeerNotFound
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set remote offer: %v", domain.ErrNegotiationFailed, err)
	}
	l.flushCandidatesLocked()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer: %v", domain.ErrNegotiationFailed, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local answer: %v", domain.ErrNegotiationFailed, err)
	}

	if l.state != domain.LinkConnected && l.state != domain.LinkRenegotiating {
		l.state = domain.LinkNegotiating
	}
	return answer, nil
}

// handleAnswer completes an offer round started by this side.
func (l *Link) handleAnswer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == domain.LinkClosed {
		return domain.ErrPeerNotFound
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", domain.ErrNegotiationFailed, err)
	}
	l.flushCandidatesLocked()
	return nil
}

// addCandidate applies a remote ICE candidate, queueing it if it arrives
// before the remote description. Early candidates are never dropped.
func (l *Link) addCandidate(cand webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == domain.LinkClosed {
		return domain.ErrPeerNotFound
	}
	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, cand)
		return nil
	}
	if err := l.pc.AddICECandidate(cand); err != nil {
		return fmt.Errorf("%w: add candidate: %v", domain.ErrNegotiationFailed, err)
	}
	return nil
}

func (l *Link) flushCandidatesLocked() {
	for _, cand := range l.pending {
		// A bad queued candidate only costs one network path.
		l.pc.AddICECandidate(cand)
	}
	l.pending = nil
}

// classifyRemoteTrack labels an incoming track by kind and identity.
func (l *Link) classifyRemoteTrack(track *webrtc.TrackRemote) TrackLabel {
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		return TrackMicrophone
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.primaryVideoID == "" || l.primaryVideoID == track.ID() {
		l.primaryVideoID = track.ID()
		return TrackCamera
	}
	return TrackScreen
}

func (l *Link) attachTrack(label TrackLabel, track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("%w: add %s track: %v", domain.ErrNegotiationFailed, label, err)
	}
	if label == TrackScreen {
		l.screenSender = sender
	} else {
		l.senders[label] = sender
	}
	return sender, nil
}

func (l *Link) detachScreen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.screenSender == nil {
		return nil
	}
	err := l.pc.RemoveTrack(l.screenSender)
	l.screenSender = nil
	if err != nil {
		return fmt.Errorf("%w: remove screen track: %v", domain.ErrNegotiationFailed, err)
	}
	return nil
}

func (l *Link) markConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelGraceLocked()
	if l.state != domain.LinkClosed {
		l.state = domain.LinkConnected
	}
}

// scheduleGrace arms the disconnect grace timer; expire runs only if the
// link never recovered.
func (l *Link) scheduleGrace(window time.Duration, expire func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == domain.LinkClosed || l.graceTimer != nil {
		return
	}
	l.graceTimer = time.AfterFunc(window, expire)
}

func (l *Link) cancelGraceLocked() {
	if l.graceTimer != nil {
		l.graceTimer.Stop()
		l.graceTimer = nil
	}
}

func (l *Link) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == domain.LinkClosed {
		return
	}
	l.cancelGraceLocked()
	l.state = domain.LinkClosed
	l.pending = nil
	l.pc.Close()
}
