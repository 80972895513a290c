package peer

import (
	"fmt"
	"sync"
	"time"

	"studylink/internal/core/domain"
	"studylink/internal/signaling"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ManagerConfig tunes peer connection creation and failure handling.
type ManagerConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// DisconnectGrace is how long a link may sit in the disconnected
	// state before it is treated as failed and torn down.
	DisconnectGrace time.Duration
}

func DefaultManagerConfig() ManagerConfig {
	cfg := ManagerConfig{DisconnectGrace: 10 * time.Second}
	cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	return cfg
}

// RemoteTrackHandler receives classified remote tracks for the UI layer.
type RemoteTrackHandler func(remote domain.UserID, label TrackLabel, track *webrtc.TrackRemote)

// Manager owns every PeerLink of the session and drives the
// offer/answer/candidate exchange through the signaling send function.
type Manager struct {
	localID domain.UserID
	cfg     ManagerConfig
	send    func(signaling.Message)
	logger  *zap.SugaredLogger

	connFactory func() (peerConn, error)

	onRemoteTrack RemoteTrackHandler
	onLinkClosed  func(remote domain.UserID)

	mu          sync.RWMutex
	links       map[domain.UserID]*Link
	localTracks []webrtc.TrackLocal
}

func NewManager(localID domain.UserID, cfg ManagerConfig, send func(signaling.Message), logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Manager{
		localID: localID,
		cfg:     cfg,
		send:    send,
		logger:  logger,
		links:   make(map[domain.UserID]*Link),
	}
	m.connFactory = m.newPeerConnection
	return m
}

// OnRemoteTrack registers the remote track callback.
func (m *Manager) OnRemoteTrack(h RemoteTrackHandler) { m.onRemoteTrack = h }

// OnLinkClosed registers the teardown callback, used by the orchestrator
// to clear the remote media UI.
func (m *Manager) OnLinkClosed(fn func(remote domain.UserID)) { m.onLinkClosed = fn }

// SetLocalTracks installs the local tracks attached to every new link.
// Labels are inferred from the track kind; the screen track is managed
// separately via StartScreenShare.
func (m *Manager) SetLocalTracks(tracks []webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localTracks = tracks
}

func (m *Manager) newPeerConnection() (peerConn, error) {
	se := webrtc.SettingEngine{}
	if m.cfg.PortRange.Min > 0 && m.cfg.PortRange.Max > 0 {
		if err := se.SetEphemeralUDPPortRange(m.cfg.PortRange.Min, m.cfg.PortRange.Max); err != nil {
			return nil, err
		}
	}
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se), webrtc.WithMediaEngine(me))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: m.cfg.ICEServers})
}

// CreateLink builds the link for a newly seen participant. When this side
// is the initiator per the offer policy, the first offer is sent
// immediately; otherwise the link waits for the remote offer.
func (m *Manager) CreateLink(remote domain.UserID, initiator bool) error {
	m.mu.Lock()
	if _, exists := m.links[remote]; exists {
		m.mu.Unlock()
		return nil // repeated join events are idempotent
	}

	pc, err := m.connFactory()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: create peer connection: %v", domain.ErrNegotiationFailed, err)
	}

	link := newLink(remote, initiator, pc)
	m.links[remote] = link
	tracks := m.localTracks
	m.mu.Unlock()

	m.bindCallbacks(link, pc)

	for _, track := range tracks {
		label := TrackCamera
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			label = TrackMicrophone
		}
		sender, err := link.attachTrack(label, track)
		if err != nil {
			m.logger.Warnw("failed to attach local track", "remote", remote, "label", label, "error", err)
			continue
		}
		m.drainSenderRTCP(remote, sender)
	}

	m.logger.Infow("peer link created", "remote", remote, "initiator", initiator)

	if initiator {
		return m.sendOffer(link)
	}
	return nil
}

func (m *Manager) bindCallbacks(link *Link, pc peerConn) {
	remote := link.remoteID

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		m.send(&signaling.WebRTCSignal{
			TargetUserID: remote,
			Signal:       signaling.SignalPayload{Type: signaling.SignalICECandidate, Candidate: &init},
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		label := link.classifyRemoteTrack(track)
		m.logger.Infow("remote track", "remote", remote, "label", label, "track_id", track.ID(), "codec", track.Codec().MimeType)
		if m.onRemoteTrack != nil {
			m.onRemoteTrack(remote, label, track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Infow("peer connection state", "remote", remote, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			link.markConnected()
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			m.teardown(remote)
		case webrtc.PeerConnectionStateDisconnected:
			link.scheduleGrace(m.cfg.DisconnectGrace, func() {
				if link.State() != domain.LinkConnected {
					m.logger.Infow("disconnect grace expired", "remote", remote)
					m.teardown(remote)
				}
			})
		}
	})
}

func (m *Manager) sendOffer(link *Link) error {
	offer, err := link.createOffer()
	if err != nil {
		return err
	}
	m.send(&signaling.WebRTCSignal{
		TargetUserID: link.remoteID,
		Signal:       signaling.SignalPayload{Type: signaling.SignalOffer, SDP: offer.SDP},
	})
	return nil
}

// HandleSignal routes an inbound webrtc_signal payload to the right link.
// Negotiation failures affect only the one link, never the session.
func (m *Manager) HandleSignal(from domain.UserID, sig signaling.SignalPayload) error {
	link := m.link(from)
	if link == nil {
		// An offer may arrive before the join event; answer-side links
		// are created on demand.
		if sig.Type != signaling.SignalOffer {
			return domain.ErrPeerNotFound
		}
		if err := m.CreateLink(from, false); err != nil {
			return err
		}
		link = m.link(from)
		if link == nil {
			return domain.ErrPeerNotFound
		}
	}

	switch sig.Type {
	case signaling.SignalOffer:
		answer, err := link.handleOffer(sig.SDP)
		if err != nil {
			return err
		}
		m.send(&signaling.WebRTCSignal{
			TargetUserID: from,
			Signal:       signaling.SignalPayload{Type: signaling.SignalAnswer, SDP: answer.SDP},
		})
		return nil
	case signaling.SignalAnswer:
		return link.handleAnswer(sig.SDP)
	case signaling.SignalICECandidate:
		if sig.Candidate == nil {
			return fmt.Errorf("%w: candidate payload missing", domain.ErrNegotiationFailed)
		}
		return link.addCandidate(*sig.Candidate)
	default:
		return fmt.Errorf("%w: unknown signal type %q", domain.ErrNegotiationFailed, sig.Type)
	}
}

// Renegotiate re-runs the offer round for one link. Called when the
// remote, non-initiating side changed its track set and asked us to
// drive the exchange.
func (m *Manager) Renegotiate(remote domain.UserID) error {
	link := m.link(remote)
	if link == nil {
		return domain.ErrPeerNotFound
	}
	if !link.Initiator() {
		// Both sides deferring would deadlock; only the initiator may
		// honor a renegotiate request.
		return fmt.Errorf("%w: renegotiate requested from non-initiator", domain.ErrNegotiationFailed)
	}
	return m.sendOffer(link)
}

// StartScreenShare attaches the screen track to every link as a separate
// sender. The camera sender is untouched, so the primary feed is not
// disrupted on the remote side.
func (m *Manager) StartScreenShare(track webrtc.TrackLocal) error {
	var firstErr error
	for _, link := range m.snapshot() {
		sender, err := link.attachTrack(TrackScreen, track)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.drainSenderRTCP(link.remoteID, sender)
		m.renegotiateLink(link)
	}
	return firstErr
}

// StopScreenShare removes the screen sender from every link.
func (m *Manager) StopScreenShare() error {
	var firstErr error
	for _, link := range m.snapshot() {
		if err := link.detachScreen(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.renegotiateLink(link)
	}
	return firstErr
}

// renegotiateLink starts a fresh offer round after a track change. The
// non-initiating side must not offer; it asks the initiator instead.
func (m *Manager) renegotiateLink(link *Link) {
	if link.Initiator() {
		if err := m.sendOffer(link); err != nil {
			m.logger.Warnw("renegotiation offer failed", "remote", link.remoteID, "error", err)
		}
		return
	}
	m.send(&signaling.Renegotiate{TargetUserID: link.remoteID})
}

// drainSenderRTCP reads RTCP from a sender so feedback (PLI, NACK) is
// observed instead of backing up the interceptor chain.
func (m *Manager) drainSenderRTCP(remote domain.UserID, sender *webrtc.RTPSender) {
	if sender == nil {
		return
	}
	go func() {
		for {
			packets, _, err := sender.ReadRTCP()
			if err != nil {
				return
			}
			for _, packet := range packets {
				switch p := packet.(type) {
				case *rtcp.PictureLossIndication:
					m.logger.Debugw("received PLI", "remote", remote)
				case *rtcp.TransportLayerNack:
					m.logger.Debugw("received NACK", "remote", remote, "nacks", len(p.Nacks))
				}
			}
		}
	}()
}

func (m *Manager) link(remote domain.UserID) *Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.links[remote]
}

func (m *Manager) snapshot() []*Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

func (m *Manager) teardown(remote domain.UserID) {
	m.mu.Lock()
	link, exists := m.links[remote]
	if exists {
		delete(m.links, remote)
	}
	m.mu.Unlock()

	if !exists {
		return
	}
	link.close()
	m.logger.Infow("peer link closed", "remote", remote)
	if m.onLinkClosed != nil {
		m.onLinkClosed(remote)
	}
}

// CloseLink tears down one link (participant left).
func (m *Manager) CloseLink(remote domain.UserID) { m.teardown(remote) }

// CloseAll tears down every link during session cleanup.
func (m *Manager) CloseAll() {
	for _, link := range m.snapshot() {
		m.teardown(link.remoteID)
	}
}

// LinkState reports the negotiation state for one remote, or LinkClosed
// if no link exists.
func (m *Manager) LinkState(remote domain.UserID) domain.LinkState {
	link := m.link(remote)
	if link == nil {
		return domain.LinkClosed
	}
	return link.State()
}

// Links lists the remotes with an open link.
func (m *Manager) Links() []domain.UserID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.UserID, 0, len(m.links))
	for id := range m.links {
		out = append(out, id)
	}
	return out
}
