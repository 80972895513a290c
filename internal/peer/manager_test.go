package peer

import (
	"sync"
	"testing"

	"studylink/internal/core/domain"
	"studylink/internal/signaling"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn satisfies peerConn without any networking.
type fakeConn struct {
	mu         sync.Mutex
	remoteDesc *webrtc.SessionDescription
	localDesc  *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	removed    int
	closed     bool

	onState func(webrtc.PeerConnectionState)
}

func (f *fakeConn) OnICECandidate(func(*webrtc.ICECandidate))                {}
func (f *fakeConn) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))   {}
func (f *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakeConn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeConn) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeConn) SetLocalDescription(sd webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localDesc = &sd
	return nil
}

func (f *fakeConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDesc = &sd
	return nil
}

func (f *fakeConn) RemoteDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteDesc
}

func (f *fakeConn) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeConn) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) { return nil, nil }

func (f *fakeConn) RemoveTrack(*webrtc.RTPSender) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) candidateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candidates)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// sentRecorder captures outbound signaling messages.
type sentRecorder struct {
	mu   sync.Mutex
	msgs []signaling.Message
}

func (r *sentRecorder) send(msg signaling.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *sentRecorder) all() []signaling.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]signaling.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *sentRecorder) signals() []*signaling.WebRTCSignal {
	var out []*signaling.WebRTCSignal
	for _, m := range r.all() {
		if s, ok := m.(*signaling.WebRTCSignal); ok {
			out = append(out, s)
		}
	}
	return out
}

// connTracker hands out fakes and remembers the most recent one.
type connTracker struct {
	mu   sync.Mutex
	last *fakeConn
}

func (ct *connTracker) factory() (peerConn, error) {
	fc := &fakeConn{}
	ct.mu.Lock()
	ct.last = fc
	ct.mu.Unlock()
	return fc, nil
}

func (ct *connTracker) lastConn() *fakeConn {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.last
}

func newTestManager(t *testing.T) (*Manager, *sentRecorder, *connTracker) {
	t.Helper()
	rec := &sentRecorder{}
	tracker := &connTracker{}
	m := NewManager("local", DefaultManagerConfig(), rec.send, nil)
	m.connFactory = tracker.factory
	return m, rec, tracker
}

func TestCreateLinkInitiatorSendsOffer(t *testing.T) {
	m, rec, _ := newTestManager(t)

	require.NoError(t, m.CreateLink("bob", true))

	sigs := rec.signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.UserID("bob"), sigs[0].TargetUserID)
	assert.Equal(t, signaling.SignalOffer, sigs[0].Signal.Type)
	assert.Equal(t, "offer-sdp", sigs[0].Signal.SDP)
	assert.Equal(t, domain.LinkNegotiating, m.LinkState("bob"))
}

func TestCreateLinkNonInitiatorWaits(t *testing.T) {
	m, rec, _ := newTestManager(t)

	require.NoError(t, m.CreateLink("bob", false))

	assert.Empty(t, rec.signals(), "non-initiator must not offer")
	assert.Equal(t, domain.LinkIdle, m.LinkState("bob"))
}

func TestCreateLinkIsIdempotent(t *testing.T) {
	m, rec, _ := newTestManager(t)

	require.NoError(t, m.CreateLink("bob", true))
	require.NoError(t, m.CreateLink("bob", true))

	assert.Len(t, rec.signals(), 1, "repeated join must not re-offer")
	assert.Len(t, m.Links(), 1)
}

func TestInboundOfferProducesAnswer(t *testing.T) {
	m, rec, tracker := newTestManager(t)
	require.NoError(t, m.CreateLink("bob", false))
	fc := tracker.lastConn()

	err := m.HandleSignal("bob", signaling.SignalPayload{Type: signaling.SignalOffer, SDP: "remote-offer"})
	require.NoError(t, err)

	sigs := rec.signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, signaling.SignalAnswer, sigs[0].Signal.Type)
	assert.Equal(t, "answer-sdp", sigs[0].Signal.SDP)
	require.NotNil(t, fc.RemoteDescription())
	assert.Equal(t, "remote-offer", fc.RemoteDescription().SDP)
}

func TestEarlyOfferCreatesAnswerSideLink(t *testing.T) {
	m, rec, _ := newTestManager(t)

	// No CreateLink yet: the offer arrives before the join event.
	err := m.HandleSignal("carol", signaling.SignalPayload{Type: signaling.SignalOffer, SDP: "early-offer"})
	require.NoError(t, err)

	assert.Contains(t, m.Links(), domain.UserID("carol"))
	sigs := rec.signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, signaling.SignalAnswer, sigs[0].Signal.Type)
}

func TestNonOfferSignalForUnknownPeerFails(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.HandleSignal("ghost", signaling.SignalPayload{Type: signaling.SignalAnswer, SDP: "x"})
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
}

func TestCandidatesQueueUntilRemoteDescription(t *testing.T) {
	m, _, tracker := newTestManager(t)
	require.NoError(t, m.CreateLink("bob", false))
	fc := tracker.lastConn()

	early := webrtc.ICECandidateInit{Candidate: "candidate:early"}
	require.NoError(t, m.HandleSignal("bob", signaling.SignalPayload{
		Type: signaling.SignalICECandidate, Candidate: &early,
	}))
	assert.Zero(t, fc.candidateCount(), "candidate must be queued, not applied")

	require.NoError(t, m.HandleSignal("bob", signaling.SignalPayload{
		Type: signaling.SignalOffer, SDP: "remote-offer",
	}))
	assert.Equal(t, 1, fc.candidateCount(), "queued candidate must flush after remote description")

	late := webrtc.ICECandidateInit{Candidate: "candidate:late"}
	require.NoError(t, m.HandleSignal("bob", signaling.SignalPayload{
		Type: signaling.SignalICECandidate, Candidate: &late,
	}))
	assert.Equal(t, 2, fc.candidateCount(), "post-description candidates apply immediately")
}

func TestMissingCandidatePayloadIsError(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.CreateLink("bob", true))

	err := m.HandleSignal("bob", signaling.SignalPayload{Type: signaling.SignalICECandidate})
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
}

func TestRenegotiateOnlyFromInitiator(t *testing.T) {
	m, rec, _ := newTestManager(t)

	require.NoError(t, m.CreateLink("bob", false))
	err := m.Renegotiate("bob")
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed, "non-initiator must refuse to offer")

	require.NoError(t, m.CreateLink("dan", true))
	before := len(rec.signals())
	require.NoError(t, m.Renegotiate("dan"))
	sigs := rec.signals()
	require.Len(t, sigs, before+1)
	assert.Equal(t, signaling.SignalOffer, sigs[len(sigs)-1].Signal.Type)
}

func TestScreenShareRenegotiationRespectsRoles(t *testing.T) {
	m, rec, _ := newTestManager(t)
	require.NoError(t, m.CreateLink("init-side", true))
	require.NoError(t, m.CreateLink("answer-side", false))
	rec.mu.Lock()
	rec.msgs = nil
	rec.mu.Unlock()

	require.NoError(t, m.StartScreenShare(nil))

	var offers, renegotiates int
	for _, msg := range rec.all() {
		switch v := msg.(type) {
		case *signaling.WebRTCSignal:
			if v.Signal.Type == signaling.SignalOffer {
				assert.Equal(t, domain.UserID("init-side"), v.TargetUserID)
				offers++
			}
		case *signaling.Renegotiate:
			assert.Equal(t, domain.UserID("answer-side"), v.TargetUserID)
			renegotiates++
		}
	}
	assert.Equal(t, 1, offers, "initiator link re-offers directly")
	assert.Equal(t, 1, renegotiates, "non-initiator link asks the remote to offer")
}

func TestCloseAllTearsDownEverything(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.CreateLink("bob", true))
	require.NoError(t, m.CreateLink("carol", false))

	var closedMu sync.Mutex
	var closed []domain.UserID
	m.OnLinkClosed(func(remote domain.UserID) {
		closedMu.Lock()
		closed = append(closed, remote)
		closedMu.Unlock()
	})

	m.CloseAll()

	assert.Empty(t, m.Links())
	closedMu.Lock()
	assert.Len(t, closed, 2)
	closedMu.Unlock()
	assert.Equal(t, domain.LinkClosed, m.LinkState("bob"))
}

func TestFailureTeardownAffectsOnlyOneLink(t *testing.T) {
	m, _, tracker := newTestManager(t)
	require.NoError(t, m.CreateLink("bob", true))
	bobConn := tracker.lastConn()
	require.NoError(t, m.CreateLink("carol", true))

	bobConn.onState(webrtc.PeerConnectionStateFailed)

	assert.NotContains(t, m.Links(), domain.UserID("bob"))
	assert.Contains(t, m.Links(), domain.UserID("carol"))
	assert.True(t, bobConn.isClosed())
}

func TestNonInitiatorCannotCreateOffer(t *testing.T) {
	link := newLink("bob", false, &fakeConn{})
	_, err := link.createOffer()
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
}

func TestClosedLinkRejectsNegotiation(t *testing.T) {
	link := newLink("bob", true, &fakeConn{})
	link.close()

	_, err := link.createOffer()
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
	_, err = link.handleOffer("sdp")
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
	assert.ErrorIs(t, link.handleAnswer("sdp"), domain.ErrPeerNotFound)
	assert.ErrorIs(t, link.addCandidate(webrtc.ICECandidateInit{}), domain.ErrPeerNotFound)
}
