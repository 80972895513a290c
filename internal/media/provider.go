package media

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Source produces packetized media. ReadRTP blocks until the next packet
// is due, mirroring how a live capture pipeline pacing works.
type Source interface {
	ReadRTP() (*rtp.Packet, error)
	Close() error
}

// CaptureProvider opens local capture devices. Implementations report
// missing devices or denied permission as domain.ErrMediaUnavailable and
// a declined screen prompt as domain.ErrScreenShareCancelled — both are
// ordinary outcomes the session degrades around.
type CaptureProvider interface {
	OpenMicrophone(ctx context.Context) (Source, webrtc.RTPCodecCapability, error)
	OpenCamera(ctx context.Context) (Source, webrtc.RTPCodecCapability, error)
	OpenScreen(ctx context.Context) (Source, webrtc.RTPCodecCapability, error)
}

// SyntheticProvider generates silence/test-pattern packets. Used by the
// headless client binary and by tests.
type SyntheticProvider struct{}

func NewSyntheticProvider() *SyntheticProvider { return &SyntheticProvider{} }

func (p *SyntheticProvider) OpenMicrophone(ctx context.Context) (Source, webrtc.RTPCodecCapability, error) {
	cap := webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}
	// 0xFC: Opus TOC for a silence frame.
	return newSyntheticSource(20*time.Millisecond, 960, 111, []byte{0xFC, 0xFF, 0xFE}), cap, nil
}

func (p *SyntheticProvider) OpenCamera(ctx context.Context) (Source, webrtc.RTPCodecCapability, error) {
	cap := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	return newSyntheticSource(33*time.Millisecond, 3000, 96, make([]byte, 64)), cap, nil
}

func (p *SyntheticProvider) OpenScreen(ctx context.Context) (Source, webrtc.RTPCodecCapability, error) {
	cap := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	return newSyntheticSource(33*time.Millisecond, 3000, 96, make([]byte, 64)), cap, nil
}

// syntheticSource emits one fixed payload per frame interval with
// monotonic sequence numbers and timestamps.
type syntheticSource struct {
	interval  time.Duration
	tsStep    uint32
	payloadTy uint8
	payload   []byte

	mu        sync.Mutex
	seq       uint16
	timestamp uint32
	closed    bool
	ticker    *time.Ticker
	done      chan struct{}
}

func newSyntheticSource(interval time.Duration, tsStep uint32, payloadType uint8, payload []byte) *syntheticSource {
	return &syntheticSource{
		interval:  interval,
		tsStep:    tsStep,
		payloadTy: payloadType,
		payload:   payload,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
	}
}

func (s *syntheticSource) ReadRTP() (*rtp.Packet, error) {
	select {
	case <-s.done:
		return nil, context.Canceled
	case <-s.ticker.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, context.Canceled
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.payloadTy,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
		},
		Payload: append([]byte(nil), s.payload...),
	}
	s.seq++
	s.timestamp += s.tsStep
	return pkt, nil
}

func (s *syntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ticker.Stop()
	close(s.done)
	return nil
}
