package signaling

import (
	"encoding/json"
	"fmt"

	"studylink/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// Kind tags an envelope on the wire.
type Kind string

const (
	KindUserJoined      Kind = "user_joined"
	KindUserLeft        Kind = "user_left"
	KindWebRTCSignal    Kind = "webrtc_signal"
	KindChat            Kind = "chat"
	KindScreenShare     Kind = "screen_share"
	KindRecordingStatus Kind = "recording_status"
	KindWhiteboard      Kind = "whiteboard"
	KindReaction        Kind = "reaction"
	KindHandRaise       Kind = "hand_raise"
	KindRenegotiate     Kind = "renegotiate"
	KindMeetingEnd      Kind = "meeting_end"
)

// Envelope is the wire frame: one JSON object per message, dispatched by
// the type field. From is stamped by the relay and empty on outbound
// frames.
type Envelope struct {
	Type    Kind            `json:"type"`
	From    domain.UserID   `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is the decoded payload of an envelope. The set of
// implementations is closed: adding a wire kind means adding a struct
// here and a case to Decode, which keeps dispatch exhaustive.
type Message interface {
	Kind() Kind
}

type UserJoined struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
}

type UserLeft struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username,omitempty"`
}

// SignalType discriminates the inner webrtc_signal payload.
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

type SignalPayload struct {
	Type      SignalType               `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

type WebRTCSignal struct {
	TargetUserID domain.UserID `json:"target_user_id"`
	Signal       SignalPayload `json:"signal"`
}

type ChatFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Data []byte `json:"data"`
}

type Chat struct {
	Message string    `json:"message"`
	File    *ChatFile `json:"file,omitempty"`
}

type ScreenShare struct {
	IsSharing bool `json:"is_sharing"`
}

type RecordingStatus struct {
	IsRecording bool `json:"is_recording"`
}

type WhiteboardAction string

const (
	ActionStroke WhiteboardAction = "stroke"
	ActionShape  WhiteboardAction = "shape"
	ActionText   WhiteboardAction = "text"
	ActionClear  WhiteboardAction = "clear"
)

// Whiteboard carries exactly one record matching Action; clear carries
// none and is scoped to the sender's identity on receipt.
type Whiteboard struct {
	Action WhiteboardAction     `json:"action"`
	Stroke *domain.StrokeRecord `json:"stroke,omitempty"`
	Shape  *domain.ShapeRecord  `json:"shape,omitempty"`
	Text   *domain.TextRecord   `json:"text,omitempty"`
}

type Reaction struct {
	Emoji string `json:"emoji"`
}

type HandRaise struct {
	IsRaised bool `json:"is_raised"`
}

// Renegotiate asks the link initiator to run a fresh offer round. Sent by
// the non-initiating side when its track set changes.
type Renegotiate struct {
	TargetUserID domain.UserID `json:"target_user_id"`
}

type MeetingEnd struct{}

func (UserJoined) Kind() Kind      { return KindUserJoined }
func (UserLeft) Kind() Kind        { return KindUserLeft }
func (WebRTCSignal) Kind() Kind    { return KindWebRTCSignal }
func (Chat) Kind() Kind            { return KindChat }
func (ScreenShare) Kind() Kind     { return KindScreenShare }
func (RecordingStatus) Kind() Kind { return KindRecordingStatus }
func (Whiteboard) Kind() Kind      { return KindWhiteboard }
func (Reaction) Kind() Kind        { return KindReaction }
func (HandRaise) Kind() Kind       { return KindHandRaise }
func (Renegotiate) Kind() Kind     { return KindRenegotiate }
func (MeetingEnd) Kind() Kind      { return KindMeetingEnd }

// Encode wraps a message into a wire envelope.
func Encode(from domain.UserID, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Kind(), err)
	}
	return json.Marshal(Envelope{Type: msg.Kind(), From: from, Payload: payload})
}

// Decode parses a wire frame and returns the sender plus the typed
// message. Unknown kinds are an error so the caller can drop the frame
// without guessing.
func Decode(data []byte) (domain.UserID, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}
	msg, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return "", nil, err
	}
	return env.From, msg, nil
}

func decodePayload(kind Kind, payload json.RawMessage) (Message, error) {
	var msg Message
	switch kind {
	case KindUserJoined:
		msg = &UserJoined{}
	case KindUserLeft:
		msg = &UserLeft{}
	case KindWebRTCSignal:
		msg = &WebRTCSignal{}
	case KindChat:
		msg = &Chat{}
	case KindScreenShare:
		msg = &ScreenShare{}
	case KindRecordingStatus:
		msg = &RecordingStatus{}
	case KindWhiteboard:
		msg = &Whiteboard{}
	case KindReaction:
		msg = &Reaction{}
	case KindHandRaise:
		msg = &HandRaise{}
	case KindRenegotiate:
		msg = &Renegotiate{}
	case KindMeetingEnd:
		return &MeetingEnd{}, nil
	default:
		return nil, fmt.Errorf("unknown envelope kind %q", kind)
	}

	if len(payload) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return msg, nil
}
