package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studylink/internal/core/domain"
	"studylink/internal/core/ports"
	"studylink/internal/peer"
	"studylink/internal/signaling"
	"studylink/internal/whiteboard"

	"go.uber.org/zap"
)

// State is the top-level session state driven by the orchestrator.
type State string

const (
	StateLoading       State = "loading"
	StateAwaitingStart State = "awaiting_start"
	StateJoined        State = "joined"
	StateActive        State = "active"
	StateEnded         State = "ended"
)

// EventKind labels events surfaced to the UI layer.
type EventKind string

const (
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventChat              EventKind = "chat"
	EventReaction          EventKind = "reaction"
	EventHandRaise         EventKind = "hand_raise"
	EventScreenShare       EventKind = "screen_share"
	EventScreenShareDenied EventKind = "screen_share_denied"
	EventRecordingStatus   EventKind = "recording_status"
	EventUploadFailed      EventKind = "upload_failed"
	EventSignalingState    EventKind = "signaling_state"
	EventMeetingEnded      EventKind = "meeting_ended"
)

// Event is a UI-facing notification. Fields are populated per kind.
type Event struct {
	Kind        EventKind
	From        domain.UserID
	Participant *domain.Participant
	Chat        *signaling.Chat
	Emoji       string
	Flag        bool
	Err         error
}

// Config for one meeting session.
type Config struct {
	MeetingID domain.MeetingID
	UserID    domain.UserID
	Username  string
	// UploadTimeout bounds the best-effort upload during Leave so a
	// failing backend cannot block navigation.
	UploadTimeout time.Duration
}

// Orchestrator wires signaling, peer links, media, whiteboard and
// recording into one session with a defined construction and teardown
// lifecycle. All session state lives here, never in package globals, so
// a leave fully disposes the session and tests can run rooms in
// parallel.
type Orchestrator struct {
	cfg      Config
	channel  ports.Signaling
	peers    ports.PeerManager
	media    ports.MediaController
	recorder ports.Recorder
	board    *whiteboard.Sync
	fetcher  DetailsFetcher
	policy   peer.OfferPolicy
	logger   *zap.SugaredLogger

	onEvent func(Event)

	mu           sync.Mutex
	state        State
	hostID       domain.UserID
	startedAt    time.Time
	localJoined  time.Time
	screenShared bool

	roster *Roster
}

func NewOrchestrator(
	cfg Config,
	channel ports.Signaling,
	peers ports.PeerManager,
	media ports.MediaController,
	recorder ports.Recorder,
	board *whiteboard.Sync,
	fetcher DetailsFetcher,
	logger *zap.SugaredLogger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 10 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		channel:  channel,
		peers:    peers,
		media:    media,
		recorder: recorder,
		board:    board,
		fetcher:  fetcher,
		policy:   peer.DefaultOfferPolicy,
		logger:   logger,
		state:    StateLoading,
		roster:   NewRoster(),
	}
}

// OnEvent registers the UI event callback.
func (o *Orchestrator) OnEvent(fn func(Event)) { o.onEvent = fn }

// State returns the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Roster exposes the participant set.
func (o *Orchestrator) Roster() *Roster { return o.roster }

// IsHost reports whether the local user hosts this meeting.
func (o *Orchestrator) IsHost() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hostID == o.cfg.UserID
}

// Elapsed is the meeting run time, computed from the single absolute
// start timestamp so restarts of the display tick cannot drift it.
func (o *Orchestrator) Elapsed() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startedAt.IsZero() {
		return 0
	}
	return time.Since(o.startedAt)
}

// Join runs the session load sequence: details snapshot, local media,
// signaling connect, and links for the participants already in the room.
// Media being unavailable degrades to audio/video-off; only a failed
// signaling connect aborts the join.
func (o *Orchestrator) Join(ctx context.Context) error {
	var details *domain.MeetingDetails
	if o.fetcher != nil {
		d, err := o.fetcher.Fetch(ctx, o.cfg.MeetingID)
		if err != nil {
			return fmt.Errorf("load meeting details: %w", err)
		}
		details = d
	}

	if err := o.media.Acquire(ctx); err != nil {
		if !errors.Is(err, domain.ErrMediaUnavailable) {
			return err
		}
		o.logger.Warnw("joining without local media", "error", err)
	}
	o.peers.SetLocalTracks(o.media.Tracks())

	o.channel.OnMessage(o.handle)
	o.channel.OnStateChange(func(connected bool) {
		o.emit(Event{Kind: EventSignalingState, Flag: connected})
	})
	if o.recorder != nil {
		o.recorder.OnStatusChange(func(rec bool) {
			o.channel.Send(&signaling.RecordingStatus{IsRecording: rec})
		})
	}

	if err := o.channel.Connect(ctx); err != nil {
		return err
	}

	now := time.Now()
	o.mu.Lock()
	o.localJoined = now
	if details != nil {
		o.hostID = details.HostID
		if !details.StartedAt.IsZero() {
			o.startedAt = details.StartedAt
		}
	}
	if o.startedAt.IsZero() {
		o.startedAt = now
	}
	host := o.hostID
	o.mu.Unlock()

	local := domain.Participant{
		UserID:   o.cfg.UserID,
		Username: o.cfg.Username,
		Role:     roleFor(o.cfg.UserID, host),
		JoinedAt: now,
		Media: domain.MediaState{
			AudioEnabled: o.media.AudioEnabled(),
			VideoEnabled: o.media.VideoEnabled(),
		},
	}
	o.roster.Add(local)

	// Participants already in the room initiated toward us per the
	// offer policy; their links wait for the remote offer.
	if details != nil {
		for _, p := range details.Participants {
			if p.UserID == o.cfg.UserID {
				continue
			}
			o.roster.Add(p)
			if err := o.peers.CreateLink(p.UserID, o.policy(local, p)); err != nil {
				o.logger.Warnw("link creation failed for existing participant", "remote", p.UserID, "error", err)
			}
		}
	}

	o.mu.Lock()
	if details != nil && details.Phase == domain.PhaseScheduled && host != o.cfg.UserID {
		o.state = StateAwaitingStart
	} else {
		o.state = StateActive
	}
	o.mu.Unlock()

	o.logger.Infow("joined meeting", "meeting_id", o.cfg.MeetingID, "user_id", o.cfg.UserID, "host", host == o.cfg.UserID)
	return nil
}

// handle dispatches one inbound envelope. The switch is exhaustive over
// the signaling message set; unknown kinds never reach here because
// Decode rejects them.
func (o *Orchestrator) handle(from domain.UserID, msg signaling.Message) {
	switch m := msg.(type) {
	case *signaling.UserJoined:
		o.handleUserJoined(m)
	case *signaling.UserLeft:
		o.handleUserLeft(m)
	case *signaling.WebRTCSignal:
		o.handleWebRTCSignal(from, m)
	case *signaling.Renegotiate:
		if err := o.peers.Renegotiate(from); err != nil {
			o.logger.Warnw("renegotiate request failed", "from", from, "error", err)
		}
	case *signaling.Chat:
		o.emit(Event{Kind: EventChat, From: from, Chat: m})
	case *signaling.ScreenShare:
		o.roster.Update(from, func(p *domain.Participant) { p.IsSharing = m.IsSharing })
		o.emit(Event{Kind: EventScreenShare, From: from, Flag: m.IsSharing})
	case *signaling.RecordingStatus:
		o.emit(Event{Kind: EventRecordingStatus, From: from, Flag: m.IsRecording})
	case *signaling.Whiteboard:
		if o.board != nil {
			o.board.HandleRemote(from, m)
		}
	case *signaling.Reaction:
		o.emit(Event{Kind: EventReaction, From: from, Emoji: m.Emoji})
	case *signaling.HandRaise:
		o.roster.Update(from, func(p *domain.Participant) { p.HandRaised = m.IsRaised })
		o.emit(Event{Kind: EventHandRaise, From: from, Flag: m.IsRaised})
	case *signaling.MeetingEnd:
		o.handleMeetingEnd(from)
	}
}

func (o *Orchestrator) handleUserJoined(m *signaling.UserJoined) {
	if m.UserID == o.cfg.UserID {
		return
	}

	o.mu.Lock()
	host := o.hostID
	o.mu.Unlock()

	p := domain.Participant{
		UserID:   m.UserID,
		Username: m.Username,
		Role:     roleFor(m.UserID, host),
		JoinedAt: time.Now(),
	}
	if !o.roster.Add(p) {
		// Repeated join for a known id: refresh only, no new link.
		return
	}

	local, _ := o.roster.Get(o.cfg.UserID)
	if err := o.peers.CreateLink(m.UserID, o.policy(local, p)); err != nil {
		o.logger.Warnw("link creation failed", "remote", m.UserID, "error", err)
	}

	o.mu.Lock()
	if o.state == StateAwaitingStart && m.UserID == host {
		o.state = StateActive
	}
	o.mu.Unlock()

	o.emit(Event{Kind: EventParticipantJoined, From: m.UserID, Participant: &p})
}

func (o *Orchestrator) handleUserLeft(m *signaling.UserLeft) {
	if !o.roster.Remove(m.UserID) {
		return
	}
	o.peers.CloseLink(m.UserID)
	o.emit(Event{Kind: EventParticipantLeft, From: m.UserID})
}

func (o *Orchestrator) handleWebRTCSignal(from domain.UserID, m *signaling.WebRTCSignal) {
	if m.TargetUserID != "" && m.TargetUserID != o.cfg.UserID {
		return // misrouted; the relay targets these
	}
	if err := o.peers.HandleSignal(from, m.Signal); err != nil {
		// A failed negotiation costs one link, never the session.
		o.logger.Warnw("negotiation failed, dropping link", "from", from, "error", err)
		o.peers.CloseLink(from)
		o.roster.Remove(from)
	}
}

func (o *Orchestrator) handleMeetingEnd(from domain.UserID) {
	o.mu.Lock()
	host := o.hostID
	o.mu.Unlock()
	if host != "" && from != host {
		o.logger.Warnw("ignoring meeting_end from non-host", "from", from)
		return
	}

	o.emit(Event{Kind: EventMeetingEnded, From: from})
	// Forced out: terminal, no further negotiation is attempted.
	o.shutdown(context.Background())
}

// ToggleAudio flips the local microphone and mirrors the roster entry.
func (o *Orchestrator) ToggleAudio() bool {
	enabled := o.media.ToggleAudio()
	o.roster.Update(o.cfg.UserID, func(p *domain.Participant) { p.Media.AudioEnabled = enabled })
	return enabled
}

// ToggleVideo flips the local camera and mirrors the roster entry.
func (o *Orchestrator) ToggleVideo() bool {
	enabled := o.media.ToggleVideo()
	o.roster.Update(o.cfg.UserID, func(p *domain.Participant) { p.Media.VideoEnabled = enabled })
	return enabled
}

// StartScreenShare acquires the screen track, attaches it to every link
// as an additional sender and announces the share. A cancelled prompt is
// a status event, not an error.
func (o *Orchestrator) StartScreenShare(ctx context.Context) error {
	track, err := o.media.AcquireScreen(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrScreenShareCancelled) {
			o.emit(Event{Kind: EventScreenShareDenied, From: o.cfg.UserID})
			return nil
		}
		return err
	}

	if err := o.peers.StartScreenShare(track); err != nil {
		o.media.StopScreen()
		return err
	}

	o.mu.Lock()
	o.screenShared = true
	o.mu.Unlock()
	o.roster.Update(o.cfg.UserID, func(p *domain.Participant) { p.IsSharing = true })
	o.channel.Send(&signaling.ScreenShare{IsSharing: true})
	return nil
}

// StopScreenShare detaches the screen sender everywhere and announces
// the change.
func (o *Orchestrator) StopScreenShare() error {
	o.mu.Lock()
	if !o.screenShared {
		o.mu.Unlock()
		return nil
	}
	o.screenShared = false
	o.mu.Unlock()

	err := o.peers.StopScreenShare()
	o.media.StopScreen()
	o.roster.Update(o.cfg.UserID, func(p *domain.Participant) { p.IsSharing = false })
	o.channel.Send(&signaling.ScreenShare{IsSharing: false})
	return err
}

// StartRecording begins a local recording. The recorder's status hook
// broadcasts the indicator to all peers.
func (o *Orchestrator) StartRecording(ctx context.Context, source domain.RecordingSource) error {
	if o.recorder == nil {
		return domain.ErrRecordingUnsupported
	}
	return o.recorder.Start(ctx, source)
}

// StopRecording finalizes and uploads the blob. Upload failure is
// reported, never silently discarded; the blob stays available through
// the recorder for manual retry.
func (o *Orchestrator) StopRecording(ctx context.Context) error {
	if o.recorder == nil {
		return domain.ErrRecordingUnsupported
	}
	blob, err := o.recorder.Stop()
	if err != nil || blob == nil {
		return err
	}
	if err := o.recorder.Upload(ctx, blob); err != nil {
		o.emit(Event{Kind: EventUploadFailed, Err: err})
		return err
	}
	return nil
}

// SendChat broadcasts a chat message.
func (o *Orchestrator) SendChat(message string, file *signaling.ChatFile) {
	o.channel.Send(&signaling.Chat{Message: message, File: file})
}

// SendReaction broadcasts an emoji reaction.
func (o *Orchestrator) SendReaction(emoji string) {
	o.channel.Send(&signaling.Reaction{Emoji: emoji})
}

// RaiseHand toggles the local hand-raise flag and broadcasts it.
func (o *Orchestrator) RaiseHand(raised bool) {
	o.roster.Update(o.cfg.UserID, func(p *domain.Participant) { p.HandRaised = raised })
	o.channel.Send(&signaling.HandRaise{IsRaised: raised})
}

// Whiteboard exposes the board sync for the drawing surface glue.
func (o *Orchestrator) Whiteboard() *whiteboard.Sync { return o.board }

// EndMeeting broadcasts meeting_end and shuts the session down. Host
// only.
func (o *Orchestrator) EndMeeting(ctx context.Context) error {
	if !o.IsHost() {
		return domain.ErrNotHost
	}
	o.channel.Send(&signaling.MeetingEnd{})
	o.shutdown(ctx)
	return nil
}

// Leave runs the guaranteed cleanup sequence and disposes the session.
func (o *Orchestrator) Leave(ctx context.Context) {
	o.shutdown(ctx)
}

// shutdown: stop recording with a bounded best-effort upload, close all
// peer links, stop local media, close the signaling socket. Ordered so
// a failing step never skips the ones after it.
func (o *Orchestrator) shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.state == StateEnded {
		o.mu.Unlock()
		return
	}
	o.state = StateEnded
	o.mu.Unlock()

	if o.recorder != nil && o.recorder.Active() {
		if blob, err := o.recorder.Stop(); err == nil && blob != nil {
			uploadCtx, cancel := context.WithTimeout(ctx, o.cfg.UploadTimeout)
			if err := o.recorder.Upload(uploadCtx, blob); err != nil {
				o.logger.Warnw("best-effort upload on leave failed", "error", err)
			}
			cancel()
		}
	}

	o.peers.CloseAll()
	o.media.Close()
	o.channel.Close()

	o.logger.Infow("session disposed", "meeting_id", o.cfg.MeetingID)
}

func (o *Orchestrator) emit(ev Event) {
	if o.onEvent != nil {
		o.onEvent(ev)
	}
}

func roleFor(id, host domain.UserID) domain.Role {
	if id == host {
		return domain.RoleHost
	}
	return domain.RoleParticipant
}
