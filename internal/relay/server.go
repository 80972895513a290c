package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"studylink/internal/auth"
	"studylink/internal/core/domain"
	"studylink/internal/core/ports"
	"studylink/internal/monitoring"
	"studylink/internal/signaling"
	"studylink/pkg/tracing"
	"studylink/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Config tunes the relay's connection handling.
type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	MessagesPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    512 * 1024, // chat file payloads travel inline
		MessagesPerSecond: 50,
		Burst:             100,
	}
}

type client struct {
	conn      *websocket.Conn
	meetingID domain.MeetingID
	userID    domain.UserID
	username  string
	limiter   *rate.Limiter
	joinedAt  time.Time

	writeMu sync.Mutex
}

func (c *client) send(timeout time.Duration, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server fans meeting traffic out to room members. Targeted kinds
// (webrtc_signal, renegotiate) reach exactly one peer; everything else
// is broadcast to the room minus the sender. The relay stamps the
// sender identity on every forwarded envelope, so clients cannot spoof
// each other.
type Server struct {
	repo    ports.MeetingRepository
	tokens  *auth.TokenManager
	metrics *monitoring.Collector
	cfg     Config
	logger  *zap.SugaredLogger

	mu    sync.RWMutex
	rooms map[domain.MeetingID]map[domain.UserID]*client
}

func NewServer(repo ports.MeetingRepository, tokens *auth.TokenManager, metrics *monitoring.Collector, cfg Config, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.PingInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Server{
		repo:    repo,
		tokens:  tokens,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		rooms:   make(map[domain.MeetingID]map[domain.UserID]*client),
	}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	meetingID := domain.MeetingID(r.URL.Query().Get("meeting_id"))
	if meetingID == "" {
		http.Error(w, "meeting_id is required", http.StatusBadRequest)
		return
	}

	userID, username, err := s.identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	session, err := s.ensureSession(r.Context(), meetingID, userID)
	if err != nil {
		http.Error(w, "meeting unavailable", http.StatusServiceUnavailable)
		return
	}
	if session.Phase == domain.PhaseEnded {
		http.Error(w, "meeting has ended", http.StatusGone)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{
		conn:      conn,
		meetingID: meetingID,
		userID:    userID,
		username:  username,
		limiter:   rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst),
		joinedAt:  time.Now(),
	}

	s.register(c, session)
	defer s.unregister(c)

	if s.metrics != nil {
		s.metrics.ConnectionAccepted()
	}
	s.logger.Infow("participant connected",
		"meeting_id", meetingID,
		"user_id", userID,
		"username", username,
	)

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	frameChan := make(chan []byte, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
			frameChan <- data
		}
	}()

	for {
		select {
		case data := <-frameChan:
			if !c.limiter.Allow() {
				s.drop("rate_limited")
				s.logger.Warnw("rate limit exceeded, dropping frame",
					"meeting_id", meetingID, "user_id", userID)
				continue
			}
			s.route(r.Context(), c, data)

		case <-pingTicker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("ping failed", "user_id", userID, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("read failed", "user_id", userID, "error", err)
			}
			return
		}
	}
}

// identify extracts the participant identity from the token, or from
// query parameters when the relay runs without an auth secret.
func (s *Server) identify(r *http.Request) (domain.UserID, string, error) {
	if s.tokens != nil {
		claims, err := s.tokens.Validate(r.URL.Query().Get("token"))
		if err != nil {
			return "", "", err
		}
		return claims.UserID, utils.SanitizeString(claims.Username), nil
	}

	userID := domain.UserID(r.URL.Query().Get("user_id"))
	if userID == "" {
		return "", "", errors.New("user_id is required")
	}
	username := utils.TruncateString(utils.SanitizeString(r.URL.Query().Get("username")), 100)
	return userID, username, nil
}

// ensureSession loads the meeting, creating it with the first joiner as
// host when the API has not seen it yet.
func (s *Server) ensureSession(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (*domain.MeetingSession, error) {
	session, err := s.repo.Get(ctx, meetingID)
	if errors.Is(err, domain.ErrMeetingNotFound) {
		session = &domain.MeetingSession{
			ID:          meetingID,
			HostID:      userID,
			Phase:       domain.PhaseScheduled,
			ScheduledAt: time.Now(),
			CreatedAt:   time.Now(),
		}
		if err := s.repo.Create(ctx, session); err != nil {
			return nil, err
		}
		return session, nil
	}
	return session, err
}

func (s *Server) register(c *client, session *domain.MeetingSession) {
	s.mu.Lock()
	room := s.rooms[c.meetingID]
	if room == nil {
		room = make(map[domain.UserID]*client)
		s.rooms[c.meetingID] = room
	}
	if old, ok := room[c.userID]; ok {
		old.conn.Close()
		s.logger.Infow("closing old connection for reconnecting participant",
			"meeting_id", c.meetingID, "user_id", c.userID)
	}
	room[c.userID] = c
	s.mu.Unlock()

	role := domain.RoleParticipant
	if c.userID == session.HostID {
		role = domain.RoleHost
	}
	ctx := context.Background()
	if err := s.repo.AddParticipant(ctx, c.meetingID, domain.Participant{
		UserID:   c.userID,
		Username: c.username,
		Role:     role,
		Media:    domain.MediaState{AudioEnabled: true, VideoEnabled: true},
		JoinedAt: c.joinedAt,
	}); err != nil {
		s.logger.Warnw("failed to persist participant", "user_id", c.userID, "error", err)
	}

	// A scheduled meeting goes live the moment the host arrives.
	if role == domain.RoleHost && session.Phase == domain.PhaseScheduled {
		if err := s.repo.SetPhase(ctx, c.meetingID, domain.PhaseActive); err != nil {
			s.logger.Warnw("failed to activate meeting", "meeting_id", c.meetingID, "error", err)
		}
	}

	s.broadcast(c.meetingID, c.userID, c.userID, &signaling.UserJoined{
		UserID:   c.userID,
		Username: c.username,
	})
	s.updateGauges()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	room := s.rooms[c.meetingID]
	if room != nil && room[c.userID] == c {
		delete(room, c.userID)
		if len(room) == 0 {
			delete(s.rooms, c.meetingID)
		}
	} else {
		// A reconnect already replaced this connection; leave the
		// roster alone.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.repo.RemoveParticipant(context.Background(), c.meetingID, c.userID); err != nil {
		s.logger.Warnw("failed to remove participant", "user_id", c.userID, "error", err)
	}

	s.broadcast(c.meetingID, c.userID, c.userID, &signaling.UserLeft{
		UserID:   c.userID,
		Username: c.username,
	})
	if s.metrics != nil {
		s.metrics.ObserveSessionDuration(time.Since(c.joinedAt).Seconds())
	}
	s.updateGauges()
	s.logger.Infow("participant disconnected", "meeting_id", c.meetingID, "user_id", c.userID)
}

// route forwards one inbound frame. The claimed sender on the wire is
// ignored; the authenticated connection identity is stamped instead.
func (s *Server) route(ctx context.Context, c *client, data []byte) {
	_, msg, err := signaling.Decode(data)
	if err != nil {
		s.drop("malformed")
		s.logger.Warnw("dropping malformed frame", "user_id", c.userID, "error", err)
		return
	}

	ctx, span := tracing.TraceRelayMessage(ctx, string(msg.Kind()), string(c.userID))
	defer span.End()

	switch m := msg.(type) {
	case *signaling.WebRTCSignal:
		s.sendTo(c.meetingID, m.TargetUserID, c.userID, m)

	case *signaling.Renegotiate:
		s.sendTo(c.meetingID, m.TargetUserID, c.userID, m)

	case *signaling.MeetingEnd:
		session, err := s.repo.Get(ctx, c.meetingID)
		if err != nil || session.HostID != c.userID {
			s.drop("not_host")
			s.logger.Warnw("meeting_end from non-host ignored",
				"meeting_id", c.meetingID, "user_id", c.userID)
			return
		}
		if err := s.repo.SetPhase(ctx, c.meetingID, domain.PhaseEnded); err != nil {
			s.logger.Warnw("failed to end meeting", "meeting_id", c.meetingID, "error", err)
		}
		s.broadcast(c.meetingID, c.userID, c.userID, m)

	case *signaling.UserJoined, *signaling.UserLeft:
		// Presence is relay-originated; clients cannot inject it.
		s.drop("presence_spoof")

	default:
		s.broadcast(c.meetingID, c.userID, c.userID, msg)
	}
}

// sendTo delivers to exactly one room member.
func (s *Server) sendTo(meetingID domain.MeetingID, target, from domain.UserID, msg signaling.Message) {
	s.mu.RLock()
	dst := s.rooms[meetingID][target]
	s.mu.RUnlock()
	if dst == nil {
		s.drop("target_absent")
		return
	}

	data, err := signaling.Encode(from, msg)
	if err != nil {
		s.logger.Errorw("encode failed", "kind", msg.Kind(), "error", err)
		return
	}
	if err := dst.send(s.cfg.WriteTimeout, data); err != nil {
		s.logger.Infow("send failed", "target", target, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.EnvelopeRelayed(string(msg.Kind()))
	}
}

// broadcast delivers to every room member except one.
func (s *Server) broadcast(meetingID domain.MeetingID, except, from domain.UserID, msg signaling.Message) {
	data, err := signaling.Encode(from, msg)
	if err != nil {
		s.logger.Errorw("encode failed", "kind", msg.Kind(), "error", err)
		return
	}

	s.mu.RLock()
	members := make([]*client, 0, len(s.rooms[meetingID]))
	for id, member := range s.rooms[meetingID] {
		if id == except {
			continue
		}
		members = append(members, member)
	}
	s.mu.RUnlock()

	for _, member := range members {
		if err := member.send(s.cfg.WriteTimeout, data); err != nil {
			s.logger.Infow("broadcast send failed", "target", member.userID, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.EnvelopeRelayed(string(msg.Kind()))
		}
	}
}

func (s *Server) drop(reason string) {
	if s.metrics != nil {
		s.metrics.EnvelopeDropped(reason)
	}
}

func (s *Server) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.mu.RLock()
	meetings := len(s.rooms)
	participants := 0
	for _, room := range s.rooms {
		participants += len(room)
	}
	s.mu.RUnlock()
	s.metrics.SetMeetingsActive(meetings)
	s.metrics.SetParticipants(participants)
}

// RoomSize reports the connected member count for a meeting.
func (s *Server) RoomSize(meetingID domain.MeetingID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[meetingID])
}
