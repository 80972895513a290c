package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"studylink/internal/core/domain"
	"studylink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// MeetingRepository persists sessions and rosters in Redis so a relay
// restart does not drop seats. Sessions carry a TTL; a meeting that saw
// no activity for a day is garbage.
type MeetingRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewMeetingRepository(client *redis.Client) ports.MeetingRepository {
	return &MeetingRepository{
		client: client,
		prefix: "studylink:meeting:",
		ttl:    24 * time.Hour,
	}
}

func (r *MeetingRepository) sessionKey(id domain.MeetingID) string {
	return r.prefix + string(id)
}

func (r *MeetingRepository) rosterKey(id domain.MeetingID) string {
	return fmt.Sprintf("%s%s:roster", r.prefix, id)
}

func (r *MeetingRepository) Create(ctx context.Context, session *domain.MeetingSession) error {
	cp := *session
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.sessionKey(session.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	if !ok {
		return domain.ErrMeetingExists
	}
	return nil
}

func (r *MeetingRepository) Get(ctx context.Context, id domain.MeetingID) (*domain.MeetingSession, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMeetingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.MeetingSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *MeetingRepository) SetPhase(ctx context.Context, id domain.MeetingID, phase domain.MeetingPhase) error {
	session, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	session.Phase = phase
	if phase == domain.PhaseActive && session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}
	return nil
}

func (r *MeetingRepository) AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}

	// Rejoin keeps the original seat.
	if existing, err := r.client.HGet(ctx, r.rosterKey(id), string(p.UserID)).Result(); err == nil {
		var prev domain.Participant
		if json.Unmarshal([]byte(existing), &prev) == nil {
			p.JoinedAt = prev.JoinedAt
		}
	}

	data, err := json.Marshal(&p)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.rosterKey(id), string(p.UserID), data)
	pipe.Expire(ctx, r.rosterKey(id), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add participant to roster: %w", err)
	}
	return nil
}

func (r *MeetingRepository) RemoveParticipant(ctx context.Context, id domain.MeetingID, userID domain.UserID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if err := r.client.HDel(ctx, r.rosterKey(id), string(userID)).Err(); err != nil {
		return fmt.Errorf("failed to remove participant from roster: %w", err)
	}
	return nil
}

func (r *MeetingRepository) ListParticipants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}

	entries, err := r.client.HGetAll(ctx, r.rosterKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster from Redis: %w", err)
	}

	out := make([]domain.Participant, 0, len(entries))
	for _, raw := range entries {
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}
