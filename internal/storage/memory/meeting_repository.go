package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"studylink/internal/core/domain"
	"studylink/internal/core/ports"
)

type meetingEntry struct {
	session      domain.MeetingSession
	participants map[domain.UserID]domain.Participant
}

// MeetingRepository is the in-process store used by single-node
// deployments and tests.
type MeetingRepository struct {
	mu       sync.RWMutex
	meetings map[domain.MeetingID]*meetingEntry
}

func NewMeetingRepository() ports.MeetingRepository {
	return &MeetingRepository{meetings: make(map[domain.MeetingID]*meetingEntry)}
}

func (r *MeetingRepository) Create(ctx context.Context, session *domain.MeetingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meetings[session.ID]; ok {
		return domain.ErrMeetingExists
	}
	cp := *session
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.meetings[session.ID] = &meetingEntry{
		session:      cp,
		participants: make(map[domain.UserID]domain.Participant),
	}
	return nil
}

func (r *MeetingRepository) Get(ctx context.Context, id domain.MeetingID) (*domain.MeetingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.meetings[id]
	if !ok {
		return nil, domain.ErrMeetingNotFound
	}
	cp := entry.session
	return &cp, nil
}

func (r *MeetingRepository) SetPhase(ctx context.Context, id domain.MeetingID, phase domain.MeetingPhase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.meetings[id]
	if !ok {
		return domain.ErrMeetingNotFound
	}
	entry.session.Phase = phase
	if phase == domain.PhaseActive && entry.session.StartedAt.IsZero() {
		entry.session.StartedAt = time.Now()
	}
	return nil
}

func (r *MeetingRepository) AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.meetings[id]
	if !ok {
		return domain.ErrMeetingNotFound
	}
	if existing, ok := entry.participants[p.UserID]; ok {
		// Rejoin keeps the original seat.
		p.JoinedAt = existing.JoinedAt
	}
	entry.participants[p.UserID] = p
	return nil
}

func (r *MeetingRepository) RemoveParticipant(ctx context.Context, id domain.MeetingID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.meetings[id]
	if !ok {
		return domain.ErrMeetingNotFound
	}
	delete(entry.participants, userID)
	return nil
}

func (r *MeetingRepository) ListParticipants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.meetings[id]
	if !ok {
		return nil, domain.ErrMeetingNotFound
	}
	out := make([]domain.Participant, 0, len(entry.participants))
	for _, p := range entry.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}
