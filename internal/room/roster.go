package room

import (
	"sync"

	"studylink/internal/core/domain"
)

// Roster is the participant set for one session. Joins are idempotent:
// a repeated user_joined for a known id updates the display name but
// never produces a duplicate entry.
type Roster struct {
	mu      sync.RWMutex
	members map[domain.UserID]*domain.Participant
}

func NewRoster() *Roster {
	return &Roster{members: make(map[domain.UserID]*domain.Participant)}
}

// Add inserts a participant and reports whether it was new.
func (r *Roster) Add(p domain.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.members[p.UserID]; ok {
		if p.Username != "" {
			existing.Username = p.Username
		}
		return false
	}
	cp := p
	r.members[p.UserID] = &cp
	return true
}

// Remove deletes a participant and reports whether it was present.
func (r *Roster) Remove(id domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Get returns a copy of the participant, if present.
func (r *Roster) Get(id domain.UserID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[id]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// Update applies fn to the participant in place.
func (r *Roster) Update(id domain.UserID, fn func(p *domain.Participant)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// List returns a snapshot of all participants.
func (r *Roster) List() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, *p)
	}
	return out
}

// Size returns the participant count.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
