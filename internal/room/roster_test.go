package room

import (
	"testing"
	"time"

	"studylink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIsIdempotent(t *testing.T) {
	r := NewRoster()

	assert.True(t, r.Add(domain.Participant{UserID: "u1", Username: "Ann"}))
	assert.False(t, r.Add(domain.Participant{UserID: "u1", Username: "Ann"}))
	assert.Equal(t, 1, r.Size())
}

func TestRepeatedAddRefreshesUsername(t *testing.T) {
	r := NewRoster()
	r.Add(domain.Participant{UserID: "u1", Username: "Ann"})

	assert.False(t, r.Add(domain.Participant{UserID: "u1", Username: "Annabelle"}))
	p, ok := r.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "Annabelle", p.Username)

	// A blank name on rejoin keeps the previous one.
	r.Add(domain.Participant{UserID: "u1"})
	p, _ = r.Get("u1")
	assert.Equal(t, "Annabelle", p.Username)
}

func TestRemoveReportsPresence(t *testing.T) {
	r := NewRoster()
	r.Add(domain.Participant{UserID: "u1"})

	assert.True(t, r.Remove("u1"))
	assert.False(t, r.Remove("u1"), "second remove must be a no-op")
	assert.Zero(t, r.Size())
}

func TestUpdateMutatesInPlace(t *testing.T) {
	r := NewRoster()
	r.Add(domain.Participant{UserID: "u1"})

	assert.True(t, r.Update("u1", func(p *domain.Participant) { p.HandRaised = true }))
	p, _ := r.Get("u1")
	assert.True(t, p.HandRaised)

	assert.False(t, r.Update("ghost", func(p *domain.Participant) { p.HandRaised = true }))
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRoster()
	r.Add(domain.Participant{UserID: "u1", Username: "Ann"})

	p, _ := r.Get("u1")
	p.Username = "mutated"

	stored, _ := r.Get("u1")
	assert.Equal(t, "Ann", stored.Username)
}

func TestListSnapshots(t *testing.T) {
	r := NewRoster()
	now := time.Now()
	r.Add(domain.Participant{UserID: "u1", JoinedAt: now})
	r.Add(domain.Participant{UserID: "u2", JoinedAt: now.Add(time.Second)})

	list := r.List()
	assert.Len(t, list, 2)

	r.Remove("u1")
	assert.Len(t, list, 2, "snapshot must not track later mutations")
}
