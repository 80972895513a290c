package ports

import (
	"context"
	"io"

	"studylink/internal/core/domain"
)

// MeetingRepository stores meeting sessions and their rosters. The roster
// survives relay restarts so reconnecting participants keep their seat.
type MeetingRepository interface {
	Create(ctx context.Context, session *domain.MeetingSession) error
	Get(ctx context.Context, id domain.MeetingID) (*domain.MeetingSession, error)
	SetPhase(ctx context.Context, id domain.MeetingID, phase domain.MeetingPhase) error
	AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error
	RemoveParticipant(ctx context.Context, id domain.MeetingID, userID domain.UserID) error
	ListParticipants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error)
}

// RecordingStore persists uploaded recording blobs and returns a storage key.
type RecordingStore interface {
	Save(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, mimeType string, r io.Reader) (string, error)
}
