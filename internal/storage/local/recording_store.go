package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studylink/internal/core/domain"
	"studylink/internal/core/ports"
	"studylink/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordingStore writes uploaded recording blobs to the local
// filesystem, one directory per meeting. The returned key is the path
// relative to the store root.
type RecordingStore struct {
	root   string
	logger *zap.SugaredLogger
}

func NewRecordingStore(root string, logger *zap.SugaredLogger) (ports.RecordingStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings dir: %w", err)
	}
	return &RecordingStore{root: root, logger: logger}, nil
}

func (s *RecordingStore) Save(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, mimeType string, r io.Reader) (string, error) {
	ctx, span := tracing.TraceStorageOperation(ctx, "save_recording", "local")
	defer span.End()

	dir := filepath.Join(s.root, sanitize(string(meetingID)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create meeting dir: %w", err)
	}

	name := fmt.Sprintf("%s-%d-%s%s",
		sanitize(string(userID)),
		time.Now().Unix(),
		uuid.NewString()[:8],
		extension(mimeType),
	)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create recording file: %w", err)
	}

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		err = fmt.Errorf("failed to write recording: %w", err)
		tracing.RecordError(ctx, err)
		return "", err
	}

	key := filepath.Join(sanitize(string(meetingID)), name)
	s.logger.Infow("recording stored",
		"meeting_id", meetingID,
		"user_id", userID,
		"key", key,
		"bytes", written,
	)
	return key, nil
}

// sanitize keeps identifiers from escaping the store root.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, string(os.PathSeparator), "_")
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		s = "unknown"
	}
	return s
}

func extension(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/webm"), strings.HasPrefix(mimeType, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "video/mp4"):
		return ".mp4"
	default:
		return ".bin"
	}
}
