package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"studylink/internal/core/domain"
	"studylink/pkg/circuitbreaker"
	"studylink/pkg/retry"

	"go.uber.org/zap"
)

// Uploader posts finalized recording blobs to the backend. Transient
// failures are retried with backoff; a persistently failing backend
// trips the breaker so stop/leave paths fail fast instead of stalling
// navigation.
type Uploader struct {
	endpoint string
	token    string
	client   *http.Client
	retryCfg retry.Config
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.SugaredLogger
}

func NewUploader(endpoint, token string, logger *zap.SugaredLogger) *Uploader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Uploader{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		retryCfg: retry.DefaultConfig(),
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:   logger,
	}
}

// Upload posts the blob as a multipart form. Non-2xx responses surface
// as ErrUploadFailed so the caller can keep the blob for manual retry.
func (u *Uploader) Upload(ctx context.Context, meetingID domain.MeetingID, blob *domain.RecordingBlob) error {
	if blob == nil || len(blob.Data) == 0 {
		return nil // nothing to upload is a clean no-op
	}

	err := retry.Retry(ctx, u.retryCfg, func() error {
		return u.breaker.Execute(ctx, func() error {
			return u.post(ctx, meetingID, blob)
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	return nil
}

func (u *Uploader) post(ctx context.Context, meetingID domain.MeetingID, blob *domain.RecordingBlob) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("recording", fmt.Sprintf("meeting-%s-%d.webm", meetingID, blob.StartedAt.Unix()))
	if err != nil {
		return err
	}
	if _, err := part.Write(blob.Data); err != nil {
		return err
	}
	w.WriteField("mime_type", blob.MimeType)
	w.WriteField("duration_ms", fmt.Sprintf("%d", blob.Duration.Milliseconds()))
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload endpoint returned %d", resp.StatusCode)
	}
	return nil
}
