package recording

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"studylink/internal/core/domain"

	"go.uber.org/zap"
)

// CaptureOpener opens the byte stream for a recording source and reports
// its mime type. 'self' captures the local tracks, 'display' captures
// the screen; a declined display prompt returns ErrPermissionDenied.
type CaptureOpener func(ctx context.Context, source domain.RecordingSource) (io.ReadCloser, string, error)

// Controller buffers a capture stream in fixed-interval chunks so memory
// stays bounded and a crash loses at most one interval. Recording state
// changes are announced through the status callback — peers must always
// see the recording indicator.
type Controller struct {
	open     CaptureOpener
	uploader *Uploader
	interval time.Duration
	logger   *zap.SugaredLogger

	onStatus func(recording bool)

	mu       sync.Mutex
	job      *domain.RecordingJob
	reader   io.ReadCloser
	current  bytes.Buffer
	done     chan struct{}
	lastBlob *domain.RecordingBlob

	meetingID domain.MeetingID
}

func NewController(meetingID domain.MeetingID, open CaptureOpener, uploader *Uploader, interval time.Duration, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Controller{
		meetingID: meetingID,
		open:      open,
		uploader:  uploader,
		interval:  interval,
		logger:    logger,
	}
}

// OnStatusChange registers the broadcast hook invoked on start and stop.
func (c *Controller) OnStatusChange(fn func(recording bool)) { c.onStatus = fn }

// Active reports whether a recording job is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job != nil
}

// LastBlob returns the most recently finalized blob, retained after a
// failed upload for manual retry.
func (c *Controller) LastBlob() *domain.RecordingBlob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBlob
}

// Start opens the capture stream and begins chunking.
func (c *Controller) Start(ctx context.Context, source domain.RecordingSource) error {
	c.mu.Lock()
	if c.job != nil {
		c.mu.Unlock()
		return domain.ErrRecordingActive
	}
	if c.open == nil {
		c.mu.Unlock()
		return domain.ErrRecordingUnsupported
	}

	reader, mimeType, err := c.open(ctx, source)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.job = &domain.RecordingJob{
		Source:    source,
		MimeType:  mimeType,
		StartedAt: time.Now(),
	}
	c.reader = reader
	c.current.Reset()
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.readLoop(reader, done)
	go c.chunkLoop(done)

	c.logger.Infow("recording started", "source", source, "mime_type", mimeType)
	if c.onStatus != nil {
		c.onStatus(true)
	}
	return nil
}

func (c *Controller) readLoop(reader io.Reader, done chan struct{}) {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := reader.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.current.Write(buf[:n])
			c.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (c *Controller) chunkLoop(done chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.flushChunk()
		}
	}
}

// flushChunk moves the accumulated bytes into the job's chunk list.
func (c *Controller) flushChunk() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil || c.current.Len() == 0 {
		return
	}
	chunk := make([]byte, c.current.Len())
	copy(chunk, c.current.Bytes())
	c.current.Reset()
	c.job.Chunks = append(c.job.Chunks, chunk)
}

// Stop finalizes the job into a single blob. Stopping immediately after
// Start yields a valid empty blob, never an error.
func (c *Controller) Stop() (*domain.RecordingBlob, error) {
	c.mu.Lock()
	job := c.job
	if job == nil {
		c.mu.Unlock()
		return nil, nil // no-op stop
	}
	reader := c.reader
	done := c.done
	c.job = nil
	c.reader = nil
	c.done = nil

	// Final partial chunk.
	if c.current.Len() > 0 {
		chunk := make([]byte, c.current.Len())
		copy(chunk, c.current.Bytes())
		c.current.Reset()
		job.Chunks = append(job.Chunks, chunk)
	}

	data := make([]byte, 0, job.Size())
	for _, chunk := range job.Chunks {
		data = append(data, chunk...)
	}
	blob := &domain.RecordingBlob{
		Data:      data,
		MimeType:  job.MimeType,
		Duration:  time.Since(job.StartedAt),
		StartedAt: job.StartedAt,
	}
	c.lastBlob = blob
	c.mu.Unlock()

	close(done)
	if reader != nil {
		reader.Close()
	}

	c.logger.Infow("recording stopped", "bytes", len(blob.Data), "duration", blob.Duration)
	if c.onStatus != nil {
		c.onStatus(false)
	}
	return blob, nil
}

// Upload posts the blob through the configured uploader.
func (c *Controller) Upload(ctx context.Context, blob *domain.RecordingBlob) error {
	if c.uploader == nil {
		return domain.ErrRecordingUnsupported
	}
	return c.uploader.Upload(ctx, c.meetingID, blob)
}
