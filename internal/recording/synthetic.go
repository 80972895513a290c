package recording

import (
	"context"
	"io"
	"time"

	"studylink/internal/core/domain"
)

// SyntheticOpener returns a CaptureOpener that emits placeholder bytes
// at roughly the given rate. Headless clients use it where a real
// encoder pipeline would sit.
func SyntheticOpener(bytesPerSecond int) CaptureOpener {
	if bytesPerSecond <= 0 {
		bytesPerSecond = 16 * 1024
	}
	return func(ctx context.Context, source domain.RecordingSource) (io.ReadCloser, string, error) {
		r, w := io.Pipe()
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			chunk := make([]byte, bytesPerSecond/10)
			for i := range chunk {
				chunk[i] = byte(i)
			}
			for {
				select {
				case <-ctx.Done():
					w.CloseWithError(ctx.Err())
					return
				case <-ticker.C:
					if _, err := w.Write(chunk); err != nil {
						return
					}
				}
			}
		}()
		return r, "video/webm", nil
	}
}
