package domain

import "time"

// RecordingSource selects what a recording captures.
type RecordingSource string

const (
	RecordSelf    RecordingSource = "self"
	RecordDisplay RecordingSource = "display"
)

// RecordingJob buffers chunks while a recording is active. It exists only
// between Start and Stop; on Stop the chunks are concatenated into a
// RecordingBlob and the job is discarded.
type RecordingJob struct {
	Source    RecordingSource
	MimeType  string
	Chunks    [][]byte
	StartedAt time.Time
}

// Size returns the total buffered byte count.
func (j *RecordingJob) Size() int {
	total := 0
	for _, c := range j.Chunks {
		total += len(c)
	}
	return total
}

// RecordingBlob is the finalized recording, kept available for manual
// retry if the upload fails.
type RecordingBlob struct {
	Data      []byte
	MimeType  string
	Duration  time.Duration
	StartedAt time.Time
}
