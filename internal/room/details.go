package room

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"studylink/internal/core/domain"
)

// DetailsFetcher loads the meeting snapshot once at session load.
type DetailsFetcher interface {
	Fetch(ctx context.Context, id domain.MeetingID) (*domain.MeetingDetails, error)
}

// HTTPDetailsFetcher consumes the meeting details endpoint of the
// backing API. Session auth travels as a bearer token.
type HTTPDetailsFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPDetailsFetcher(baseURL, token string) *HTTPDetailsFetcher {
	return &HTTPDetailsFetcher{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPDetailsFetcher) Fetch(ctx context.Context, id domain.MeetingID) (*domain.MeetingDetails, error) {
	url := fmt.Sprintf("%s/api/v1/meetings/%s", f.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrMeetingNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meeting details endpoint returned %d", resp.StatusCode)
	}

	var details domain.MeetingDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("decode meeting details: %w", err)
	}
	return &details, nil
}
