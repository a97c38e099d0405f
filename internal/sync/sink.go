package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sink accepts a raw image payload for detection processing. Implementations
// must be idempotent per (sourceID, filename): the cursor scheme delivers
// at-least-once, and re-submitting an already-processed file must be a
// harmless no-op.
type Sink interface {
	Ingest(ctx context.Context, sourceID, filename string, payload []byte) error
}

// Rejection is returned when the detection pipeline refuses a file (bad
// image data, unsupported format). It counts as a per-file failure, exactly
// like a FetchError.
type Rejection struct {
	SourceID string
	Filename string
	Reason   string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("sink rejected %s: %s", r.Filename, r.Reason)
}

// HTTPSink submits images to the detection pipeline's ingest endpoint.
type HTTPSink struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// NewHTTPSink constructs an HTTPSink targeting baseURL with the given API
// key. A 60-second HTTP timeout covers detection latency on large images.
func NewHTTPSink(baseURL, apiKey string) *HTTPSink {
	return &HTTPSink{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		userAgent: defaultSinkUserAgent,
	}
}

const defaultSinkUserAgent = "Perchwatch-Sync/0.1 (+https://perchwatch.org)"

var _ Sink = (*HTTPSink)(nil)

// Ingest POSTs the payload to {baseURL}/api/v1/images:ingest with the source
// and filename carried in headers. A 2xx is acceptance; a 422 is a Rejection
// with the pipeline's reason; anything else is a transport-level error.
func (s *HTTPSink) Ingest(ctx context.Context, sourceID, filename string, payload []byte) error {
	url := s.baseURL + "/api/v1/images:ingest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Perchwatch-Source", sourceID)
	req.Header.Set("X-Perchwatch-Filename", filename)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return &Rejection{
			SourceID: sourceID,
			Filename: filename,
			Reason:   rejectionReason(body),
		}
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bodySnippet(body))
	}
}

// rejectionReason pulls the "reason" field out of a rejection body, falling
// back to a raw snippet when the body is not the expected JSON shape.
func rejectionReason(body []byte) string {
	var parsed struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Reason != "" {
		return parsed.Reason
	}
	return bodySnippet(body)
}

// bodySnippet returns up to 200 characters of body as a string.
func bodySnippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
