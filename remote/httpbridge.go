package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/uplink/auth"
	"github.com/phrazzld/uplink/job"
)

// authorize attaches a bearer token to the request when a token source is
// configured.
func authorize(ctx context.Context, req *http.Request, tokens auth.TokenSource) error {
	if tokens == nil {
		return nil
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain bearer token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// classifyResponse maps a non-2xx backend response onto the queue's error
// taxonomy.
func classifyResponse(op string, code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected with status %d", job.ErrAuthExpired, op, code)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s rejected with status %d", job.ErrRecordConflict, op, code)
	default:
		return fmt.Errorf("%w: %s rejected with status %d", job.ErrRemoteServer, op, code)
	}
}

// drainAndClose releases the response so the client connection can be
// reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// HTTPRecordStore is a RecordStore client for the backend's meeting
// record endpoint.
type HTTPRecordStore struct {
	baseURL string
	client  *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
}

// NewHTTPRecordStore creates a record store client rooted at baseURL.
// tokens may be nil for unauthenticated backends.
func NewHTTPRecordStore(baseURL string, tokens auth.TokenSource, logger *slog.Logger) *HTTPRecordStore {
	return &HTTPRecordStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		tokens:  tokens,
		logger:  logger.With("component", "http_record_store"),
	}
}

// recordUpsert is the wire shape of a record upsert.
type recordUpsert struct {
	Status RecordStatus `json:"status"`
}

// UpsertRecord creates the meeting record if absent, else sets its
// status. The endpoint is keyed by target ID, so repeats are safe.
func (s *HTTPRecordStore) UpsertRecord(ctx context.Context, targetID string, status RecordStatus) error {
	body, err := json.Marshal(recordUpsert{Status: status})
	if err != nil {
		return fmt.Errorf("failed to encode record upsert: %w", err)
	}

	url := s.baseURL + "/v1/meetings/" + targetID
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build record upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := authorize(ctx, req, s.tokens); err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", job.ErrNetworkUnavailable, err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug("record upsert accepted",
			"target_id", targetID,
			"status", status)
		return nil
	}
	return classifyResponse("record upsert", resp.StatusCode)
}

// HTTPObjectStore is an ObjectStore client for the backend's recording
// object endpoints.
type HTTPObjectStore struct {
	baseURL string
	client  *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
}

// NewHTTPObjectStore creates an object store client rooted at baseURL.
// tokens may be nil for unauthenticated backends.
func NewHTTPObjectStore(baseURL string, tokens auth.TokenSource, logger *slog.Logger) *HTTPObjectStore {
	return &HTTPObjectStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		tokens:  tokens,
		logger:  logger.With("component", "http_object_store"),
	}
}

// Upload writes the artifact at key. The key doubles as the object path
// under the API root, so a repeat overwrites in place.
func (s *HTTPObjectStore) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	url := s.baseURL + "/v1/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, r)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "audio/mp4")

	if err := authorize(ctx, req, s.tokens); err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", job.ErrNetworkUnavailable, err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug("upload accepted", "key", key, "size", size)
		return nil
	}
	return classifyResponse("upload", resp.StatusCode)
}

// signedURLRequest is the wire shape of a handle request.
type signedURLRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

// signedURLResponse is the wire shape of a handle response.
type signedURLResponse struct {
	URL string `json:"url"`
}

// SignedURL asks the backend for a time-limited read handle on an
// uploaded object.
func (s *HTTPObjectStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(signedURLRequest{TTLSeconds: int64(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("failed to encode handle request: %w", err)
	}

	url := s.baseURL + "/v1/" + key + "/handle"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build handle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := authorize(ctx, req, s.tokens); err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", job.ErrNetworkUnavailable, err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyResponse("handle request", resp.StatusCode)
	}

	var handle signedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&handle); err != nil {
		return "", fmt.Errorf("%w: malformed handle response: %v", job.ErrRemoteServer, err)
	}
	if handle.URL == "" {
		return "", fmt.Errorf("%w: handle response missing url", job.ErrRemoteServer)
	}
	return handle.URL, nil
}

// NewHTTPBridge assembles a Bridge of HTTP clients for a backend API
// rooted at baseURL, with processing triggered at triggerURL.
func NewHTTPBridge(baseURL, triggerURL string, tokens auth.TokenSource, logger *slog.Logger) Bridge {
	return Bridge{
		Records: NewHTTPRecordStore(baseURL, tokens, logger),
		Objects: NewHTTPObjectStore(baseURL, tokens, logger),
		Trigger: NewHTTPTrigger(triggerURL, tokens, logger),
	}
}

var (
	_ RecordStore = (*HTTPRecordStore)(nil)
	_ ObjectStore = (*HTTPObjectStore)(nil)
)
