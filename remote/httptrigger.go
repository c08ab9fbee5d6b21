package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/uplink/auth"
	"github.com/phrazzld/uplink/job"
)

// HTTPTrigger is a Trigger client for the processing backend's
// POST endpoint. Any 2xx response counts as acceptance; everything else
// is mapped onto the queue's error taxonomy.
type HTTPTrigger struct {
	endpoint string
	client   *http.Client
	tokens   auth.TokenSource
	logger   *slog.Logger
}

// NewHTTPTrigger creates a trigger client for the given endpoint URL.
// tokens may be nil for unauthenticated backends.
func NewHTTPTrigger(endpoint string, tokens auth.TokenSource, logger *slog.Logger) *HTTPTrigger {
	return &HTTPTrigger{
		endpoint: endpoint,
		client:   &http.Client{},
		tokens:   tokens,
		logger:   logger.With("component", "http_trigger"),
	}
}

// Process submits the trigger request and returns once the remote side
// accepts it.
func (t *HTTPTrigger) Process(ctx context.Context, req TriggerRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode trigger request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := authorize(ctx, httpReq, t.tokens); err != nil {
		return err
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", job.ErrNetworkUnavailable, err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		t.logger.Debug("processing trigger accepted",
			"meeting_id", req.MeetingID,
			"status_code", resp.StatusCode)
		return nil
	}
	return classifyResponse("trigger", resp.StatusCode)
}

var _ Trigger = (*HTTPTrigger)(nil)
