package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/countersign/internal/workflow"
)

// HTTP posts envelopes as JSON to BaseURL/envelopes.
type HTTP struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTP returns an HTTP dispatcher for baseURL.
func NewHTTP(baseURL string) (*HTTP, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("dispatch: endpoint is required for http dispatch")
	}
	return &HTTP{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// NewRequestID returns an identifier sent as X-Request-ID.
func NewRequestID() string { return "req_" + uuid.NewString() }

// Dispatch implements Dispatcher.
func (c *HTTP) Dispatch(ctx context.Context, env workflow.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dispatch: encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/envelopes", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", NewRequestID())
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch: post envelope: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrRejected, readError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// readError extracts {"error": "..."} from a failure body, falling back to
// the status line.
func readError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &out); err == nil && strings.TrimSpace(out.Error) != "" {
		return fmt.Sprintf("%d %s", resp.StatusCode, out.Error)
	}
	return resp.Status
}
