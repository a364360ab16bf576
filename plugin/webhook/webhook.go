package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout is the timeout for a webhook request.
const DefaultTimeout = 30 * time.Second

// ActivityType names the event a payload reports.
const (
	ActivityTypeRecapSucceeded = "recap.succeeded"
	ActivityTypeRecapFailed    = "recap.failed"
)

// Run is the JSON view of a finished summarize run.
type Run struct {
	UID          string          `json:"uid"`
	DocumentPath string          `json:"documentPath"`
	Status       string          `json:"status"`
	ErrorKind    string          `json:"errorKind,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Fields       json.RawMessage `json:"fields"`
	Model        string          `json:"model,omitempty"`
	// Token usage of the completion call; zero when the model was never called.
	PromptTokens     int   `json:"promptTokens"`
	CompletionTokens int   `json:"completionTokens"`
	DurationMs       int64 `json:"durationMs"`
	CreatedTs        int64 `json:"createdTs"`
}

type WebhookRequestPayload struct {
	Run          *Run   `json:"run"`
	URL          string `json:"url"`
	ActivityType string `json:"activityType"`
}

// Client posts payloads to webhook endpoints.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client; a non-positive timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Post posts the message to webhook endpoint.
func (c *Client) Post(ctx context.Context, requestPayload *WebhookRequestPayload) error {
	body, err := json.Marshal(requestPayload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", requestPayload.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestPayload.URL, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", requestPayload.URL)
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", requestPayload.URL)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read webhook response from %s", requestPayload.URL)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", requestPayload.URL, resp.StatusCode, b)
	}

	// An empty body is success; a JSON body may still carry an error code.
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	response := &struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}{}
	if err := json.Unmarshal(b, response); err != nil {
		return nil
	}
	if response.Code != 0 {
		return errors.Errorf("receive error code sent by webhook server, code %d, msg: %s", response.Code, response.Message)
	}

	return nil
}
