package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxErrorBody    = 4 << 10
	maxResponseBody = 8 << 20
)

// StatusError is returned when a remote service answers with a non-2xx code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// WorkflowClient calls a hosted workflow that produces leveled materials.
type WorkflowClient struct {
	endpoint string
	botID    string
	apiKey   string
	http     *http.Client
}

func NewWorkflowClient(endpoint, botID, apiKey string, timeout time.Duration) *WorkflowClient {
	return &WorkflowClient{
		endpoint: endpoint,
		botID:    botID,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type workflowPayload struct {
	BotID     string  `json:"bot_id"`
	UserInput Request `json:"user_input"`
	Stream    bool    `json:"stream"`
}

type workflowEnvelope struct {
	Code   *int            `json:"code"`
	Msg    string          `json:"msg"`
	Output json.RawMessage `json:"output"`
}

func (c *WorkflowClient) Generate(ctx context.Context, req Request) (Materials, error) {
	body, err := json.Marshal(workflowPayload{BotID: c.botID, UserInput: req})
	if err != nil {
		return Materials{}, fmt.Errorf("marshal workflow request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Materials{}, fmt.Errorf("build workflow request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Materials{}, fmt.Errorf("workflow request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return Materials{}, fmt.Errorf("read workflow response: %w", err)
	}
	if len(data) > maxResponseBody {
		return Materials{}, fmt.Errorf("workflow response too large: over %d bytes", maxResponseBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return Materials{}, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	var env workflowEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Materials{}, fmt.Errorf("decode workflow response: %w", err)
	}
	if env.Code != nil && *env.Code != 0 {
		return Materials{}, fmt.Errorf("workflow error %d: %s", *env.Code, env.Msg)
	}

	out := data
	if len(env.Output) > 0 && string(env.Output) != "null" {
		out = env.Output
		// some workflows return the object serialized as a string
		var s string
		if json.Unmarshal(out, &s) == nil {
			out = []byte(s)
		}
	}
	return NewMaterials(out)
}
