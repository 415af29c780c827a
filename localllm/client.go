package localllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	generatePath = "/v1/responses"
	modelsPath   = "/v1/models"
)

// Client issues generate exchanges against a local backend. It holds no
// conversation state; every call carries the full input it needs, so one
// Client may serve any number of concurrent loops.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a Client for the backend at baseURL. timeout bounds
// each individual exchange; zero means no per-exchange bound beyond the
// caller's context.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate performs one generate-with-optional-tools exchange and
// returns the normalized response. In streaming mode the response is
// assembled from deltas and req.OnDelta observes each one; in either
// mode the returned ModelResponse is equivalent.
//
// Generate never retries. Transport failures surface as
// *UnavailableError, non-conforming payloads as *ProtocolError, and
// deadline or cancellation as *TimeoutError / *CancelledError.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error) {
	body, err := json.Marshal(wireRequest{
		Model:  c.model,
		Input:  buildInput(req.System, req.Conversation),
		Tools:  buildTools(req.Tools),
		Stream: req.Stream,
	})
	if err != nil {
		return nil, &ProtocolError{ClientError{Message: "encode request", Cause: err}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, &UnavailableError{ClientError: ClientError{Message: "build request", Cause: err}}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
			return nil, &TimeoutError{ClientError{Message: "generate request", Cause: err}}
		}
		return nil, wrapTransportError(ctx, "generate request", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, &UnavailableError{
			ClientError: ClientError{Message: fmt.Sprintf("generate request failed: %s", strings.TrimSpace(string(snippet)))},
			StatusCode:  httpResp.StatusCode,
		}
	}

	if req.Stream {
		return consumeStream(ctx, httpResp.Body, req.OnDelta)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, wrapTransportError(ctx, "read response body", err)
	}
	var doc wireResponse
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ProtocolError{ClientError{Message: "response is not a valid document", Cause: err}}
	}
	return normalizeResponse(&doc)
}

// ModelStatus reports the backend's reachability and whether a given
// model is served. Used by the status probe and the MCP check_status
// tool.
type ModelStatus struct {
	Online     bool
	ModelCount int
	HasModel   bool
}

// CheckModel probes the backend's model listing endpoint.
func (c *Client) CheckModel(ctx context.Context) (*ModelStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, &UnavailableError{ClientError: ClientError{Message: "build status request", Cause: err}}
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return &ModelStatus{Online: false}, nil
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &ModelStatus{Online: false}, nil
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&listing); err != nil {
		return nil, &ProtocolError{ClientError{Message: "model listing is not a valid document", Cause: err}}
	}

	status := &ModelStatus{Online: true, ModelCount: len(listing.Data)}
	for _, m := range listing.Data {
		if m.ID == c.model {
			status.HasModel = true
			break
		}
	}
	return status, nil
}
