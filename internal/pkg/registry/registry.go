// Package registry talks to the CEE mobility-proof registry (RPC).
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/moncompte-mobilite/mcm-api/internal/pkg/env"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/operatordata"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the normalized registry answer. Either Data (success) or
// Message (error) is populated; Code carries the upstream HTTP status.
type Response struct {
	Status  string                 `json:"status"`
	Code    int                    `json:"code,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// Client posts canonicalized operator records to the registry.
type Client struct {
	httpClient *http.Client
	url        string
	token      string
}

// NewClient builds a registry client from the environment. RPC_CEE_URL
// points at the API root; the policies endpoint is fixed.
func NewClient() *Client {
	base := env.GetEnv("RPC_CEE_URL", "https://api.demo.covoiturage.beta.gouv.fr/v3")
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        base + "/policies/cee",
		token:      env.GetEnv("RPC_CEE_TOKEN", ""),
	}
}

// NewClientWith builds a client against an explicit endpoint, used by tests.
func NewClientWith(httpClient *http.Client, url, token string) *Client {
	return &Client{httpClient: httpClient, url: url, token: token}
}

// HasToken reports whether a bearer token is configured. Callers treat a
// missing token as UnprocessableEntity before reaching the network.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// CheckCEE posts the record and maps the upstream reply onto a Response.
// Upstream 4xx/5xx replies are data, not errors; only transport failures
// return a non-nil error.
func (c *Client) CheckCEE(ctx context.Context, record operatordata.OperatorRecord) (Response, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return Response{}, fmt.Errorf("registry: marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("registry: call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("registry: read response: %w", err)
	}

	var payload map[string]interface{}
	if len(raw) > 0 {
		// The registry answers JSON; keep the raw text when it does not.
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = nil
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Response{Status: StatusSuccess, Code: resp.StatusCode, Data: payload}, nil
	}

	fiberlog.Errorf("[Registry] CEE call failed with status %d: %s", resp.StatusCode, raw)
	out := Response{Status: StatusError, Code: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusConflict:
		out.Data = payload
		out.Message = "La demande est déjà enregistrée"
	case http.StatusNotFound:
		out.Message = "Not Found"
	default:
		out.Message = errorMessage(payload, raw)
	}
	return out, nil
}

func errorMessage(payload map[string]interface{}, raw []byte) string {
	if nested, ok := payload["error"].(map[string]interface{}); ok {
		if msg, ok := nested["message"].(string); ok {
			return msg
		}
	}
	return string(raw)
}
