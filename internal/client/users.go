// Package client talks to the remote uLift users API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ulift/internal/utils"
	"ulift/internal/validation"
)

// CreateUserPath is the users API route for registrations.
const CreateUserPath = "/v1/users"

const maxResponseBytes = 1 << 20

// Payload is an encoded request body with its content type.
type Payload struct {
	Body        []byte
	ContentType string
}

// ResourceID accepts both JSON strings and numbers. The number 0 and null
// decode to the empty id.
type ResourceID string

func (id *ResourceID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*id = ""
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*id = ResourceID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	// a numeric zero is no id
	if f, err := n.Float64(); err == nil && f == 0 {
		*id = ""
		return nil
	}
	*id = ResourceID(n.String())
	return nil
}

// CreateUserResponse is the users API answer to a registration.
type CreateUserResponse struct {
	ID     ResourceID              `json:"id"`
	Error  string                  `json:"error,omitempty"`
	Errors []validation.FieldError `json:"errors,omitempty"`
	Status int                     `json:"-"`
}

// Created reports whether the API returned a created-resource identifier.
func (r *CreateUserResponse) Created() bool { return r != nil && r.ID != "" }

// UsersClientConfig configures the users API client.
type UsersClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// UsersClient calls the users API.
type UsersClient struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
}

// NewUsersClient creates a users API client. A zero timeout defaults to 30s.
func NewUsersClient(cfg UsersClientConfig) *UsersClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &UsersClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		log:        log,
	}
}

// CreateUser posts a multipart registration.
//
// A well-formed answer is returned as is, whether or not it carries an id; the
// caller decides. Answers listing per-field failures come back as a
// validation.FieldErrors error. Transport failures and unreadable answers are
// returned as errors, with a *utils.CustomError holding the HTTP status when
// the API answered at all.
func (c *UsersClient) CreateUser(ctx context.Context, p *Payload) (*CreateUserResponse, error) {
	url := c.baseURL + CreateUserPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", p.ContentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.log.Debug("users api answered",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	var out CreateUserResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode >= 400 {
			return nil, utils.New(resp.StatusCode, statusMessage(resp.StatusCode, body))
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	out.Status = resp.StatusCode

	if !out.Created() {
		if fe := validation.FromList(out.Errors); fe != nil {
			return nil, fe
		}
		if resp.StatusCode >= 400 && out.Error == "" {
			return nil, utils.New(resp.StatusCode, statusMessage(resp.StatusCode, body))
		}
	}
	return &out, nil
}

func statusMessage(status int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	if len(msg) > 256 {
		msg = msg[:256] + "...(truncated)"
	}
	return msg
}
