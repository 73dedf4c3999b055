package authcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client drives the service API the way a browser session would: one device,
// one bearer token and the claimed user id on every protected call.
type Client struct {
	baseURL      string
	http         *http.Client
	userAgent    string
	userIDHeader string

	userID string
	token  string
}

func NewClient(baseURL, userIDHeader string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if userIDHeader == "" {
		userIDHeader = "X-User-Id"
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         hc,
		userAgent:    "edu-authcheck/1.0",
		userIDHeader: userIDHeader,
	}
}

type StatusError struct {
	Path   string
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status %d (%s)", e.Path, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: status %d", e.Path, e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body any, authed bool) (*envelope, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "es")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set(c.userIDHeader, c.userID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s %s: decode body: %w", method, path, err)
	}
	return &env, resp.StatusCode, nil
}

func expectOK(path string, env *envelope, status int) error {
	if status == http.StatusOK && env.Success {
		return nil
	}
	se := &StatusError{Path: path, Status: status}
	if env.Error != nil {
		se.Code = env.Error.Code
	}
	return se
}

func (c *Client) Login(ctx context.Context, identity, password string) error {
	const path = "/api/v1/auth/login"
	env, status, err := c.do(ctx, http.MethodPost, path, map[string]string{"identity": identity, "password": password}, false)
	if err != nil {
		return err
	}
	if err := expectOK(path, env, status); err != nil {
		return err
	}
	var data struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("%s: decode data: %w", path, err)
	}
	if data.UserID == "" || data.Token == "" {
		return fmt.Errorf("%s: response missing user_id or token", path)
	}
	c.userID, c.token = data.UserID, data.Token
	return nil
}

func (c *Client) UserID() string { return c.userID }

// Session returns the renewed session expiry.
func (c *Client) Session(ctx context.Context) (time.Time, error) {
	const path = "/api/v1/auth/session"
	env, status, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return time.Time{}, err
	}
	if err := expectOK(path, env, status); err != nil {
		return time.Time{}, err
	}
	var data struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return time.Time{}, fmt.Errorf("%s: decode data: %w", path, err)
	}
	return data.ExpiresAt, nil
}

func (c *Client) Me(ctx context.Context) (string, error) {
	const path = "/api/v1/me"
	env, status, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return "", err
	}
	if err := expectOK(path, env, status); err != nil {
		return "", err
	}
	var data struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("%s: decode data: %w", path, err)
	}
	return data.Username, nil
}

func (c *Client) Logout(ctx context.Context) error {
	const path = "/api/v1/auth/logout"
	env, status, err := c.do(ctx, http.MethodPost, path, nil, true)
	if err != nil {
		return err
	}
	return expectOK(path, env, status)
}
