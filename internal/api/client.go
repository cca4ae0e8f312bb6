package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chinmina/ocpi-console/internal/role"
)

const (
	PathRole         = "/role"
	PathActiveToken  = "/active-token"
	PathRefreshToken = "/refresh_token"

	// HeaderActiveRole scopes a token request to a role.
	HeaderActiveRole = "X-Active-Role"

	// maxErrorDetail bounds how much of an error body is kept for messages.
	maxErrorDetail = 512
)

// Client issues calls to the console backend. Paths are relative to the API
// namespace: the transport is expected to add the namespace prefix and
// credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse API base URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("API base URL must be absolute: %s", baseURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// GetRole reads the backend's active and available roles.
func (c *Client) GetRole(ctx context.Context) (RoleState, error) {
	var state RoleState
	err := c.do(ctx, http.MethodGet, PathRole, nil, nil, &state)
	return state, err
}

// PutRole commits r as the active role, returning the committed state.
func (c *Client) PutRole(ctx context.Context, r role.Role) (RoleState, error) {
	var state RoleState
	err := c.do(ctx, http.MethodPut, PathRole, nil, setRoleRequest{Role: r}, &state)
	return state, err
}

// DeleteRole clears the active role on the backend.
func (c *Client) DeleteRole(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, PathRole, nil, nil, nil)
}

// ActiveToken fetches the authorization token for r.
func (c *Client) ActiveToken(ctx context.Context, r role.Role) (string, error) {
	header := http.Header{}
	header.Set(HeaderActiveRole, r.String())

	var resp activeTokenResponse
	if err := c.do(ctx, http.MethodGet, PathActiveToken, header, nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("active token response contained no token")
	}
	return resp.Token, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp refreshResponse
	if err := c.do(ctx, http.MethodPost, PathRefreshToken, nil, refreshRequest{Refresh: refreshToken}, &resp); err != nil {
		return "", err
	}
	if resp.Access == "" {
		return "", errors.New("refresh response contained no access token")
	}
	return resp.Access, nil
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not build %s %s request: %w", method, path, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorDetail))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(detail)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode %s %s response: %w", method, path, err)
	}

	return nil
}

// drain consumes what remains of a response body so the connection can be
// reused.
func drain(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 64<<10)
	_ = body.Close()
}
