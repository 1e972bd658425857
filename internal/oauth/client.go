// Package oauth forwards token requests to the external authorization server.
// Tokens are never minted or inspected here.
package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"letDrone/internal/apperrors"
)

// Response is the upstream answer, relayed verbatim to the caller.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a 2xx upstream status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	tokenURL     string
	revokeURL    string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewClient(tokenURL, revokeURL, clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		tokenURL:     tokenURL,
		revokeURL:    revokeURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// PasswordGrant exchanges username and password for tokens.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*Response, error) {
	return c.post(ctx, c.tokenURL, url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	})
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Response, error) {
	return c.post(ctx, c.tokenURL, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// Revoke invalidates a token.
func (c *Client) Revoke(ctx context.Context, token string) (*Response, error) {
	return c.post(ctx, c.revokeURL, url.Values{
		"token": {token},
	})
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*Response, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Internal("build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return nil, apperrors.Timeout("authorization server timed out", err)
		}
		return nil, apperrors.Unavailable("authorization server unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Unavailable("read authorization server response", err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
