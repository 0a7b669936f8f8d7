package auth

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the dashboard backend's auth endpoints. Successful calls
// store the returned token in the provided Store.
type Client struct {
	base  string
	store *Store
	rest  *resty.Client
}

func NewClient(base string, store *Store, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{base: base, store: store, rest: r}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	} `json:"data"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(email, password string) error {
	resp := &tokenResp{}
	httpResp, err := c.rest.R().
		SetBody(loginReq{Email: email, Password: password}).
		SetResult(resp).
		Post(c.base + "/api/v1/auth/login")
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return fmt.Errorf("login failed: status %d", httpResp.StatusCode())
	}
	if resp.Code != 0 {
		return fmt.Errorf("login rejected: %d %s", resp.Code, resp.Msg)
	}
	if resp.Data.Token == "" {
		return fmt.Errorf("login response contained no token")
	}

	c.store.Set(resp.Data.Token)
	return nil
}

// Refresh trades the current token for a fresh one.
func (c *Client) Refresh() error {
	token := c.store.Token()
	if token == "" {
		return fmt.Errorf("no token to refresh")
	}

	resp := &tokenResp{}
	httpResp, err := c.rest.R().
		SetHeader("Authorization", "Bearer "+token).
		SetResult(resp).
		Post(c.base + "/api/v1/auth/refresh")
	if err != nil {
		return fmt.Errorf("refresh request failed: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return fmt.Errorf("refresh failed: status %d", httpResp.StatusCode())
	}
	if resp.Code != 0 {
		return fmt.Errorf("refresh rejected: %d %s", resp.Code, resp.Msg)
	}
	if resp.Data.Token == "" {
		return fmt.Errorf("refresh response contained no token")
	}

	c.store.Set(resp.Data.Token)
	return nil
}
