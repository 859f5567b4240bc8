package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Release mirrors the server's release record. Signature snapshots are
// kept raw since the CLI only prints them.
type Release struct {
	Title               string            `json:"title,omitempty"`
	Description         string            `json:"description,omitempty"`
	SenderInfo          *Party            `json:"senderInfo,omitempty"`
	Created             int64             `json:"created,omitempty"`
	Modified            int64             `json:"modified,omitempty"`
	RequestedSignatures []json.RawMessage `json:"requestedSignatures"`
}

type Party struct {
	EmailAddress string `json:"emailAddress"`
	Name         string `json:"name"`
}

// Unreconciled is a signature reference whose status could not be refreshed.
type Unreconciled struct {
	ReleaseID          string `json:"releaseId"`
	SignatureRequestID string `json:"signatureRequestId"`
	Error              string `json:"error"`
}

type ReleaseList struct {
	Releases     map[string]*Release `json:"releases"`
	Unreconciled []Unreconciled      `json:"unreconciled"`
}

type auth struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type request struct {
	Action string `json:"action"`
	Auth   *auth  `json:"auth,omitempty"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type Client struct {
	url  string
	http *http.Client

	mu      sync.RWMutex
	session *auth
}

func New(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, http: httpClient}
}

// LoggedIn reports whether a session is held.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.UserID
}

func (c *Client) Logout() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

func (c *Client) Register(ctx context.Context, email string, password []byte) (string, error) {
	return c.call(ctx, "createAccount", false, map[string]string{"email": email, "password": string(password)})
}

func (c *Client) Login(ctx context.Context, email string, password []byte) error {
	body, err := c.call(ctx, "login", false, map[string]string{"email": email, "password": string(password)})
	if err != nil {
		return err
	}

	var res struct {
		AccessJWT string `json:"accessJWT"`
		UserID    string `json:"userId"`
	}
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return fmt.Errorf("unexpected login response: %w", err)
	}

	c.mu.Lock()
	c.session = &auth{UserID: res.UserID, Token: res.AccessJWT}
	c.mu.Unlock()
	return nil
}

func (c *Client) ListReleases(ctx context.Context) (*ReleaseList, error) {
	body, err := c.call(ctx, "getAllReleases", true, nil)
	if err != nil {
		return nil, err
	}

	var list ReleaseList
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		return nil, fmt.Errorf("unexpected releases response: %w", err)
	}
	return &list, nil
}

// SaveRelease creates a release when releaseID is empty, otherwise merges
// fields into it. It returns the release id.
func (c *Client) SaveRelease(ctx context.Context, releaseID string, fields map[string]any) (string, error) {
	params := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		params[k] = v
	}
	if releaseID != "" {
		params["releaseId"] = releaseID
	}

	body, err := c.call(ctx, "saveRelease", true, params)
	if err != nil {
		return "", err
	}

	var res struct {
		ReleaseID string `json:"releaseId"`
	}
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return "", fmt.Errorf("unexpected save response: %w", err)
	}
	return res.ReleaseID, nil
}

func (c *Client) DeleteRelease(ctx context.Context, releaseID string) error {
	_, err := c.call(ctx, "deleteRelease", true, map[string]string{"releaseId": releaseID})
	return err
}

// call posts one envelope and returns the body of a 200 response.
func (c *Client) call(ctx context.Context, action string, authed bool, params any) (string, error) {
	req := request{Action: action, Params: params}
	if authed {
		c.mu.RLock()
		req.Auth = c.session
		c.mu.RUnlock()
		if req.Auth == nil {
			return "", ErrUnauthorized
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &APIError{StatusCode: httpResp.StatusCode, Body: string(raw)}
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusForbidden && authed {
			c.Logout()
		}
		return "", &APIError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp.Body, nil
}
