package signature

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

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
)

// DefaultBaseURL is the public Dropbox Sign API root.
const DefaultBaseURL = "https://api.hellosign.com/v3"

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("signature api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("signature api: status %d: %s: %s", e.StatusCode, e.Name, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone {
		return common.ErrResourceGone
	}
	return common.ErrCollaborator
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client is a Provider backed by the Dropbox Sign REST API. The API key is
// sent as the basic-auth username.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

var _ Provider = (*Client)(nil)

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) SendWithTemplate(ctx context.Context, req *SendRequest) (*models.SignatureRequest, error) {
	var out signatureRequestEnvelope
	if err := c.do(ctx, http.MethodPost, "/signature_request/send_with_template", nil, req, &out); err != nil {
		return nil, err
	}
	return out.snapshot()
}

func (c *Client) Get(ctx context.Context, requestID string) (*models.SignatureRequest, error) {
	var out signatureRequestEnvelope
	if err := c.do(ctx, http.MethodGet, "/signature_request/"+url.PathEscape(requestID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.snapshot()
}

func (c *Client) Cancel(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/signature_request/cancel/"+url.PathEscape(requestID), nil, nil, nil)
}

func (c *Client) Remind(ctx context.Context, requestID, emailAddress string) error {
	body := map[string]string{"email_address": emailAddress}
	return c.do(ctx, http.MethodPost, "/signature_request/remind/"+url.PathEscape(requestID), nil, body, nil)
}

func (c *Client) FileURL(ctx context.Context, requestID, fileType string) (string, error) {
	q := url.Values{}
	q.Set("file_type", fileType)
	q.Set("get_url", "1")

	var out struct {
		FileURL string `json:"file_url"`
	}
	if err := c.do(ctx, http.MethodGet, "/signature_request/files/"+url.PathEscape(requestID), q, nil, &out); err != nil {
		return "", err
	}
	if out.FileURL == "" {
		return "", fmt.Errorf("signature api: empty file_url: %w", common.ErrCollaborator)
	}
	return out.FileURL, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("signature api %s %s: %w: %w", method, path, common.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w: %w", common.ErrCollaborator, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Error struct {
			Msg  string `json:"error_msg"`
			Name string `json:"error_name"`
		} `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(b, &payload); err == nil {
		apiErr.Name = payload.Error.Name
		apiErr.Message = payload.Error.Msg
	}
	return apiErr
}

// IsGone reports whether err means the provider no longer has the request.
func IsGone(err error) bool {
	return errors.Is(err, common.ErrResourceGone)
}
