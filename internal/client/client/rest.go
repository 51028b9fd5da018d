package client

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
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const maxResponseBody = 1 << 20

type RESTClient struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

type Option func(*RESTClient)

// WithHTTPClient replaces the default http.Client, e.g. to use a test server
// transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *RESTClient) { c.http = h }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *RESTClient) { c.token = ts }
}

// NewRESTClient builds a client for the API rooted at baseURL, for example
// http://localhost:8000/api/v1. timeout bounds each request.
func NewRESTClient(baseURL string, timeout time.Duration, opts ...Option) (*RESTClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api base url %q: scheme must be http or https", baseURL)
	}

	c := &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RESTClient) Create(ctx context.Context, t models.EntityType, payload models.Fields, idempotencyKey string) (int64, models.Fields, error) {
	coll, err := collection(t)
	if err != nil {
		return 0, nil, err
	}

	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(common.IdempotencyKeyHeader, idempotencyKey)
	}

	body, err := c.do(ctx, http.MethodPost, "/"+coll+"/", payload, header)
	if err != nil {
		return 0, nil, err
	}

	id, ok := body.Int64("id")
	if !ok || id <= 0 {
		return 0, nil, fmt.Errorf("%w: create %s returned no id", ErrInvalidResponse, t)
	}
	return id, body, nil
}

func (c *RESTClient) Update(ctx context.Context, t models.EntityType, remoteID models.ID, payload models.Fields) (models.Fields, error) {
	path, err := itemPath(t, remoteID)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

// Delete treats 404 as success: the entity is already gone.
func (c *RESTClient) Delete(ctx context.Context, t models.EntityType, remoteID models.ID) error {
	path, err := itemPath(t, remoteID)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, path, nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *RESTClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	return err
}

func (c *RESTClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, payload models.Fields, header http.Header) (models.Fields, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out models.Fields
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return out, nil
}

// authorize attaches the bearer token. A JWT whose exp has passed is not
// sent at all.
func (c *RESTClient) authorize(ctx context.Context, req *http.Request) error {
	if c.token == nil {
		return nil
	}
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		exp, err := claims.GetExpirationTime()
		if err == nil && exp != nil && !exp.After(time.Now()) {
			return fmt.Errorf("%w: %w", ErrUnauthorized, common.ErrTokenExpired)
		}
	}

	req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
	return nil
}

func collection(t models.EntityType) (string, error) {
	s, err := models.SchemaFor(t)
	if err != nil {
		return "", err
	}
	return s.Collection, nil
}

func itemPath(t models.EntityType, id models.ID) (string, error) {
	coll, err := collection(t)
	if err != nil {
		return "", err
	}
	if !id.IsRemote() {
		return "", fmt.Errorf("%w: %s is not a remote id", common.ErrInvalidID, id)
	}
	return "/" + coll + "/" + id.String(), nil
}
