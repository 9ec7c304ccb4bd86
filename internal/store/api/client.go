// Package api is the Store backend that talks to the remote bills API over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"billed/internal/auth"
	"billed/internal/core"
	"billed/internal/store"
)

// TokenValidity is the lifetime of the bearer token minted for each call.
const TokenValidity = 5 * time.Minute

const maxErrorBody = 4 << 10

// Client holds the connection pool and credentials shared by every tab.
type Client struct {
	baseURL *url.URL
	secret  []byte
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a client for baseURL. A nil httpClient gets a pooled default.
func NewClient(baseURL string, secret []byte, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("API base URL must be http or https, got %q", baseURL)
	}
	if len(secret) == 0 {
		return nil, errors.New("API secret is required")
	}
	if httpClient == nil {
		httpClient = newHTTPClientWithPooling()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: u, secret: secret, http: httpClient, logger: logger}, nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Ping checks that the API answers its readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/readyz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build readiness request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return core.NetworkError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return core.ErrorFromStatus(resp.StatusCode, fmt.Errorf("readiness probe returned %d", resp.StatusCode))
	}
	return nil
}

// For returns a Store that authenticates as identity.
func (c *Client) For(identity store.Identity) *Store {
	return &Store{client: c, identity: identity}
}

// Store sends every call with a bearer token for the current identity.
type Store struct {
	client   *Client
	identity store.Identity
}

var _ store.Store = (*Store)(nil)

func (s *Store) List(ctx context.Context) ([]core.Bill, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/bills", nil, "")
	if err != nil {
		return nil, err
	}
	var bills []core.Bill
	if err := s.do(req, &bills); err != nil {
		return nil, err
	}
	if bills == nil {
		bills = []core.Bill{}
	}
	return bills, nil
}

func (s *Store) Create(ctx context.Context, in core.CreateRequest) (core.Bill, error) {
	if err := in.Validate(); err != nil {
		return core.Bill{}, err
	}
	body, contentType, err := encodeCreate(in)
	if err != nil {
		return core.Bill{}, err
	}
	req, err := s.newRequest(ctx, http.MethodPost, "/bills", body, contentType)
	if err != nil {
		return core.Bill{}, err
	}
	var b core.Bill
	if err := s.do(req, &b); err != nil {
		return core.Bill{}, err
	}
	return b, nil
}

func (s *Store) Update(ctx context.Context, id string, patch core.BillPatch) (core.Bill, error) {
	if strings.TrimSpace(id) == "" {
		return core.Bill{}, core.NewValidationError("id", "identifiant requis")
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return core.Bill{}, fmt.Errorf("marshal patch: %w", err)
	}
	req, err := s.newRequest(ctx, http.MethodPatch, "/bills/"+url.PathEscape(id), bytes.NewReader(payload), "application/json")
	if err != nil {
		return core.Bill{}, err
	}
	var b core.Bill
	if err := s.do(req, &b); err != nil {
		return core.Bill{}, err
	}
	return b, nil
}

func (s *Store) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	who, ok := s.identity.Get()
	if !ok {
		return nil, core.ServerError(errors.New("no signed-in identity"))
	}
	token, err := auth.GenerateToken(who, s.client.secret, TokenValidity)
	if err != nil {
		return nil, core.ServerError(err)
	}
	u := *s.client.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, core.ServerError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (s *Store) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := s.client.http.Do(req)
	if err != nil {
		s.client.logger.Warn("API request failed", "component", "store_api",
			"method", req.Method, "path", req.URL.Path, "error", err)
		return core.NetworkError(err)
	}
	defer resp.Body.Close()

	s.client.logger.Debug("API request", "component", "store_api", "method", req.Method,
		"path", req.URL.Path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.ErrorFromStatus(resp.StatusCode, readAPIError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.ServerError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type apiError struct {
	Error string `json:"error"`
}

// readAPIError returns the server's message, or nil when the body carries none.
func readAPIError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return nil
	}
	var e apiError
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return errors.New(e.Error)
	}
	return nil
}

func encodeCreate(in core.CreateRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("email", in.Email); err != nil {
		return nil, "", fmt.Errorf("write email field: %w", err)
	}
	fields, err := json.Marshal(in.Fields)
	if err != nil {
		return nil, "", fmt.Errorf("encode fields: %w", err)
	}
	if string(fields) != "{}" {
		if err := w.WriteField("fields", string(fields)); err != nil {
			return nil, "", fmt.Errorf("write fields: %w", err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, in.File.Name))
	h.Set("Content-Type", in.File.DetectContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(in.File.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
