package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/zjrosen/mdata/internal/log"
)

// DefaultHTTPTimeout bounds a single request when no client is supplied.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// HTTP is a JSON Store over net/http. Identity params travel in the query
// string; record bodies travel as JSON.
type HTTP struct {
	client  *http.Client
	keyID   string
	headers map[string]string
}

// Ensure HTTP implements Store.
var _ Store = (*HTTP)(nil)

// NewHTTP creates an HTTP store. A nil client gets DefaultHTTPTimeout.
func NewHTTP(client *http.Client, keyID string, headers map[string]string) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if keyID == "" {
		keyID = DefaultKeyID
	}
	return &HTTP{client: client, keyID: keyID, headers: headers}
}

func (s *HTTP) Get(ctx context.Context, rawURL string, params any, opts *Options) (any, error) {
	target, err := s.withQuery(rawURL, params)
	if err != nil {
		return nil, err
	}
	return s.do(ctx, http.MethodGet, target, nil, opts)
}

func (s *HTTP) Post(ctx context.Context, rawURL string, body map[string]any, opts *Options) (any, error) {
	return s.do(ctx, http.MethodPost, rawURL, body, opts)
}

func (s *HTTP) Put(ctx context.Context, rawURL string, body map[string]any, opts *Options) (any, error) {
	return s.do(ctx, http.MethodPut, rawURL, body, opts)
}

func (s *HTTP) Destroy(ctx context.Context, rawURL string, params any, opts *Options) error {
	target, err := s.withQuery(rawURL, params)
	if err != nil {
		return err
	}
	_, err = s.do(ctx, http.MethodDelete, target, nil, opts)
	return err
}

// withQuery encodes params into the query string.
// Map params become key=value pairs (sorted); list params repeat the identity key.
func (s *HTTP) withQuery(rawURL string, params any) (string, error) {
	if params == nil {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	q := u.Query()
	switch p := params.(type) {
	case map[string]any:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, fmt.Sprint(p[k]))
		}
	default:
		ids, _, err := identityParams(params, s.keyID)
		if err != nil {
			return "", err
		}
		for _, id := range ids {
			q.Add(s.keyID, id)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *HTTP) do(ctx context.Context, method, target string, body map[string]any, opts *Options) (any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.ErrorErr(log.CatStore, "HTTP request failed", err, "method", method, "url", target)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	log.Debug(log.CatStore, "HTTP request", "method", method, "url", target, "status", resp.StatusCode)
	return payload, nil
}

// IsNotFound reports whether err is a not-found failure from any store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
