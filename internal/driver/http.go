package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBody bounds how much of a response body is read.
const maxBody = 8 << 20

// HTTPStatusError is returned for responses with a 4xx or 5xx status.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend responded %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// httpBackend is the shared plumbing of the HTTP-speaking drivers.
type httpBackend struct {
	base    *url.URL
	headers map[string]string
	client  *http.Client
}

func newHTTPBackend(rawBase string, headers map[string]string, timeout time.Duration) (*httpBackend, error) {
	if rawBase == "" {
		return nil, fmt.Errorf("no base URL configured")
	}
	base, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", rawBase, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", rawBase)
	}
	return &httpBackend{
		base:    base,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// resolve joins path onto the base URL, keeping any base path prefix.
func (h *httpBackend) resolve(path string, query map[string]any) string {
	u := *h.base
	if path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (h *httpBackend) do(ctx context.Context, method, target string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded any
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) != nil {
		decoded = string(raw)
	}
	return map[string]any{
		"status":  resp.StatusCode,
		"headers": map[string]string{"content-type": resp.Header.Get("Content-Type")},
		"body":    decoded,
	}, nil
}

// jsonBody returns the decoded JSON object of a response produced by do.
func jsonBody(resp map[string]any) map[string]any {
	m, _ := resp["body"].(map[string]any)
	return m
}
