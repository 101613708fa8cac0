// Package lom is the HTTP client for the SVK LOM320 web module. Reads and
// writes are both plain GETs against fixed CGI paths; the write carries its
// payload in query parameters, which is a quirk of the controller firmware,
// not a choice of this client. Retry policy lives in the poller, not here.
package lom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"svklom_bridge/internal/auth"
)

const (
	readPath  = "/cgi-bin/json_values.cgi"
	writePath = "/cgi-bin/write_values.cgi"

	// IDSeparator joins device IDs in the read query parameter.
	IDSeparator = ";"
)

// Client issues authenticated requests to one LOM320 module.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the module at host. The timeout applies per
// request; a request that exceeds it fails with ErrTimeout.
func NewClient(host, username, password string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: "http://" + host,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: auth.NewTransport(username, password, &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
		logger: logger,
	}
}

// ReadValues fetches the raw value strings for the given device IDs in one
// request. The result maps device ID to raw value; IDs the controller did not
// answer for are absent. The caller is responsible for chunking large ID sets.
func (c *Client) ReadValues(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, IDSeparator))

	body, err := c.get(ctx, readPath, q)
	if err != nil {
		return nil, err
	}

	values, err := parseValues(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("read values", "requested", len(ids), "returned", len(values))
	return values, nil
}

// WriteValue sets one device ID to a new value. Success is HTTP 200; the
// response body is not interpreted.
func (c *Client) WriteValue(ctx context.Context, id, value string) error {
	q := url.Values{}
	q.Set("itemno", id)
	q.Set("itemval", value)

	if _, err := c.get(ctx, writePath, q); err != nil {
		return err
	}

	c.logger.Debug("wrote value", "id", id, "value", value)
	return nil
}

// get performs one GET and classifies transport and status failures into the
// package error kinds.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	switch {
	case res.StatusCode == http.StatusOK:
		return body, nil
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthRejected, res.StatusCode)
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case res.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServer, res.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrServer, res.StatusCode)
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
}

// parseValues decodes a read response body. Current firmware returns a JSON
// array of {id, name, value} objects; known firmware quirks are comma-joined
// objects without the array brackets and an object map keyed by ID. Legacy
// firmware returns an HTML page that is scraped instead.
func parseValues(body []byte) (map[string]string, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	if strings.HasPrefix(text, "<!DOCTYPE") || strings.HasPrefix(text, "<html") || strings.HasPrefix(text, "<HTML") {
		return parseLegacyHTML(text)
	}

	// Some LOM firmware emits {...},{...} without the enclosing brackets.
	// Only an undecodable body is rewrapped; valid JSON that happens to
	// contain the pattern is left alone.
	if strings.HasPrefix(text, "{") && strings.Contains(text, "},{") && !json.Valid([]byte(text)) {
		text = "[" + text + "]"
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	if strings.HasPrefix(text, "[") {
		var items []any
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return itemValues(items)
	}

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Some firmware wraps the item array in a values key.
	if list, ok := obj["values"].([]any); ok {
		return itemValues(list)
	}

	values := make(map[string]string, len(obj))
	for id, raw := range obj {
		switch v := raw.(type) {
		case map[string]any:
			if val, ok := stringField(v, "value"); ok {
				values[id] = val
			}
		default:
			values[id] = anyToString(raw)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values in object", ErrMalformed)
	}
	return values, nil
}

// itemValues collects the id/value pairs out of a list of item objects.
func itemValues(items []any) (map[string]string, error) {
	values := make(map[string]string, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, okID := stringField(m, "id")
		val, okVal := stringField(m, "value")
		if okID && okVal {
			values[id] = val
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no id/value items", ErrMalformed)
	}
	return values, nil
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return anyToString(v), true
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
