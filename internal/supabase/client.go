package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrIncompleteResult is returned when a paged select cannot account for every
// row the server counted.
var ErrIncompleteResult = errors.New("supabase: incomplete result")

// APIError is the error body PostgREST returns for failed requests.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase api error: status %d, code %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase api error: status %d: %s", e.Status, e.Message)
}

// Client is a minimal PostgREST client authenticated with the service-role key,
// so requests bypass row level security.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the project at baseURL (e.g. https://xyz.supabase.co).
func NewClient(baseURL, serviceRoleKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  serviceRoleKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Update patches every row matched by filter and returns how many rows changed.
func (c *Client) Update(ctx context.Context, table string, filter url.Values, patch any) (int, error) {
	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodPatch, table, filter, patch, "return=representation", &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Insert posts rows to the table. When out is non-nil the inserted rows are decoded into it.
func (c *Client) Insert(ctx context.Context, table string, rows any, out any) error {
	prefer := "return=minimal"
	if out != nil {
		prefer = "return=representation"
	}
	return c.do(ctx, http.MethodPost, table, nil, rows, prefer, out)
}

// SelectAll pages through GET /rest/v1/{table}?{query} pageSize rows at a time,
// following the exact count PostgREST reports in Content-Range. The query must
// carry a stable order. Responses without Content-Range end at the first short page.
func SelectAll[T any](ctx context.Context, c *Client, table string, query url.Values, pageSize int) ([]T, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}

	var all []T
	offset := 0
	for {
		var page []T
		header := http.Header{}
		header.Set("Range-Unit", "items")
		header.Set("Range", fmt.Sprintf("%d-%d", offset, offset+pageSize-1))
		header.Set("Prefer", "count=exact")

		respHeader, err := c.send(ctx, http.MethodGet, table, query, header, nil, &page)
		if err != nil {
			return nil, err
		}

		cr, ok, err := parseContentRange(respHeader.Get("Content-Range"))
		if err != nil {
			return nil, err
		}
		if !ok {
			all = append(all, page...)
			if len(page) < pageSize {
				return all, nil
			}
			offset += len(page)
			continue
		}

		if len(page) > 0 && (cr.start != offset || cr.end-cr.start+1 != len(page)) {
			return nil, fmt.Errorf("%w: requested rows from %d, got Content-Range %d-%d for %d rows",
				ErrIncompleteResult, offset, cr.start, cr.end, len(page))
		}
		all = append(all, page...)
		offset += len(page)

		switch {
		case cr.total < 0:
			if len(page) < pageSize {
				return all, nil
			}
		case len(all) == cr.total:
			return all, nil
		case len(all) > cr.total:
			return nil, fmt.Errorf("%w: read %d rows, server counted %d", ErrIncompleteResult, len(all), cr.total)
		case len(page) == 0:
			return nil, fmt.Errorf("%w: read %d of %d rows", ErrIncompleteResult, len(all), cr.total)
		}
	}
}

type contentRange struct {
	start, end int // -1 when the range is "*"
	total      int // -1 when the total is "*"
}

// parseContentRange reads "0-24/100", "*/0" or "0-24/*". ok is false when the header is absent.
func parseContentRange(value string) (cr contentRange, ok bool, err error) {
	if value == "" {
		return contentRange{}, false, nil
	}
	// Some proxies keep the unit prefix.
	value = strings.TrimPrefix(strings.TrimSpace(value), "items ")

	rng, total, found := strings.Cut(value, "/")
	if !found {
		return contentRange{}, false, fmt.Errorf("malformed Content-Range %q", value)
	}

	cr = contentRange{start: -1, end: -1, total: -1}
	if total != "*" {
		if cr.total, err = strconv.Atoi(total); err != nil {
			return contentRange{}, false, fmt.Errorf("malformed Content-Range %q: %w", value, err)
		}
	}
	if rng != "*" {
		from, to, found := strings.Cut(rng, "-")
		if !found {
			return contentRange{}, false, fmt.Errorf("malformed Content-Range %q", value)
		}
		if cr.start, err = strconv.Atoi(from); err != nil {
			return contentRange{}, false, fmt.Errorf("malformed Content-Range %q: %w", value, err)
		}
		if cr.end, err = strconv.Atoi(to); err != nil {
			return contentRange{}, false, fmt.Errorf("malformed Content-Range %q: %w", value, err)
		}
	}
	return cr, true, nil
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body any, prefer string, out any) error {
	var header http.Header
	if prefer != "" {
		header = http.Header{}
		header.Set("Prefer", prefer)
	}
	_, err := c.send(ctx, method, table, query, header, body, out)
	return err
}

// send executes the request and returns the response headers on success.
func (c *Client) send(ctx context.Context, method, table string, query url.Values, header http.Header, body any, out any) (http.Header, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Header, nil
}
