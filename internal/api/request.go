package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"

	errorBodyLimit = 512
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: bad status: %s", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: bad status: %s: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if len(q) > 0 {
		req.URL.RawQuery = q.Encode()
	}

	return c.do(c.setHeaders(req), target)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload any, headers map[string]string, target any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("path", req.URL.Path))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method: req.Method,
			Path:   req.URL.Path,
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   utils.TruncateForLog(string(bytes.TrimSpace(data)), errorBodyLimit),
		}
	}

	if target == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("Content-Type", contentType)

	return req
}

// buildParams turns Filters into query values using the param tag.
// Zero values are skipped.
func buildParams(filters *Filters) url.Values {
	q := url.Values{}
	if filters == nil {
		return q
	}

	v := reflect.ValueOf(filters).Elem()
	for _, field := range reflect.VisibleFields(v.Type()) {
		key := field.Tag.Get("param")
		if key == "" {
			continue
		}

		value := v.FieldByIndex(field.Index)
		switch value.Kind() {
		case reflect.Slice:
			for i := 0; i < value.Len(); i++ {
				if s := fmt.Sprint(value.Index(i).Interface()); s != "" {
					q.Add(key, s)
				}
			}
		case reflect.Int:
			if n := value.Int(); n != 0 {
				q.Set(key, strconv.FormatInt(n, 10))
			}
		default:
			if s := fmt.Sprint(value.Interface()); s != "" {
				q.Set(key, s)
			}
		}
	}

	return q
}
