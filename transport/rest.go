package transport

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

	goerrors "github.com/goliatone/go-errors"
)

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Token   string
	Body    any
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

func (r *Response) Decode(target any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("transport: empty response body")
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

// RESTCaller executes JSON requests against a base URL. Non-2xx responses are
// returned as *APIError, transport failures as *NetworkError.
type RESTCaller struct {
	Client               HTTPDoer
	BaseURL              string
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTCaller(client HTTPDoer, baseURL string) *RESTCaller {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTCaller{
		Client:  client,
		BaseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		DefaultHeaders: map[string]string{
			"Accept":               "application/vnd.github+json",
			"X-GitHub-Api-Version": "2022-11-28",
		},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (c *RESTCaller) Do(ctx context.Context, req Request) (*Response, error) {
	if c == nil || c.Client == nil {
		return nil, transportError(
			"transport: rest caller requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := c.resolveURL(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: encode request body",
				http.StatusBadRequest, map[string]any{"method": method, "url": target})
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: create http request",
			http.StatusBadRequest, map[string]any{"method": method, "url": target})
	}
	for key, value := range c.DefaultHeaders {
		if strings.TrimSpace(key) != "" {
			httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) != "" {
			httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	startedAt := time.Now()
	httpRes, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}
	defer httpRes.Body.Close()

	limit := c.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultRESTResponseBodyLimit
	}
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}
	if int64(len(payload)) > limit {
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode, "response_limit_b": limit},
		)
	}

	if httpRes.StatusCode >= http.StatusBadRequest {
		return nil, parseAPIError(httpRes.StatusCode, httpRes.Header, payload)
	}
	return &Response{
		StatusCode: httpRes.StatusCode,
		Header:     httpRes.Header.Clone(),
		Body:       payload,
		Duration:   time.Since(startedAt),
	}, nil
}

func (c *RESTCaller) resolveURL(req Request) (string, error) {
	raw := strings.TrimSpace(req.Path)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = c.BaseURL + "/" + strings.TrimPrefix(raw, "/")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing host")
		}
		return "", transportWrapError(err, goerrors.CategoryBadInput, "transport: invalid request url",
			http.StatusBadRequest, map[string]any{"url": raw})
	}
	if len(req.Query) > 0 {
		query := parsed.Query()
		for key, value := range req.Query {
			if strings.TrimSpace(key) == "" {
				continue
			}
			query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func parseAPIError(status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Header: header.Clone()}
	var decoded struct {
		Message          string           `json:"message"`
		DocumentationURL string           `json:"documentation_url"`
		Errors           []APIErrorDetail `json:"errors"`
	}
	if len(body) > 0 && json.Unmarshal(body, &decoded) == nil {
		apiErr.Message = decoded.Message
		apiErr.DocumentationURL = decoded.DocumentationURL
		apiErr.Errors = decoded.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	return apiErr
}
