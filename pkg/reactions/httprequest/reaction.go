// Package httprequest provides the http.request reaction.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/template"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrHTTPRequestHostInvalid is returned when neither url nor host is configured.
	ErrHTTPRequestHostInvalid = errors.New("invalid HTTP request host")
	// ErrHTTPServerError is returned when the server answers with a 5xx status.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPClientError is returned when the server answers with a 4xx status.
	ErrHTTPClientError = errors.New("client error during HTTP request")
)

// Reaction performs an HTTP request built from the instance params. Every string param is a
// template rendered against the input, the params and the execution.
type Reaction struct {
	client *http.Client
	logger *slog.Logger
}

func New(logger *slog.Logger, client *http.Client) *Reaction {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Reaction{
		client: client,
		logger: logger.With("module", "http_request_reaction"),
	}
}

func (r *Reaction) Key() protocol.Key {
	return protocol.NewKey("http", "request")
}

func (r *Reaction) Handle(ctx context.Context, req protocol.Request) (map[string]any, error) {
	data := template.Data(req.Input, req.Params, req.Execution)

	url, err := buildURL(req, data)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.StringParam("method"))
	if method == "" {
		method = http.MethodGet
	}

	body, err := buildBody(req, data)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, faults.Validation("http.request", "failed to create http request", err)
	}

	if err := setHeaders(httpReq, req, data); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "sending request", "method", method, "url", url)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, faults.Transient("http.request", "http request failed", err)
	}

	return r.processResponse(ctx, resp)
}

func buildURL(req protocol.Request, data map[string]any) (string, error) {
	raw := req.StringParam("url")
	if raw == "" {
		host := req.StringParam("host")
		if host == "" {
			return "", faults.Validation("http.request", "missing url or host", ErrHTTPRequestHostInvalid)
		}

		scheme := req.StringParam("protocol")
		if scheme == "" {
			scheme = "http"
		}

		path := req.StringParam("path")
		if path == "" {
			path = "/"
		}

		raw = fmt.Sprintf("%s://%s%s", scheme, host, path)
	}

	url, err := template.RenderString(raw, data)
	if err != nil {
		return "", faults.Validation("http.request", "failed to render url template", err)
	}

	return url, nil
}

func buildBody(req protocol.Request, data map[string]any) (io.Reader, error) {
	raw, ok := req.Param("body")
	if !ok {
		return http.NoBody, nil
	}

	if str, isString := raw.(string); isString {
		rendered, err := template.RenderString(str, data)
		if err != nil {
			return nil, faults.Validation("http.request", "failed to render body template", err)
		}

		return strings.NewReader(rendered), nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, faults.Validation("http.request", "failed to marshal body", err)
	}

	return strings.NewReader(string(encoded)), nil
}

func setHeaders(httpReq *http.Request, req protocol.Request, data map[string]any) error {
	headers, _ := req.Params["headers"].(map[string]any)

	for key, value := range headers {
		str, ok := value.(string)
		if !ok {
			continue
		}

		rendered, err := template.RenderString(str, data)
		if err != nil {
			return faults.Validation("http.request", fmt.Sprintf("failed to render header '%s' template", key), err)
		}

		httpReq.Header.Set(key, rendered)
	}

	if req.Token != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	if httpReq.Body != http.NoBody && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return nil
}

func (r *Reaction) processResponse(ctx context.Context, resp *http.Response) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Transient("http.request", "failed to read response body", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	r.logger.InfoContext(ctx, "request completed", "status", resp.StatusCode, "bytes", len(bodyBytes))

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	}, nil
}

func classifyStatus(status int) error {
	const op = "http.request"

	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return faults.Transient(op, fmt.Sprintf("status %d", status), ErrHTTPServerError)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return faults.Auth(op, fmt.Sprintf("status %d", status), ErrHTTPClientError)
	case status == http.StatusNotFound:
		return faults.NotFound(op, fmt.Sprintf("status %d", status), ErrHTTPClientError)
	case status >= http.StatusBadRequest:
		return faults.Validation(op, fmt.Sprintf("status %d", status), ErrHTTPClientError)
	default:
		return nil
	}
}
