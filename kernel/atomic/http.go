package atomic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flowkit/kernel/kernel"
)

var templateVarPattern = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// httpExecutor performs a templated HTTP request, retrying on configured
// status codes or network errors, and extracting a value from the parsed
// response body.
type httpExecutor struct {
	id           string
	cfg          *kernel.HTTPConfig
	maxRetries   int
	client       *http.Client
}

func newHTTPExecutor() kernel.AtomicCreator {
	return func(config kernel.ExecutorConfig, _ kernel.ChildFactory) (kernel.Executor, error) {
		if config.HTTP == nil {
			return nil, &kernel.ConfigError{Code: kernel.CodeValidation, Message: "http executor requires an http config"}
		}
		return &httpExecutor{
			id:         config.ID,
			cfg:        config.HTTP,
			maxRetries: config.Constraints.MaxRetries,
			client:     &http.Client{},
		}, nil
	}
}

func (e *httpExecutor) ID() string { return e.id }

func (e *httpExecutor) Execute(ctx context.Context, ec *kernel.ExecutionContext, input any) (kernel.ExecutionResult, error) {
	if err := ec.CheckCancelled(ctx); err != nil {
		return kernel.ExecutionResult{}, err
	}

	vars := ec.Vars().ToObject()
	method := e.cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	targetURL := interpolate(e.cfg.URL, input, vars, true)
	body := interpolate(e.cfg.Body, input, vars, false)

	var (
		resp       *http.Response
		lastErr    error
		lastStatus int
	)

	b := backoff.WithContext(retryBackoff(e.cfg.RetryDelay, e.maxRetries), ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		req, rerr := http.NewRequestWithContext(ctx, method, targetURL, bodyReader(body))
		if rerr != nil {
			return backoff.Permanent(rerr)
		}
		for k, v := range e.cfg.Headers {
			req.Header.Set(k, v)
		}

		r, derr := e.client.Do(req)
		if derr != nil {
			lastErr = derr
			lastStatus = 0
			return derr
		}
		if shouldRetryStatus(r.StatusCode, e.cfg.RetryOn) {
			lastStatus = r.StatusCode
			lastErr = fmt.Errorf("http status %d", r.StatusCode)
			_ = r.Body.Close()
			return lastErr
		}
		resp = r
		return nil
	}, b)

	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return kernel.ExecutionResult{}, &kernel.DriverError{
			NodeID:     ec.NodeID(),
			StatusCode: lastStatus,
			Message:    errMsg(err, lastErr),
			Cause:      err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return kernel.Failed(kernel.CodeExecutionError, err.Error(), false), nil
	}

	parsed, err := parseResponse(e.cfg.ResponseType, raw)
	if err != nil {
		return kernel.Failed(kernel.CodeExecutionError, err.Error(), false), nil
	}

	output := parsed
	if e.cfg.ExtractPath != "" {
		extracted, ok := extractPath(parsed, e.cfg.ExtractPath)
		if !ok {
			return kernel.Failed(kernel.CodeExecutionError,
				fmt.Sprintf("extractPath %q did not resolve", e.cfg.ExtractPath), false), nil
		}
		output = extracted
	}

	result := kernel.Success(output)
	result.Metadata = &kernel.Metadata{ExecutorID: e.id, ExecutorType: kernel.TypeHTTP, RetryCount: attempt - 1}
	return result, nil
}

func bodyReader(body string) io.Reader {
	if body == "" {
		return nil
	}
	return bytes.NewBufferString(body)
}

func shouldRetryStatus(status int, retryOn []int) bool {
	for _, s := range retryOn {
		if s == status {
			return true
		}
	}
	return status == http.StatusTooManyRequests
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func errMsg(err, lastErr error) string {
	if lastErr != nil {
		return lastErr.Error()
	}
	return err.Error()
}

// interpolate substitutes {{input}} and {{var.NAME}} placeholders. When
// urlEncode is set, substituted values are percent-encoded, matching
// spec.md §4.9's "{{input}} (URL-encoded)" for the URL template; the body
// template substitutes raw values.
func interpolate(template string, input any, vars map[string]any, urlEncode bool) string {
	if template == "" {
		return ""
	}
	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		var value string
		switch {
		case name == "input":
			value = fmt.Sprintf("%v", input)
		case strings.HasPrefix(name, "var."):
			v, _ := vars[strings.TrimPrefix(name, "var.")]
			value = fmt.Sprintf("%v", v)
		default:
			return match
		}
		if urlEncode {
			return url.QueryEscape(value)
		}
		return value
	})
}

func parseResponse(responseType string, raw []byte) (any, error) {
	switch responseType {
	case "", "json":
		if len(raw) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding json response: %w", err)
		}
		return v, nil
	case "text":
		return string(raw), nil
	case "blob":
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported responseType %q", responseType)
	}
}

// extractPath walks a dotted path with optional bracket indices, e.g.
// "results[0].items[2].name", into a json-decoded value tree.
func extractPath(value any, path string) (any, bool) {
	segments := splitPath(path)
	cur := value
	for _, seg := range segments {
		name, indices := seg.name, seg.indices
		if name != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[name]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range indices {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

type pathSegment struct {
	name    string
	indices []int
}

func splitPath(path string) []pathSegment {
	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		name := part
		var indices []int
		for {
			open := strings.IndexByte(name, '[')
			if open < 0 {
				break
			}
			closeIdx := strings.IndexByte(name[open:], ']')
			if closeIdx < 0 {
				break
			}
			closeIdx += open
			idx, err := strconv.Atoi(name[open+1 : closeIdx])
			if err == nil {
				indices = append(indices, idx)
			}
			name = name[:open] + name[closeIdx+1:]
		}
		segs = append(segs, pathSegment{name: name, indices: indices})
	}
	return segs
}
