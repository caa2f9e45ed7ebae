package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-harvest/models"
)

// Transport performs a single network attempt for a request.
type Transport interface {
	Do(ctx context.Context, req models.FetchRequest, headers http.Header) (string, error)
}

// CollyTransport issues requests through a synchronous colly collector.
// Each call runs on a clone so concurrent callers never share callbacks.
type CollyTransport struct {
	collector *colly.Collector
}

// NewCollyTransport builds a direct transport with the given request timeout.
// Response bodies are read in full; colly would otherwise truncate them at
// 10 MiB without reporting an error.
func NewCollyTransport(timeout time.Duration) *CollyTransport {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
	)
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	return &CollyTransport{collector: collector}
}

// WithTransport swaps the underlying round tripper.
func (t *CollyTransport) WithTransport(rt http.RoundTripper) {
	t.collector.WithTransport(rt)
}

// Do performs one attempt. Non-2xx statuses are returned as classified errors.
func (t *CollyTransport) Do(ctx context.Context, req models.FetchRequest, headers http.Header) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := t.collector.Clone()
	var (
		body   []byte
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	var payload io.Reader
	if len(req.Body) > 0 {
		payload = bytes.NewReader(req.Body)
	}
	err := c.Request(req.HTTPMethod(), req.FullURL(), payload, nil, headers.Clone())
	if err != nil || status < 200 || status > 299 {
		if classified := classifyError(err, status); classified != nil {
			return "", classified
		}
		return "", errors.New("empty response")
	}
	return string(body), nil
}

// RendererTransport routes every request through a remote rendering proxy
// that takes the target URL and forwarded headers as query parameters.
type RendererTransport struct {
	endpoint string
	key      string
	next     Transport
}

// NewRendererTransport wraps next so requests go to endpoint instead of the target.
func NewRendererTransport(endpoint, key string, next Transport) *RendererTransport {
	return &RendererTransport{endpoint: endpoint, key: key, next: next}
}

func (t *RendererTransport) Do(ctx context.Context, req models.FetchRequest, headers http.Header) (string, error) {
	proxied, err := t.proxyRequest(req, headers)
	if err != nil {
		return "", err
	}
	return t.next.Do(ctx, proxied, nil)
}

func (t *RendererTransport) proxyRequest(req models.FetchRequest, headers http.Header) (models.FetchRequest, error) {
	params := url.Values{}
	params.Set("api_key", t.key)
	params.Set("url", req.FullURL())
	params.Set("render_js", "false")
	params.Set("premium_proxy", "false")
	if len(headers) > 0 {
		flat := make(map[string]string, len(headers))
		for name := range headers {
			flat[name] = headers.Get(name)
		}
		encoded, err := json.Marshal(flat)
		if err != nil {
			return models.FetchRequest{}, fmt.Errorf("encode forwarded headers: %w", err)
		}
		params.Set("headers", string(encoded))
	}
	return models.FetchRequest{
		URL:      t.endpoint,
		Category: req.Category,
		Method:   models.MethodGet,
		Params:   params,
	}, nil
}
