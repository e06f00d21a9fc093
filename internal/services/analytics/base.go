package analytics

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"Farenheit/internal/domain/models"
	"Farenheit/internal/service/cache"
	"Farenheit/pkg/config"
	xhttp "Farenheit/pkg/http"
)

// HTTPServiceBase is the shared client for the model-serving service: JSON
// requests with retry plus a cached per-route availability check.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	retries int
	ttl     time.Duration
	avail   *cache.TTLCache
	backoff time.Duration
}

// NewHTTPServiceBase builds the client from the analytics config section.
func NewHTTPServiceBase(cfg *config.Config) *HTTPServiceBase {
	timeout := cfg.Analytics.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: cfg.Analytics.ModelServiceURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: cfg.Analytics.Retries,
		ttl:     cfg.Analytics.AvailabilityTTL,
		avail:   cache.NewTTLCache(),
		backoff: 50 * time.Millisecond,
	}
}

// Configured reports whether a model service URL was set.
func (b *HTTPServiceBase) Configured() bool {
	return b != nil && b.baseURL != ""
}

// PostJSON posts the given payload to `path` under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if !b.Configured() {
		return fmt.Errorf("model service client: %w", models.ErrModelUnavailable)
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// GetJSON issues a GET for `path` and decodes JSON into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, dest interface{}) error {
	if !b.Configured() {
		return fmt.Errorf("model service client: %w", models.ErrModelUnavailable)
	}
	if err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    b.baseURL + path,
	}, dest); err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transient failures (transport errors, 429, 5xx)
// with a linear backoff. Other statuses fail immediately.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if !b.Configured() {
		return fmt.Errorf("model service client: %w", models.ErrModelUnavailable)
	}
	attempts := b.retries + 1
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		if i == attempts || !xhttp.IsTransient(err) {
			break
		}
		select {
		case <-time.After(time.Duration(i) * b.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type availabilityResp struct {
	Route      string `json:"route"`
	Seasonal   bool   `json:"seasonal"`
	Classifier bool   `json:"classifier"`
}

// availability fetches and caches which trained artifacts exist for a route.
// Lookup failures count as unavailable and are cached like any answer.
func (b *HTTPServiceBase) availability(ctx context.Context, route models.Route) availabilityResp {
	if !b.Configured() {
		return availabilityResp{}
	}
	key := route.Code()
	if v, ok := b.avail.Get(key); ok {
		return v.(availabilityResp)
	}
	var resp availabilityResp
	if err := b.GetJSON(ctx, "/models/"+url.PathEscape(key), &resp); err != nil {
		resp = availabilityResp{Route: key}
	}
	b.avail.Set(key, resp, b.ttl)
	return resp
}
