// Package amadeus is a price source backed by the Amadeus Flight Offers
// Search API.
package amadeus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"Farenheit/internal/domain/models"
	drepo "Farenheit/internal/domain/repository"
	"Farenheit/internal/service/ratelimit"
	xhttp "Farenheit/pkg/http"
	applogger "Farenheit/pkg/logger"

	"github.com/shopspring/decimal"
)

const (
	SourceName = "amadeus"

	tokenPath        = "/v1/security/oauth2/token"
	offersPath       = "/v2/shopping/flight-offers"
	defaultExpiresIn = 1799
	tokenSkew        = 60 * time.Second
	limiterKey       = "amadeus"
)

// Client owns its OAuth token and refresh state; share one instance across
// stages.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	currency     string
	maxResults   int
	capacity     float64
	refillPerSec float64

	http    *xhttp.Client
	limiter *ratelimit.Limiter
	l       *applogger.Logger
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

func WithRateLimit(capacity, refillPerSec float64) Option {
	return func(c *Client) {
		c.capacity = capacity
		c.refillPerSec = refillPerSec
	}
}

func WithCurrency(code string) Option {
	return func(c *Client) { c.currency = code }
}

func WithMaxResults(n int) Option {
	return func(c *Client) { c.maxResults = n }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.l = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL, clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		currency:     "KRW",
		maxResults:   50,
		capacity:     10,
		refillPerSec: 5,
		http:         xhttp.NewClient(xhttp.WithTimeout(30 * time.Second)),
		limiter:      ratelimit.New(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() string { return SourceName }

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached token, refreshing it a minute before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	var tr tokenResp
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + tokenPath,
		Body: url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {c.clientID},
			"client_secret": {c.clientSecret},
		},
	}, &tr)
	if err != nil {
		return "", fmt.Errorf("amadeus token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("amadeus token: empty access_token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = defaultExpiresIn
	}
	c.token = tr.AccessToken
	c.expiresAt = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenSkew)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Fetch returns the offers for one route, date and cabin. Any non-200
// response is an error; callers count it as zero offers.
func (c *Client) Fetch(ctx context.Context, q models.OfferQuery) ([]models.RawOffer, error) {
	if err := c.limiter.Wait(ctx, limiterKey, c.capacity, c.refillPerSec); err != nil {
		return nil, fmt.Errorf("amadeus rate limit: %w", err)
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var payload offersResp
	err = c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + offersPath,
		Headers:     map[string]string{"Authorization": "Bearer " + token},
		QueryParams: c.queryParams(q),
	}, &payload)
	if err != nil {
		if xhttp.StatusCode(err) == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return nil, fmt.Errorf("amadeus offers: %w", err)
	}

	out := make([]models.RawOffer, 0, len(payload.Data))
	for _, o := range payload.Data {
		ro, err := parseOffer(o)
		if err != nil {
			if c.l != nil {
				c.l.Warn("skipping unparseable offer",
					applogger.String("route", q.Origin+"-"+q.Destination),
					applogger.String("offer_id", o.ID),
					applogger.Error(err),
				)
			}
			continue
		}
		if ro != nil {
			out = append(out, *ro)
		}
	}
	return out, nil
}

func (c *Client) queryParams(q models.OfferQuery) map[string][]string {
	adults := q.Adults
	if adults <= 0 {
		adults = 1
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = c.maxResults
	}
	currency := q.Currency
	if currency == "" {
		currency = c.currency
	}
	cabin := q.CabinClass
	if cabin == "" {
		cabin = models.DefaultCabinClass()
	}
	params := map[string][]string{
		"originLocationCode":      {q.Origin},
		"destinationLocationCode": {q.Destination},
		"departureDate":           {q.DepartureDate.Format("2006-01-02")},
		"adults":                  {strconv.Itoa(adults)},
		"travelClass":             {string(cabin)},
		"max":                     {strconv.Itoa(limit)},
		"currencyCode":            {currency},
	}
	if q.ReturnDate != nil {
		params["returnDate"] = []string{q.ReturnDate.Format("2006-01-02")}
	}
	return params
}

type offersResp struct {
	Data []offer `json:"data"`
}

type offer struct {
	ID    string `json:"id"`
	Price struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"price"`
	Itineraries []struct {
		Duration string `json:"duration"`
		Segments []struct {
			CarrierCode string `json:"carrierCode"`
		} `json:"segments"`
	} `json:"itineraries"`
}

// parseOffer returns nil without error for offers that have no segments.
func parseOffer(o offer) (*models.RawOffer, error) {
	price, err := decimal.NewFromString(o.Price.Total)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", o.Price.Total, err)
	}
	if len(o.Itineraries) == 0 || len(o.Itineraries[0].Segments) == 0 {
		return nil, nil
	}
	first := o.Itineraries[0]
	currency := o.Price.Currency
	if currency == "" {
		currency = "USD"
	}
	return &models.RawOffer{
		Airline:         first.Segments[0].CarrierCode,
		Price:           price,
		Currency:        currency,
		Stops:           len(first.Segments) - 1,
		DurationMinutes: ParseDuration(first.Duration),
		OfferID:         o.ID,
		Source:          SourceName,
	}, nil
}

// ParseDuration converts an ISO 8601 duration such as "PT13H45M" to minutes.
// It returns nil for anything else.
func ParseDuration(s string) *int {
	if !strings.HasPrefix(s, "PT") {
		return nil
	}
	rest := s[2:]
	if rest == "" {
		return nil
	}
	var hours, minutes int
	if i := strings.Index(rest, "H"); i >= 0 {
		h, err := strconv.Atoi(rest[:i])
		if err != nil {
			return nil
		}
		hours = h
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, "M"); i >= 0 {
		if rest[:i] != "" {
			m, err := strconv.Atoi(rest[:i])
			if err != nil {
				return nil
			}
			minutes = m
		}
		rest = rest[i+1:]
	}
	if rest != "" {
		return nil
	}
	total := hours*60 + minutes
	return &total
}

var _ drepo.PriceSource = (*Client)(nil)
