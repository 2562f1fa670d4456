// Package omdb is a small client for the OMDb metadata API, used to enrich catalog
// entries with IMDb rating, votes, poster and box office figures.
package omdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/marquee-app/marquee/caching"
	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL = "https://www.omdbapi.com/"
	defaultTimeout = 10 * time.Second
	cacheTTL       = 10 * time.Minute
	notAvailable   = "N/A"
)

var (
	// ErrNotFound means OMDb answered but has no title matching the query.
	ErrNotFound = errors.New("omdb: title not found")
	// ErrNoAPIKey is returned by Lookup when the client was built without a key.
	ErrNoAPIKey = errors.New("omdb: api key not configured")
	// ErrEmptyTitle is returned without asking OMDb when there is no title to look up.
	ErrEmptyTitle = errors.New("omdb: empty title")
)

// Kind narrows a lookup to movies or series.
type Kind string

const (
	KindAny    Kind = ""
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

// KindFor maps a catalog content type ("Movie", "TV Show") to an OMDb type filter.
func KindFor(contentType string) Kind {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "movie":
		return KindMovie
	case "tv show", "series":
		return KindSeries
	}
	return KindAny
}

// Result is the subset of an OMDb title we persist. Pointer fields are nil when OMDb says N/A.
type Result struct {
	Title      string
	Year       string
	ImdbID     string
	ImdbRating *float64
	ImdbVotes  *int
	Poster     *string
	BoxOffice  *string
}

type titleResponse struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	ImdbID     string `json:"imdbID"`
	ImdbRating string `json:"imdbRating"`
	ImdbVotes  string `json:"imdbVotes"`
	Poster     string `json:"Poster"`
	BoxOffice  string `json:"BoxOffice"`
	Response   string `json:"Response"`
	Error      string `json:"Error"`
}

type cachedAnswer struct {
	result   *Result
	notFound bool
}

type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
	cache   *caching.Cache
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
		http: &fasthttp.Client{
			Name:                "marquee",
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: time.Minute,
		},
		cache: caching.NewCache(cacheTTL, 2*cacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches a title by name and, when year > 0, release year.
func (c *Client) Lookup(ctx context.Context, title string, year int, kind Kind) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	key := cacheKey(title, year, kind)
	if v, ok := c.cache.Get(key); ok {
		answer := v.(cachedAnswer)
		if answer.notFound {
			return nil, ErrNotFound
		}
		return answer.result, nil
	}

	body, status, err := c.get(ctx, title, year, kind)
	if err != nil {
		return nil, err
	}

	var resp titleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status != fasthttp.StatusOK {
			return nil, fmt.Errorf("omdb: unexpected status %d", status)
		}
		return nil, fmt.Errorf("omdb: decode response: %w", err)
	}

	if !strings.EqualFold(resp.Response, "True") {
		if strings.Contains(strings.ToLower(resp.Error), "not found") {
			c.cache.Set(key, cachedAnswer{notFound: true}, 0)
			return nil, ErrNotFound
		}
		if resp.Error == "" {
			resp.Error = fmt.Sprintf("status %d", status)
		}
		return nil, fmt.Errorf("omdb: %s", resp.Error)
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("omdb: unexpected status %d", status)
	}

	result := resp.toResult()
	c.cache.Set(key, cachedAnswer{result: result}, 0)
	return result, nil
}

func (c *Client) get(ctx context.Context, title string, year int, kind Kind) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	args := req.URI().QueryArgs()
	args.Set("apikey", c.apiKey)
	args.Set("t", title)
	if year > 0 {
		args.Set("y", strconv.Itoa(year))
	}
	if kind != KindAny {
		args.Set("type", string(kind))
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return nil, 0, fmt.Errorf("omdb: request failed: %w", err)
	}

	// the body buffer goes back to the pool with resp
	body := append([]byte(nil), resp.Body()...)
	return body, resp.StatusCode(), nil
}

func (r *titleResponse) toResult() *Result {
	result := &Result{
		Title:     r.Title,
		Year:      r.Year,
		ImdbID:    r.ImdbID,
		Poster:    optionalString(r.Poster),
		BoxOffice: optionalString(r.BoxOffice),
	}
	if v, ok := available(r.ImdbRating); ok {
		if rating, err := strconv.ParseFloat(v, 64); err == nil {
			result.ImdbRating = &rating
		}
	}
	if v, ok := available(r.ImdbVotes); ok {
		if votes, err := strconv.Atoi(strings.ReplaceAll(v, ",", "")); err == nil {
			result.ImdbVotes = &votes
		}
	}
	return result
}

func available(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == notAvailable {
		return "", false
	}
	return v, true
}

func optionalString(v string) *string {
	if v, ok := available(v); ok {
		return &v
	}
	return nil
}

func cacheKey(title string, year int, kind Kind) string {
	return fmt.Sprintf("omdb:%s:%d:%s", strings.ToLower(title), year, kind)
}
