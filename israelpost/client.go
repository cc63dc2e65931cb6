// Package israelpost resolves Israeli postal codes (mikud) for street
// addresses using the Israel Post SearchZip agent.
package israelpost

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/mikud/cache"
)

const (
	DefaultEndpoint = "http://www.israelpost.co.il/zip_data1.nsf/SearchZip?OpenAgent&"
	DefaultTimeout  = 15 * time.Second

	maxBodyBytes = 1 << 20
)

// DefaultUserAgents is the pool a request's User-Agent is drawn from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
}

// Cache stores resolved zipcodes by address key.
type Cache interface {
	Get(ctx context.Context, key string) (cache.Entry, bool)
	Put(ctx context.Context, key, zipcode string) error
}

type Client struct {
	http       *http.Client
	endpoint   string
	timeout    time.Duration
	userAgents []string
	log        zerolog.Logger

	cache Cache // nil means no cache
	group singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
func WithEndpoint(raw string) Option {
	return func(c *Client) { c.endpoint = raw }
}
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCache replaces the default in-memory cache. A nil cache disables
// caching altogether.
func WithCache(ca Cache) Option {
	return func(c *Client) { c.cache = ca }
}
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}
func WithUserAgents(uas ...string) Option {
	return func(c *Client) {
		if len(uas) > 0 {
			c.userAgents = uas
		}
	}
}

// New creates a client with a private in-memory cache unless WithCache
// says otherwise.
func New(opts ...Option) *Client {
	c := &Client{
		http:       http.DefaultClient,
		endpoint:   DefaultEndpoint,
		timeout:    DefaultTimeout,
		userAgents: DefaultUserAgents,
		log:        zerolog.Nop(),
		cache:      cache.NewMemoryCache(cache.DefaultTTL, cache.DefaultMaxEntries),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup resolves the zipcode for addr. On failure the error is an *Error
// carrying its Kind. Nothing is retried.
func (c *Client) Lookup(ctx context.Context, addr *Address) (string, error) {
	if addr == nil {
		return "", invalidInput("address is nil")
	}
	if addr.IsBlank() {
		return "", invalidInput("address has no city, street, house number or entrance")
	}

	key := addr.CacheKey()
	if c.cache != nil {
		if e, ok := c.cache.Get(ctx, key); ok {
			c.log.Debug().Str("key", key).Str("zipcode", e.Zipcode).Msg("cache hit")
			return e.Zipcode, nil
		}
	}

	// Concurrent lookups of the same address share one request. The shared
	// request is detached from any single caller's cancellation and bounded
	// by c.timeout; each caller stops waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if c.cache != nil {
			if e, ok := c.cache.Get(shared, key); ok {
				return e.Zipcode, nil
			}
		}
		zip, err := c.fetch(shared, addr)
		if err != nil {
			return "", err
		}
		if c.cache != nil {
			if err := c.cache.Put(shared, key, zip); err != nil {
				c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
		return zip, nil
	})

	select {
	case <-ctx.Done():
		return "", &Error{Kind: KindTimeout, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Result is the outcome of LookupAsync. Exactly one field is set.
type Result struct {
	Zipcode string
	Err     error
}

// LookupAsync runs Lookup in its own goroutine. The channel receives
// exactly one Result and is then closed.
func (c *Client) LookupAsync(ctx context.Context, addr *Address) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		zip, err := c.Lookup(ctx, addr)
		ch <- Result{Zipcode: zip, Err: err}
	}()
	return ch
}

func (c *Client) fetch(ctx context.Context, addr *Address) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	uri := joinQuery(c.endpoint, EncodeParams(addr.Params()...))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", invalidInput("build request: %w", err)
	}
	ua := c.userAgents[rand.IntN(len(c.userAgents))]
	setHeaders(req, ua)

	c.log.Debug().Str("url", uri).Str("user_agent", ua).Msg("requesting zipcode")
	start := time.Now()
	resp := c.do(req)

	zip, decidedBy, err := classify(&resp)
	ev := c.log.Debug().
		Str("url", uri).
		Int("status", resp.StatusCode).
		Str("rule", decidedBy).
		Dur("duration", time.Since(start))
	if err != nil {
		ev.Str("kind", KindOf(err).String()).Msg("zipcode lookup failed")
		return "", err
	}
	ev.Str("zipcode", zip).Msg("zipcode resolved")
	return zip, nil
}

func (c *Client) do(req *http.Request) Response {
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{Err: err}
	}
	return Response{StatusCode: resp.StatusCode, Body: string(body)}
}

func setHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "he-IL,he;q=0.8,en-US;q=0.5,en;q=0.3")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("DNT", "1")
}
