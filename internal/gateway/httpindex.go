package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/perchwatch/server/internal/domain/sources"
)

// imageExtensions is the allow-list applied to anchor targets. Anything else
// in the index (parent-directory links, column-sort links, videos) is
// ignored.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

const defaultUserAgent = "Perchwatch-Sync/0.1 (+https://perchwatch.org)"

// HTTPIndexGateway pulls files from a plain HTTP directory index: one GET
// for the listing, one GET per file. Requests to the same provider host are
// paced by a per-host rate limiter so a large backlog does not hammer the
// camera host.
type HTTPIndexGateway struct {
	client         *http.Client
	listingTimeout time.Duration
	fetchTimeout   time.Duration
	userAgent      string
	perHostRate    rate.Limit
	logger         zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// HTTPIndexOption configures an HTTPIndexGateway.
type HTTPIndexOption func(*HTTPIndexGateway)

// WithTimeouts overrides the listing and fetch timeouts.
func WithTimeouts(listing, fetch time.Duration) HTTPIndexOption {
	return func(g *HTTPIndexGateway) {
		if listing > 0 {
			g.listingTimeout = listing
		}
		if fetch > 0 {
			g.fetchTimeout = fetch
		}
	}
}

// WithPerHostRate overrides the per-host request rate (requests/second).
func WithPerHostRate(r rate.Limit) HTTPIndexOption {
	return func(g *HTTPIndexGateway) {
		if r > 0 {
			g.perHostRate = r
		}
	}
}

// NewHTTPIndexGateway constructs an HTTPIndexGateway with a 10s listing
// timeout, a 45s fetch timeout (camera snapshots can be several MB), and a
// 2 req/s per-host pace.
func NewHTTPIndexGateway(logger zerolog.Logger, opts ...HTTPIndexOption) *HTTPIndexGateway {
	g := &HTTPIndexGateway{
		client:         &http.Client{},
		listingTimeout: 10 * time.Second,
		fetchTimeout:   45 * time.Second,
		userAgent:      defaultUserAgent,
		perHostRate:    rate.Limit(2),
		logger:         logger,
		limiters:       make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ Gateway = (*HTTPIndexGateway)(nil)

// List fetches the source's directory index and returns the image entries in
// document order, each with its href resolved against the base URL.
func (g *HTTPIndexGateway) List(ctx context.Context, src sources.Source) ([]Entry, error) {
	base, err := url.Parse(src.BaseURL)
	if err != nil {
		return nil, &ListingError{SourceID: src.ID, Reason: "invalid base URL", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.listingTimeout)
	defer cancel()

	resp, err := g.do(ctx, src, src.BaseURL)
	if err != nil {
		return nil, &ListingError{SourceID: src.ID, Reason: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{SourceID: src.ID, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ListingError{SourceID: src.ID, Status: resp.StatusCode, Reason: "unexpected status"}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ListingError{SourceID: src.ID, Reason: "malformed listing body", Err: err}
	}

	var entries []Entry
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		entry, ok := entryFromHref(base, href)
		if !ok {
			return
		}
		entries = append(entries, entry)
	})

	g.logger.Debug().
		Str("source_id", src.ID).
		Int("entries", len(entries)).
		Msg("gateway: listed directory index")

	return entries, nil
}

// Fetch downloads one entry's payload.
func (g *HTTPIndexGateway) Fetch(ctx context.Context, src sources.Source, entry Entry) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	resp, err := g.do(ctx, src, entry.FetchURL)
	if err != nil {
		return nil, &FetchError{SourceID: src.ID, Filename: entry.Filename, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{SourceID: src.ID, Filename: entry.Filename, Status: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{SourceID: src.ID, Filename: entry.Filename, Err: err}
	}
	return payload, nil
}

// do issues one GET with the source's auth header, after waiting on the
// per-host limiter.
func (g *HTTPIndexGateway) do(ctx context.Context, src sources.Source, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	if err := applyAuth(req, src); err != nil {
		return nil, err
	}

	if err := g.limiterFor(req.URL.Host).Wait(ctx); err != nil {
		return nil, err
	}

	return g.client.Do(req)
}

func (g *HTTPIndexGateway) limiterFor(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.limiters[host]
	if !ok {
		lim = rate.NewLimiter(g.perHostRate, 1)
		g.limiters[host] = lim
	}
	return lim
}

// applyAuth sets the Authorization header per the source's auth mode. The
// error message never includes credential material.
func applyAuth(req *http.Request, src sources.Source) error {
	switch src.AuthMode {
	case sources.AuthNone, "":
		return nil
	case sources.AuthBasic:
		req.Header.Set("Authorization", src.Credentials.BasicAuthorization())
		return nil
	case sources.AuthBearerHeader:
		if src.Credentials.HeaderValue == "" {
			return errors.New("bearer-header auth configured without a header value")
		}
		req.Header.Set("Authorization", src.Credentials.HeaderValue)
		return nil
	default:
		return fmt.Errorf("unknown auth mode %q", src.AuthMode)
	}
}

// entryFromHref turns an anchor target into an Entry if it names an image
// file. Query-only links (Apache column sorting) and directory links are
// rejected.
func entryFromHref(base *url.URL, href string) (Entry, bool) {
	if href == "" {
		return Entry{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Entry{}, false
	}

	resolved := base.ResolveReference(ref)
	name := path.Base(resolved.Path)
	if name == "." || name == "/" || name == "" {
		return Entry{}, false
	}

	ext := strings.ToLower(path.Ext(name))
	if !imageExtensions[ext] {
		return Entry{}, false
	}

	return Entry{Filename: name, FetchURL: resolved.String()}, true
}
