package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Mahrkeenerh/RedditPostDownloader/engine/thread"
	"github.com/Mahrkeenerh/RedditPostDownloader/pkg/fn"
)

// Client fetches submissions and comments from the Reddit OAuth API.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a Client that authorizes every request with tokens
// from ts.
func NewClient(cfg Config, ts oauth2.TokenSource, log *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Sort == "" {
		cfg.Sort = def.Sort
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: &oauth2.Transport{
				Source: ts,
				Base:   otelhttp.NewTransport(http.DefaultTransport),
			},
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		log:     log,
	}
}

// FetchPost returns the submission's metadata without its comments.
func (c *Client) FetchPost(ctx context.Context, id string) (thread.Post, error) {
	listings, err := c.fetchListings(ctx, id, url.Values{"limit": {"1"}, "depth": {"1"}})
	if err != nil {
		return thread.Post{}, err
	}
	return toPost(listings[0], id)
}

// FetchComments returns the submission's comments flattened in pre-order,
// with "more" placeholders as stub records.
func (c *Client) FetchComments(ctx context.Context, postID string) ([]thread.Node, error) {
	_, records, err := c.FetchThread(ctx, postID)
	return records, err
}

// FetchThread returns the submission and its flattened comment records in a
// single request.
func (c *Client) FetchThread(ctx context.Context, id string) (thread.Post, []thread.Node, error) {
	q := url.Values{
		"limit": {fmt.Sprint(c.cfg.Limit)},
		"sort":  {c.cfg.Sort},
	}
	listings, err := c.fetchListings(ctx, id, q)
	if err != nil {
		return thread.Post{}, nil, err
	}
	post, err := toPost(listings[0], id)
	if err != nil {
		return thread.Post{}, nil, err
	}
	var records []thread.Node
	if len(listings) > 1 {
		records = c.flatten(&listings[1], records)
	}
	return post, records, nil
}

// Identity returns the name of the authenticated account.
func (c *Client) Identity(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	result := c.withRetry(ctx, c.cfg.BaseURL+"/api/v1/me", &me)
	if _, err := result.Unwrap(); err != nil {
		return "", fmt.Errorf("identity: %w", err)
	}
	return me.Name, nil
}

func (c *Client) fetchListings(ctx context.Context, id string, q url.Values) ([]listingResponse, error) {
	q.Set("raw_json", "1")
	u := fmt.Sprintf("%s/comments/%s?%s", c.cfg.BaseURL, url.PathEscape(id), q.Encode())

	// Reddit returns [postListing, commentListing]
	var listings []listingResponse
	result := c.withRetry(ctx, u, &listings)
	if _, err := result.Unwrap(); err != nil {
		return nil, fmt.Errorf("post %s: %w", id, err)
	}
	if len(listings) == 0 {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return listings, nil
}

func (c *Client) withRetry(ctx context.Context, u string, v any) fn.Result[struct{}] {
	opts := c.cfg.Retry
	opts.Retryable = retryable
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("request failed, retrying", "url", u, "attempt", attempt, "wait", wait, "err", err)
	}
	return fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[struct{}] {
		if err := c.limiter.Wait(ctx); err != nil {
			return fn.Err[struct{}](err)
		}
		return fn.FromPair(struct{}{}, c.getJSON(ctx, u, v))
	})
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	body, err := c.httpGet(ctx, u)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

func (c *Client) httpGet(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.log.Debug("GET", "url", u)
	resp, err := c.client.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, rerr)
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: u}
	}
	return resp.Body, nil
}

// retryable reports whether a failed request is worth repeating: throttling,
// server errors and transport failures are; client errors are not.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrUnauthorized):
		return false
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Code == http.StatusTooManyRequests || serr.Code >= 500
	}
	return true
}

func toPost(l listingResponse, id string) (thread.Post, error) {
	for _, child := range l.Data.Children {
		if child.Kind != kindPost {
			continue
		}
		d := child.Data
		post := thread.Post{
			ID:          d.ID,
			Subreddit:   d.Subreddit,
			Title:       d.Title,
			Author:      author(d.Author),
			Body:        d.SelfText,
			Permalink:   d.Permalink,
			Score:       d.Score,
			UpvoteRatio: d.UpvoteRatio,
			NumComments: d.NumComments,
			Created:     unixTime(d.CreatedUTC),
			Flair:       d.LinkFlairText,
			NSFW:        d.Over18,
			Spoiler:     d.Spoiler,
			Locked:      d.Locked,
			Stickied:    d.Stickied,
		}
		if !d.IsSelf {
			post.URL = d.URL
		}
		return post, nil
	}
	return thread.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
}

// flatten appends the comments of l to out in pre-order.
func (c *Client) flatten(l *listingResponse, out []thread.Node) []thread.Node {
	for _, child := range l.Data.Children {
		d := child.Data
		switch child.Kind {
		case kindComment:
			out = append(out, thread.CommentNode(&thread.Comment{
				ID:            d.ID,
				ParentID:      d.ParentID,
				Author:        author(d.Author),
				Body:          d.Body,
				Score:         d.Score,
				Created:       unixTime(d.CreatedUTC),
				Edited:        d.Edited.At,
				Distinguished: d.Distinguished,
				IsSubmitter:   d.IsSubmitter,
				Stickied:      d.Stickied,
				Permalink:     d.Permalink,
			}))
			if d.Replies.listingResponse != nil {
				out = c.flatten(d.Replies.listingResponse, out)
			}
		case kindMore:
			out = append(out, thread.MoreNode(&thread.MoreStub{
				ParentID: d.ParentID,
				Count:    d.Count,
				IDs:      d.Children,
			}))
		default:
			c.log.Debug("skipping listing child", "kind", child.Kind, "id", d.ID)
		}
	}
	return out
}

func author(name string) string {
	if name == "" {
		return "[deleted]"
	}
	return name
}
