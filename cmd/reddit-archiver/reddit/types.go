// Package reddit is an OAuth client for the Reddit API that fetches a single
// submission and its comments.
package reddit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Mahrkeenerh/RedditPostDownloader/pkg/fn"
)

// Sentinel errors returned by the client.
var (
	ErrNotFound     = errors.New("post not found")
	ErrForbidden    = errors.New("access forbidden")
	ErrUnauthorized = errors.New("credentials rejected")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("reddit unavailable")
	ErrInvalidURL   = errors.New("not a reddit post URL or ID")
)

// Config controls client behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Sort      string
	Limit     int
	Timeout   time.Duration
	// RateLimit is the sustained number of requests per second.
	RateLimit float64
	Burst     int
	Retry     fn.RetryOpts
}

// DefaultConfig matches Reddit's OAuth quota of 60 requests per minute.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://oauth.reddit.com",
		UserAgent: UserAgent,
		Sort:      "confidence",
		Limit:     500,
		Timeout:   30 * time.Second,
		RateLimit: 1,
		Burst:     5,
		Retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 2 * time.Second,
			MaxWait:     30 * time.Second,
			Jitter:      true,
		},
	}
}

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Code, e.URL)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code == http.StatusForbidden:
		return ErrForbidden
	case e.Code == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Code >= 500:
		return ErrUnavailable
	}
	return nil
}

// Reddit JSON API response types

const (
	kindComment = "t1"
	kindPost    = "t3"
	kindMore    = "more"
)

type listingResponse struct {
	Kind string `json:"kind"`
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

type listingChild struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Subreddit     string  `json:"subreddit"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	SelfText      string  `json:"selftext"`
	Body          string  `json:"body"`
	URL           string  `json:"url"`
	IsSelf        bool    `json:"is_self"`
	Permalink     string  `json:"permalink"`
	Score         int     `json:"score"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	LinkFlairText string  `json:"link_flair_text"`
	Over18        bool    `json:"over_18"`
	Spoiler       bool    `json:"spoiler"`
	Locked        bool    `json:"locked"`
	Stickied      bool    `json:"stickied"`
	ParentID      string  `json:"parent_id"`
	Depth         int     `json:"depth"`
	Edited        edited  `json:"edited"`
	Distinguished string  `json:"distinguished"`
	IsSubmitter   bool    `json:"is_submitter"`
	Replies       replies `json:"replies"`

	// Set on "more" children only.
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

// replies is either an empty string or a nested listing.
type replies struct {
	*listingResponse
}

func (r *replies) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte(`""`)) || bytes.Equal(data, []byte("null")) {
		r.listingResponse = nil
		return nil
	}
	var l listingResponse
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("decode replies: %w", err)
	}
	r.listingResponse = &l
	return nil
}

// edited is false for unedited items and an epoch timestamp otherwise.
type edited struct {
	At *time.Time
}

func (e *edited) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		// false, true or null
		e.At = nil
		return nil
	}
	t := unixTime(secs)
	e.At = &t
	return nil
}

func unixTime(secs float64) time.Time {
	return time.Unix(int64(secs), 0).UTC()
}
