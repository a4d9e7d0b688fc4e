package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// UserAgent identifies the archiver to Reddit, which rejects generic agents.
const UserAgent = "RedditPostDownloader/2.1.0"

// Scopes requested during the code exchange.
var Scopes = []string{"identity", "read"}

// Endpoint is Reddit's OAuth2 endpoint. Client credentials go in the basic
// auth header.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.reddit.com/api/v1/authorize",
	TokenURL:  "https://www.reddit.com/api/v1/access_token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

var (
	ErrNoCode         = errors.New("no authorization code found")
	ErrStateMismatch  = errors.New("state does not match; restart the auth flow")
	ErrAuthDenied     = errors.New("authorization denied")
	ErrNoRefreshToken = errors.New("reddit did not return a refresh token")
)

// OAuthConfig returns the OAuth2 config for an installed or script app.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     Endpoint,
	}
}

// NewState returns a random state value for the authorization request.
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the page the user visits to grant access. Permanent
// duration makes Reddit issue a refresh token.
func AuthCodeURL(oc *oauth2.Config, state string) string {
	return oc.AuthCodeURL(state, oauth2.SetAuthURLParam("duration", "permanent"))
}

// ParseRedirect extracts the authorization code from what the user pasted
// after approving access: either the full redirect URL or the bare code.
func ParseRedirect(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrNoCode
	}
	if !strings.ContainsAny(input, "?=&") {
		return input, nil
	}

	raw := input
	if i := strings.IndexByte(input, '?'); i >= 0 {
		raw = input[i+1:]
	}
	raw, _, _ = strings.Cut(raw, "#")
	q, err := url.ParseQuery(raw)
	if err != nil {
		return "", fmt.Errorf("parse redirect: %w", err)
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%w: %s", ErrAuthDenied, e)
	}
	if q.Get("state") != state {
		return "", ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}

// Exchange trades an authorization code for a token carrying a refresh
// token. An empty userAgent sends UserAgent.
func Exchange(ctx context.Context, oc *oauth2.Config, code, userAgent string) (*oauth2.Token, error) {
	tok, err := oc.Exchange(tokenContext(ctx, userAgent), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return tok, nil
}

// TokenSource returns an auto-refreshing token source for a stored refresh
// token. Refresh requests carry userAgent, or UserAgent when empty.
func TokenSource(ctx context.Context, oc *oauth2.Config, refreshToken, userAgent string) oauth2.TokenSource {
	return oc.TokenSource(tokenContext(ctx, userAgent), &oauth2.Token{RefreshToken: refreshToken})
}

// tokenContext makes the oauth2 package send token requests with the given
// user agent.
func tokenContext(ctx context.Context, agent string) context.Context {
	if agent == "" {
		agent = UserAgent
	}
	hc := &http.Client{
		Transport: &userAgentTransport{
			agent: agent,
			base:  otelhttp.NewTransport(http.DefaultTransport),
		},
		Timeout: 30 * time.Second,
	}
	return context.WithValue(ctx, oauth2.HTTPClient, hc)
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}
