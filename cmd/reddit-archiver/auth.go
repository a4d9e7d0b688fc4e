package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/Mahrkeenerh/RedditPostDownloader/cmd/reddit-archiver/reddit"
	"github.com/Mahrkeenerh/RedditPostDownloader/pkg/config"
)

// newState is replaced in tests.
var newState = reddit.NewState

// runAuth walks the user through the one-time authorization code flow and
// prints the refresh token to store in the config.
func runAuth(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var o options
	fs := newFlagSet("reddit-archiver auth", stderr, &o)
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "auth takes no arguments")
		return exitUsage
	}
	log := newLogger(stderr, o.verbose)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		log.Error("load config", "err", err)
		return exitFail
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.Error("invalid configuration", "config", o.configPath, "err", err)
		return exitFail
	}

	in := bufio.NewReader(stdin)
	secret := cfg.Reddit.ClientSecret
	if secret == "" {
		if secret, err = readSecret(stdin, in, stdout); err != nil {
			log.Error("read client secret", "err", err)
			return exitFail
		}
	}

	oc := oauthConfig(cfg, secret)
	state := newState()
	fmt.Fprintf(stdout, "Open this URL in your browser and allow access:\n\n  %s\n\n", reddit.AuthCodeURL(oc, state))

	pasted, err := prompt(in, stdout, "Paste the URL you were redirected to: ")
	if err != nil {
		log.Error("read redirect", "err", err)
		return exitFail
	}
	code, err := reddit.ParseRedirect(pasted, state)
	if err != nil {
		log.Error("parse redirect", "err", err)
		return exitFail
	}

	tok, err := reddit.Exchange(ctx, oc, code, cfg.Reddit.UserAgent)
	if err != nil {
		log.Error("token exchange failed", "err", err)
		return exitFail
	}

	client := reddit.NewClient(clientConfig(cfg), oauth2.StaticTokenSource(tok), log)
	name, err := client.Identity(ctx)
	if err != nil {
		log.Warn("could not verify the new token", "err", err)
	} else {
		fmt.Fprintf(stdout, "Authorized as u/%s.\n", name)
	}
	fmt.Fprintf(stdout, "Add this to the reddit section of %s:\n\n  refresh-token: %s\n", o.configPath, tok.RefreshToken)
	return exitOK
}

// readSecret reads the client secret without echo when stdin is a terminal.
func readSecret(stdin io.Reader, in *bufio.Reader, out io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Client secret: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return prompt(in, out, "Client secret: ")
}

func oauthConfig(cfg config.Config, secret string) *oauth2.Config {
	oc := reddit.OAuthConfig(cfg.Reddit.ClientID, secret, cfg.Reddit.RedirectURI)
	if cfg.Reddit.AuthURL != "" {
		oc.Endpoint.AuthURL = cfg.Reddit.AuthURL
	}
	if cfg.Reddit.TokenURL != "" {
		oc.Endpoint.TokenURL = cfg.Reddit.TokenURL
	}
	return oc
}
