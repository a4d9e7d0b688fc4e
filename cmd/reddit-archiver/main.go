// Command reddit-archiver saves a single Reddit post and its full comment
// tree to a JSON or HTML file.
//
//	reddit-archiver [flags] [URL|ID]
//	reddit-archiver auth [flags]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Mahrkeenerh/RedditPostDownloader/cmd/reddit-archiver/reddit"
	"github.com/Mahrkeenerh/RedditPostDownloader/engine/archive"
	"github.com/Mahrkeenerh/RedditPostDownloader/engine/thread"
	"github.com/Mahrkeenerh/RedditPostDownloader/pkg/config"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

var errNoInput = errors.New("no input")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "auth" {
		return runAuth(ctx, args[1:], stdin, stdout, stderr)
	}
	return runArchive(ctx, args, stdin, stdout, stderr)
}

// options holds command-line flags. Empty values leave the config untouched.
type options struct {
	configPath string
	verbose    bool
	out        string
	format     string
	sort       string
	limit      int
}

func (o options) apply(cfg *config.Config) {
	if o.out != "" {
		cfg.Output.Dir = o.out
	}
	if o.format != "" {
		cfg.Output.Format = o.format
	}
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	if o.sort != "" {
		cfg.Defaults.Sort = o.sort
	}
	if o.limit != 0 {
		cfg.Defaults.Limit = o.limit
	}
}

func newFlagSet(name string, stderr io.Writer, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", envOr("ARCHIVER_CONFIG", "config.yml"), "path to the YAML config file")
	fs.BoolVar(&o.verbose, "v", false, "enable debug logging")
	return fs
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseFlags returns -1 when parsing succeeded and an exit code otherwise.
func parseFlags(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	return -1
}

func runArchive(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var o options
	fs := newFlagSet("reddit-archiver", stderr, &o)
	fs.StringVar(&o.out, "out", "", "output directory (default from config, then \"downloads\")")
	fs.StringVar(&o.format, "format", "", "output format: json or html")
	fs.StringVar(&o.sort, "sort", "", "comment sort: confidence, top, new, controversial, old, qa")
	fs.IntVar(&o.limit, "limit", 0, "maximum number of comments to request")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: reddit-archiver [flags] [URL|ID]\n       reddit-archiver auth [flags]\n\nflags:\n")
		fs.PrintDefaults()
	}
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "expected a single post URL or ID")
		fs.Usage()
		return exitUsage
	}
	log := newLogger(stderr, o.verbose)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		log.Error("load config", "err", err)
		return exitFail
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "config", o.configPath, "err", err)
		return exitFail
	}

	input := fs.Arg(0)
	if input == "" {
		if input, err = prompt(bufio.NewReader(stdin), stdout, "Enter URL: "); err != nil {
			log.Error("read URL", "err", err)
			return exitUsage
		}
	}
	id, err := reddit.ExtractID(input)
	if err != nil {
		log.Error("parse input", "err", err)
		return exitUsage
	}

	a, path, err := archivePost(ctx, cfg, id, log)
	if err != nil {
		log.Error("archive failed", "post", id, "err", err)
		return exitFail
	}
	fmt.Fprintln(stdout, path)

	publishSinks(ctx, cfg, a, path, log)
	return exitOK
}

// archivePost fetches the thread, rebuilds its comment tree and writes the
// archive file. Nothing is written unless every step succeeds.
func archivePost(ctx context.Context, cfg config.Config, id string, log *slog.Logger) (thread.Archive, string, error) {
	oc := oauthConfig(cfg, cfg.Reddit.ClientSecret)
	client := reddit.NewClient(clientConfig(cfg), reddit.TokenSource(ctx, oc, cfg.Reddit.RefreshToken, cfg.Reddit.UserAgent), log)

	start := time.Now()
	post, records, err := client.FetchThread(ctx, id)
	if err != nil {
		return thread.Archive{}, "", err
	}
	log.Debug("fetched thread", "post", id, "records", len(records), "elapsed", time.Since(start))

	post.Comments = thread.Build(post.ID, records, log)
	a := thread.NewArchive(post, reddit.UserAgent, time.Now())

	render, err := archive.Renderer(a, cfg.Output.Format, archive.Options{
		DateFormat: cfg.Defaults.DateFormat,
		Root:       cfg.Reddit.Root,
		Sort:       cfg.Defaults.Sort,
	})
	if err != nil {
		return thread.Archive{}, "", err
	}
	path, err := archive.Write(cfg.Output.Dir, archive.FileName(a, cfg.Output.Format), render)
	if err != nil {
		return thread.Archive{}, "", err
	}

	s := thread.Count(post.Comments)
	log.Info("archived post", "post", id, "path", path, "comments", s.Comments, "stubs", s.Stubs, "omitted", s.Omitted, "depth", s.MaxDepth)
	return a, path, nil
}

func clientConfig(cfg config.Config) reddit.Config {
	c := reddit.DefaultConfig()
	c.BaseURL = cfg.Reddit.APIBase
	if cfg.Reddit.UserAgent != "" {
		c.UserAgent = cfg.Reddit.UserAgent
	}
	c.Sort = cfg.Defaults.Sort
	c.Limit = cfg.Defaults.Limit
	c.Timeout = cfg.Reddit.Timeout
	c.RateLimit = cfg.Reddit.RequestsPerS
	return c
}

// prompt writes label and reads one trimmed line from in.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errNoInput
	}
	return line, nil
}
