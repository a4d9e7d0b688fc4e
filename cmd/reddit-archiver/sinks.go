package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mahrkeenerh/RedditPostDownloader/engine/graph"
	"github.com/Mahrkeenerh/RedditPostDownloader/engine/thread"
	"github.com/Mahrkeenerh/RedditPostDownloader/pkg/config"
	"github.com/Mahrkeenerh/RedditPostDownloader/pkg/natsutil"
)

const sinkTimeout = 15 * time.Second

// publishSinks hands a written archive to the optional Neo4j and NATS sinks.
// Failures are logged and never affect the exit code.
func publishSinks(ctx context.Context, cfg config.Config, a thread.Archive, path string, log *slog.Logger) {
	if cfg.Neo4j.URL != "" {
		if err := saveGraph(ctx, cfg.Neo4j, a, log); err != nil {
			log.Warn("graph sink failed", "url", cfg.Neo4j.URL, "err", err)
		}
	}
	if cfg.NATS.URL != "" {
		if err := notify(ctx, cfg, a, path, log); err != nil {
			log.Warn("nats sink failed", "url", cfg.NATS.URL, "err", err)
		}
	}
}

func saveGraph(ctx context.Context, cfg config.Neo4j, a thread.Archive, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	driver, err := graph.Connect(ctx, cfg.URL, cfg.User, cfg.Pass)
	if err != nil {
		return err
	}
	defer driver.Close(ctx)

	store := graph.New(driver, "", log)
	if err := store.SaveThread(ctx, a); err != nil {
		return err
	}
	if n, err := store.Replies(ctx, a.Post.ID); err == nil {
		log.Info("saved thread to graph", "post", a.Post.ID, "comments", n)
	}
	return nil
}

func notify(ctx context.Context, cfg config.Config, a thread.Archive, path string, log *slog.Logger) error {
	nc, err := natsutil.Connect(cfg.NATS.URL, "reddit-archiver", log)
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	s := thread.Count(a.Post.Comments)
	return natsutil.Publish(ctx, nc, cfg.NATS.Subject, natsutil.ArchivedEvent{
		PostID:     a.Post.ID,
		Subreddit:  a.Post.Subreddit,
		Path:       path,
		Format:     cfg.Output.Format,
		Comments:   s.Comments,
		Stubs:      s.Stubs,
		Omitted:    s.Omitted,
		ArchivedAt: a.ArchivedAt,
	})
}
