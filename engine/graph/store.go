package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Mahrkeenerh/RedditPostDownloader/engine/thread"
)

var ErrNoPostID = errors.New("archive post has no id")

// Store writes archived threads as (:Post), (:Comment) and (:MoreStub)
// nodes joined by [:REPLY_TO] edges pointing at the parent.
type Store struct {
	opener SessionOpener
	log    *slog.Logger
}

// New creates a Store backed by driver. A nil log uses slog.Default.
func New(driver neo4j.DriverWithContext, database string, log *slog.Logger) *Store {
	return NewWithOpener(&driverOpener{driver: driver, database: database}, log)
}

// NewWithOpener creates a Store that opens sessions through o.
func NewWithOpener(o SessionOpener, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{opener: o, log: log}
}

const (
	mergePost = `MERGE (p:Post {id: $id})
SET p += $props, p.archivedAt = $archivedAt, p.generator = $generator`

	mergeComments = `UNWIND $rows AS row
MERGE (c:Comment {id: row.id})
SET c += row.props`

	linkCommentReplies = `UNWIND $rows AS row
MATCH (c:Comment {id: row.id}), (parent:Comment {id: row.parent})
MERGE (c)-[:REPLY_TO]->(parent)`

	linkTopLevel = `UNWIND $rows AS row
MATCH (c {id: row.id}), (p:Post {id: $post})
WHERE c:Comment OR c:MoreStub
MERGE (c)-[:REPLY_TO]->(p)`

	mergeStubs = `UNWIND $rows AS row
MERGE (m:MoreStub {id: row.id})
SET m.count = row.count, m.ids = row.ids`

	linkStubReplies = `UNWIND $rows AS row
MATCH (m:MoreStub {id: row.id}), (parent:Comment {id: row.parent})
MERGE (m)-[:REPLY_TO]->(parent)`

	countReplies = `MATCH (p:Post {id: $id})<-[:REPLY_TO*]-(c:Comment)
RETURN count(DISTINCT c) AS n`
)

// rows holds the statement parameters for one thread.
type rows struct {
	log      *slog.Logger
	comments []map[string]any
	stubs    []map[string]any
	nested   []map[string]any // comments under a comment
	topLevel []map[string]any // comments and stubs under the post
	stubRefs []map[string]any // stubs under a comment
}

// SaveThread writes a in a single transaction. Saving the same archive
// again updates properties without duplicating nodes or edges.
func (s *Store) SaveThread(ctx context.Context, a thread.Archive) error {
	if a.Post.ID == "" {
		return ErrNoPostID
	}
	r := rows{log: s.log}
	r.collect(a.Post.ID, "", a.Post.Comments)

	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		if _, err := tx.Run(ctx, mergePost, map[string]any{
			"id":         a.Post.ID,
			"props":      postProps(a.Post),
			"archivedAt": a.ArchivedAt,
			"generator":  a.Generator,
		}); err != nil {
			return nil, fmt.Errorf("merge post: %w", err)
		}
		steps := []struct {
			name   string
			cypher string
			rows   []map[string]any
		}{
			{"merge comments", mergeComments, r.comments},
			{"merge stubs", mergeStubs, r.stubs},
			{"link replies", linkCommentReplies, r.nested},
			{"link stubs", linkStubReplies, r.stubRefs},
			{"link top level", linkTopLevel, r.topLevel},
		}
		for _, st := range steps {
			if len(st.rows) == 0 {
				continue
			}
			if _, err := tx.Run(ctx, st.cypher, map[string]any{"rows": st.rows, "post": a.Post.ID}); err != nil {
				return nil, fmt.Errorf("%s: %w", st.name, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("save thread %s: %w", a.Post.ID, err)
	}
	return nil
}

// Replies returns the number of comments stored under a post.
func (s *Store) Replies(ctx context.Context, postID string) (int64, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, countReplies, map[string]any{"id": postID})
	if err != nil {
		return 0, err
	}
	if !res.Next(ctx) {
		return 0, res.Err()
	}
	n, _, err := neo4j.GetRecordValue[int64](res.Record(), "n")
	return n, err
}

// collect flattens nodes under parent ("" for the post) into statement rows.
func (r *rows) collect(postID, parent string, nodes []thread.Node) {
	stubs := 0
	for _, n := range nodes {
		switch n.Kind() {
		case thread.KindComment:
			c := n.Comment
			if c.ID == "" {
				// no stable key to merge on
				r.log.Debug("skipping comment without id", "post", postID, "parent", parent, "replies", len(c.Children))
				continue
			}
			r.comments = append(r.comments, map[string]any{"id": c.ID, "props": commentProps(c)})
			ref := map[string]any{"id": c.ID, "parent": parent}
			if parent == "" {
				r.topLevel = append(r.topLevel, ref)
			} else {
				r.nested = append(r.nested, ref)
			}
			r.collect(postID, c.ID, c.Children)
		case thread.KindMore:
			owner := parent
			if owner == "" {
				owner = postID
			}
			id := fmt.Sprintf("%s:more:%d", owner, stubs)
			stubs++
			ids := n.More.IDs
			if ids == nil {
				ids = []string{}
			}
			r.stubs = append(r.stubs, map[string]any{"id": id, "count": n.More.Count, "ids": ids})
			ref := map[string]any{"id": id, "parent": parent}
			if parent == "" {
				r.topLevel = append(r.topLevel, ref)
			} else {
				r.stubRefs = append(r.stubRefs, ref)
			}
		}
	}
}

func postProps(p thread.Post) map[string]any {
	return map[string]any{
		"subreddit":   p.Subreddit,
		"title":       p.Title,
		"author":      p.Author,
		"body":        p.Body,
		"url":         p.URL,
		"permalink":   p.Permalink,
		"score":       p.Score,
		"upvoteRatio": p.UpvoteRatio,
		"numComments": p.NumComments,
		"created":     p.Created,
		"flair":       p.Flair,
		"nsfw":        p.NSFW,
		"locked":      p.Locked,
	}
}

func commentProps(c *thread.Comment) map[string]any {
	m := map[string]any{
		"author":        c.Author,
		"body":          c.Body,
		"score":         c.Score,
		"created":       c.Created,
		"distinguished": c.Distinguished,
		"isSubmitter":   c.IsSubmitter,
		"permalink":     c.Permalink,
	}
	if c.Edited != nil {
		m["edited"] = *c.Edited
	}
	return m
}
