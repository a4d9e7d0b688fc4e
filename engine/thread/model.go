// Package thread models an archived Reddit post and rebuilds its comment tree
// from the flat records returned by the API client.
package thread

import (
	"errors"
	"time"
)

// Sentinel errors for archive decoding.
var (
	ErrUnknownNode = errors.New("unknown comment node")
	ErrNoPost      = errors.New("archive has no post")
)

// Kind identifies which variant a Node holds.
type Kind int

const (
	KindInvalid Kind = iota
	KindComment
	KindMore
)

func (k Kind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindMore:
		return "more"
	default:
		return "invalid"
	}
}

// Post is the submission being archived. Comments holds the top-level nodes
// of its comment forest once the tree has been built.
type Post struct {
	ID          string    `json:"id"`
	Subreddit   string    `json:"subreddit,omitempty"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Body        string    `json:"body"`
	URL         string    `json:"url,omitempty"` // link target; empty for self posts
	Permalink   string    `json:"permalink,omitempty"`
	Score       int       `json:"score"`
	UpvoteRatio float64   `json:"upvoteRatio,omitempty"`
	NumComments int       `json:"numComments,omitempty"`
	Created     time.Time `json:"created"`
	Flair       string    `json:"flair,omitempty"`
	NSFW        bool      `json:"nsfw,omitempty"`
	Spoiler     bool      `json:"spoiler,omitempty"`
	Locked      bool      `json:"locked,omitempty"`
	Stickied    bool      `json:"stickied,omitempty"`
	Comments    []Node    `json:"-"`
}

// IsSelf reports whether the post is a text post rather than a link.
func (p Post) IsSelf() bool { return p.URL == "" }

// Comment is a reply to the post or to another comment.
type Comment struct {
	ID            string     `json:"id"`
	ParentID      string     `json:"parentId,omitempty"`
	Author        string     `json:"author"`
	Body          string     `json:"body"`
	Score         int        `json:"score"`
	Created       time.Time  `json:"created"`
	Edited        *time.Time `json:"edited,omitempty"`
	Distinguished string     `json:"distinguished,omitempty"`
	IsSubmitter   bool       `json:"isSubmitter,omitempty"`
	Stickied      bool       `json:"stickied,omitempty"`
	Permalink     string     `json:"permalink,omitempty"`
	Children      []Node     `json:"children"`
}

// MoreStub stands in for replies the API did not return. Count is the
// number of omitted replies; zero means "continue this thread".
type MoreStub struct {
	ParentID string   `json:"parentId"`
	Count    int      `json:"moreCount"`
	IDs      []string `json:"ids,omitempty"`
}

// Node is a member of the comment forest. Exactly one field is set.
type Node struct {
	Comment *Comment
	More    *MoreStub
}

// CommentNode wraps c in a Node.
func CommentNode(c *Comment) Node { return Node{Comment: c} }

// MoreNode wraps m in a Node.
func MoreNode(m *MoreStub) Node { return Node{More: m} }

// Kind returns the variant held by n.
func (n Node) Kind() Kind {
	switch {
	case n.Comment != nil && n.More == nil:
		return KindComment
	case n.More != nil && n.Comment == nil:
		return KindMore
	default:
		return KindInvalid
	}
}

// ParentID returns the raw parent reference of the node.
func (n Node) ParentID() string {
	switch n.Kind() {
	case KindComment:
		return n.Comment.ParentID
	case KindMore:
		return n.More.ParentID
	}
	return ""
}

// Children returns the node's replies. Stubs never have children.
func (n Node) Children() []Node {
	if n.Kind() == KindComment {
		return n.Comment.Children
	}
	return nil
}

// Archive is the document written to disk: a post and its comment forest.
type Archive struct {
	Post       Post
	ArchivedAt time.Time
	Generator  string
}

// NewArchive returns an archive of post taken at now.
func NewArchive(post Post, generator string, now time.Time) Archive {
	return Archive{
		Post:       post,
		ArchivedAt: now.UTC(),
		Generator:  generator,
	}
}
