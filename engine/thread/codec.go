package thread

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type archiveJSON struct {
	Generator  string    `json:"generator,omitempty"`
	ArchivedAt time.Time `json:"archivedAt"`
	Post       Post      `json:"post"`
	Comments   []Node    `json:"comments"`
}

// MarshalJSON writes the archive as {post, comments}. The comment forest is
// always an array, empty when the post has no replies.
func (a Archive) MarshalJSON() ([]byte, error) {
	comments := a.Post.Comments
	if comments == nil {
		comments = []Node{}
	}
	return json.Marshal(archiveJSON{
		Generator:  a.Generator,
		ArchivedAt: a.ArchivedAt,
		Post:       a.Post,
		Comments:   comments,
	})
}

func (a *Archive) UnmarshalJSON(data []byte) error {
	var v archiveJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Post.ID == "" {
		return ErrNoPost
	}
	*a = Archive{Post: v.Post, ArchivedAt: v.ArchivedAt, Generator: v.Generator}
	a.Post.Comments = v.Comments
	return nil
}

// MarshalJSON writes a comment with an explicit children array, or a stub
// with its moreCount marker.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Kind() {
	case KindComment:
		c := *n.Comment
		if c.Children == nil {
			c.Children = []Node{}
		}
		return json.Marshal(c)
	case KindMore:
		return json.Marshal(n.More)
	default:
		return nil, ErrUnknownNode
	}
}

// UnmarshalJSON decodes either variant. An object carrying moreCount is a
// stub; one carrying id or children is a comment.
func (n *Node) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["moreCount"]; ok {
		var m MoreStub
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*n = MoreNode(&m)
		return nil
	}
	_, hasID := probe["id"]
	_, hasChildren := probe["children"]
	if !hasID && !hasChildren {
		return fmt.Errorf("%w: %s", ErrUnknownNode, bytes.TrimSpace(data))
	}
	var c Comment
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*n = CommentNode(&c)
	return nil
}

// Encode writes a as indented JSON.
func Encode(w io.Writer, a Archive) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(a)
}

// Decode reads an archive written by Encode.
func Decode(r io.Reader) (Archive, error) {
	var a Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return Archive{}, fmt.Errorf("decode archive: %w", err)
	}
	return a, nil
}
