package thread

import (
	"log/slog"
	"strings"
)

// Reddit fullname prefixes.
const (
	commentPrefix = "t1_"
	postPrefix    = "t3_"
)

// Build assembles records into the comment forest of post postID.
//
// Records are indexed first and linked second, so a reply may appear before
// its parent. Sibling order follows input order. A record whose parent cannot
// be resolved is attached at the root instead of being dropped. Records with
// neither an ID nor a parent are skipped. Replies already nested inside a
// record are linked like any other record, defaulting their parent to the
// enclosing comment. The input is not modified.
func Build(postID string, records []Node, log *slog.Logger) []Node {
	if log == nil {
		log = slog.Default()
	}
	postID = strings.TrimPrefix(postID, postPrefix)
	records = flattenNested(records, "", nil)

	nodes := make([]Node, len(records))
	index := make(map[string]*Comment, len(records))
	for i, r := range records {
		switch r.Kind() {
		case KindComment:
			c := *r.Comment
			c.ID = strings.TrimPrefix(c.ID, commentPrefix)
			c.Children = nil
			if c.ID == "" && c.ParentID == "" {
				log.Warn("skipping comment without id or parent", "post", postID, "index", i)
				continue
			}
			if c.ID != "" {
				if _, dup := index[c.ID]; dup {
					log.Warn("skipping duplicate comment", "post", postID, "comment", c.ID)
					continue
				}
				index[c.ID] = &c
			}
			nodes[i] = CommentNode(&c)
		case KindMore:
			m := *r.More
			if m.ParentID == "" {
				log.Warn("skipping more stub without parent", "post", postID, "index", i)
				continue
			}
			nodes[i] = MoreNode(&m)
		default:
			log.Warn("skipping invalid record", "post", postID, "index", i)
		}
	}

	var root []Node
	// attached maps a linked comment to the comment it was placed under.
	attached := make(map[string]string, len(index))
	for _, n := range nodes {
		if n.Kind() == KindInvalid {
			continue
		}
		parent := resolveParent(n.ParentID(), postID)
		if parent == "" {
			root = append(root, n)
			continue
		}
		p, ok := index[parent]
		if !ok {
			log.Debug("parent not found, attaching to root", "post", postID, "parent", n.ParentID())
			root = append(root, n)
			continue
		}
		if n.Kind() == KindComment && n.Comment.ID != "" {
			if createsCycle(attached, n.Comment.ID, parent) {
				log.Warn("reply cycle, attaching to root", "post", postID, "comment", n.Comment.ID, "parent", parent)
				root = append(root, n)
				continue
			}
			attached[n.Comment.ID] = parent
		}
		p.Children = append(p.Children, n)
	}
	return root
}

// flattenNested appends copies of records to out in pre-order, lifting
// nested children into the stream right after their container. A nested
// record without a parent reference takes the container's ID.
func flattenNested(records []Node, container string, out []Node) []Node {
	for _, r := range records {
		switch r.Kind() {
		case KindComment:
			c := *r.Comment
			if c.ParentID == "" {
				c.ParentID = container
			}
			nested := c.Children
			c.Children = nil
			out = append(out, CommentNode(&c))
			if len(nested) > 0 {
				out = flattenNested(nested, c.ID, out)
			}
		case KindMore:
			m := *r.More
			if m.ParentID == "" {
				m.ParentID = container
			}
			out = append(out, MoreNode(&m))
		default:
			out = append(out, r)
		}
	}
	return out
}

// resolveParent returns the comment ID a parent reference points at, or ""
// when the reference is empty or names the post itself.
func resolveParent(ref, postID string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, postPrefix) {
		if strings.TrimPrefix(ref, postPrefix) == postID {
			return ""
		}
		// Another submission; never a comment in this thread.
		return ref
	}
	if ref == postID {
		return ""
	}
	return strings.TrimPrefix(ref, commentPrefix)
}

// createsCycle reports whether placing id under parent would make id its own
// ancestor.
func createsCycle(attached map[string]string, id, parent string) bool {
	for cur := parent; ; {
		if cur == id {
			return true
		}
		next, ok := attached[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

// Walk visits nodes depth-first in pre-order. Returning false from fn skips
// the node's children.
func Walk(nodes []Node, fn func(depth int, n Node) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []Node, depth int, fn func(int, Node) bool) {
	for _, n := range nodes {
		if fn(depth, n) {
			walk(n.Children(), depth+1, fn)
		}
	}
}

// Stats summarizes a comment forest.
type Stats struct {
	Comments int `json:"comments"`
	Stubs    int `json:"stubs"`
	Omitted  int `json:"omitted"`
	MaxDepth int `json:"maxDepth"`
}

// Count walks nodes and tallies comments, stubs and omitted replies.
func Count(nodes []Node) Stats {
	var s Stats
	Walk(nodes, func(depth int, n Node) bool {
		switch n.Kind() {
		case KindComment:
			s.Comments++
		case KindMore:
			s.Stubs++
			s.Omitted += n.More.Count
		}
		if depth+1 > s.MaxDepth {
			s.MaxDepth = depth + 1
		}
		return true
	})
	return s
}
