package archive

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"
	"time"

	"github.com/Mahrkeenerh/RedditPostDownloader/engine/thread"
)

const defaultDateFormat = "2006-01-02 15:04:05"

var page = template.Must(template.New("page").Funcs(template.FuncMap{
	"yesno": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"/><title>{{.Post.Subreddit}} – {{.Post.Title}}</title>
<style>
body{font-family:sans-serif;max-width:60em;margin:auto;padding:1em;background:#fafafa}
div{border-left:2px solid #ccc;margin:.5em 0 .5em 1em;padding:.3em .6em;background:#fff}
div.f{margin-left:0;margin-top:1em}
div.o{background:#fff}div.e{background:#f2f4f7}
div.p{background:#e8f0fe}div.m{background:#e6f4ea}div.a{background:#fce8e6}
div.more{border-left-style:dashed;color:#666;font-style:italic}
header{font-size:.85em;color:#555;margin-bottom:.3em}
</style></head><body>
<h1><a href="{{.Root}}/r/{{.Post.Subreddit}}/">/r/{{.Post.Subreddit}}</a> – <a href="{{.Root}}{{.Post.Permalink}}">{{.Post.Title}}</a></h1>
<h2>Snapshot taken on {{.ArchivedAt}}<br/>Posts: {{.Post.NumComments}} – Score: {{.Post.Score}} ({{.Upvoted}}% upvoted) – Flair: {{with .Post.Flair}}{{.}}{{else}}None{{end}}{{with .Sort}} – Sorted by: {{.}}{{end}}<br/>
Sticky: {{yesno .Post.Stickied}} – Spoiler: {{yesno .Post.Spoiler}} – NSFW: {{yesno .Post.NSFW}} – Locked: {{yesno .Post.Locked}}</h2>
<p><em>Snapshot taken by {{.Generator}}. All times are UTC.</em></p>
<h3>Original post</h3>
<div class="f p l1" id="t3_{{.Post.ID}}"><header><a href="{{.Root}}/u/{{.Post.Author}}">{{.Post.Author}}</a>, on {{.Created}}</header>
{{- with .Post.URL}}<p><a href="{{.}}">{{.}}</a></p>{{end}}{{.Body}}</div>
<h3>Comments</h3>
{{template "nodes" .Comments}}
</body></html>
{{define "nodes"}}{{range .}}{{if .Comment}}{{with .Comment}}<div class="{{.Classes}}" id="t1_{{.ID}}"><header>{{.Author}}, on {{.Created}} ({{.Score}}{{if .Edited}}, edited{{end}})</header>{{.Body}}
{{template "nodes" .Children}}</div>
{{end}}{{else}}{{with .More}}<div class="more">{{.}}</div>
{{end}}{{end}}{{end}}{{end}}`))

type pageView struct {
	Post       thread.Post
	Root       string
	Sort       string
	Generator  string
	ArchivedAt string
	Created    string
	Upvoted    int
	Body       template.HTML
	Comments   []nodeView
}

type nodeView struct {
	Comment *commentView
	More    string
}

type commentView struct {
	ID       string
	Classes  string
	Author   string
	Created  string
	Score    int
	Edited   bool
	Body     template.HTML
	Children []nodeView
}

// RenderHTML writes a as a standalone HTML page with nested comment blocks.
func RenderHTML(w io.Writer, a thread.Archive, opts Options) error {
	layout := opts.DateFormat
	if layout == "" {
		layout = defaultDateFormat
	}
	root := strings.TrimRight(opts.Root, "/")
	if root == "" {
		root = "https://old.reddit.com"
	}
	date := func(t time.Time) string { return t.UTC().Format(layout) }

	v := pageView{
		Post:       a.Post,
		Root:       root,
		Sort:       opts.Sort,
		Generator:  a.Generator,
		ArchivedAt: date(a.ArchivedAt),
		Created:    date(a.Post.Created),
		Upvoted:    int(math.Round(a.Post.UpvoteRatio * 100)),
		Body:       formatBody(a.Post.Body),
		Comments:   views(a.Post.Comments, 1, date),
	}
	if v.Generator == "" {
		v.Generator = "reddit-archiver"
	}
	return page.Execute(w, v)
}

func views(nodes []thread.Node, level int, date func(time.Time) string) []nodeView {
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		switch n.Kind() {
		case thread.KindComment:
			c := n.Comment
			out = append(out, nodeView{Comment: &commentView{
				ID:       c.ID,
				Classes:  classes(c, level),
				Author:   c.Author,
				Created:  date(c.Created),
				Score:    c.Score,
				Edited:   c.Edited != nil,
				Body:     formatBody(c.Body),
				Children: views(c.Children, level+1, date),
			}})
		case thread.KindMore:
			out = append(out, nodeView{More: moreLabel(n.More)})
		}
	}
	return out
}

// classes colors a comment block: f marks top level, then admin, moderator,
// OP, or alternating even/odd, then l<last digit of level>.
func classes(c *thread.Comment, level int) string {
	var b strings.Builder
	if level == 1 {
		b.WriteString("f ")
	}
	switch {
	case c.Distinguished == "admin":
		b.WriteString("a ")
	case c.Distinguished == "moderator":
		b.WriteString("m ")
	case c.IsSubmitter:
		b.WriteString("p ")
	case level%2 == 0:
		b.WriteString("e ")
	default:
		b.WriteString("o ")
	}
	fmt.Fprintf(&b, "l%d", level%10)
	return b.String()
}

func moreLabel(m *thread.MoreStub) string {
	switch m.Count {
	case 0:
		return "continue this thread (not fetched)"
	case 1:
		return "1 more reply not fetched"
	}
	return fmt.Sprintf("%d more replies not fetched", m.Count)
}

// formatBody escapes text and keeps its paragraph and line breaks.
func formatBody(text string) template.HTML {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, l := range lines {
			lines[i] = template.HTMLEscapeString(l)
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}
	return template.HTML(b.String())
}
