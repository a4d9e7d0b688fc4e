package archive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Mahrkeenerh/RedditPostDownloader/engine/thread"
)

func renderHTML(t *testing.T, a thread.Archive, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	if err := RenderHTML(&buf, a, opts); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	return buf.String()
}

func TestRenderHTML(t *testing.T) {
	out := renderHTML(t, sampleArchive(), Options{Root: "https://old.reddit.com/", Sort: "top"})

	for _, want := range []string{
		`<a href="https://old.reddit.com/r/MechanicAdvice/">/r/MechanicAdvice</a>`,
		`Brake squeal &lt;help&gt;`,
		`Snapshot taken on 2024-03-09 14:05:07`,
		`Score: 42 (97% upvoted)`,
		`Flair: None`,
		`Sorted by: top`,
		`Locked: Yes`,
		`NSFW: No`,
		`<p>My brakes squeal.</p><p>Only when cold<br>and wet.</p>`,
		`<div class="f m l1" id="t1_c1">`,
		`(10, edited)`,
		`Check &lt;b&gt;pads&lt;/b&gt;`,
		`<div class="p l2" id="t1_c2">`,
		`5 more replies not fetched`,
		`<div class="f o l1" id="t1_c3">`,
		`continue this thread`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "<b>pads") {
		t.Error("comment body was not escaped")
	}
}

func TestRenderHTML_Nesting(t *testing.T) {
	out := renderHTML(t, sampleArchive(), Options{})
	c1 := strings.Index(out, `id="t1_c1"`)
	c2 := strings.Index(out, `id="t1_c2"`)
	c3 := strings.Index(out, `id="t1_c3"`)
	if !(c1 < c2 && c2 < c3) {
		t.Fatalf("comments out of order: c1=%d c2=%d c3=%d", c1, c2, c3)
	}
	if opens, closes := strings.Count(out, "<div"), strings.Count(out, "</div>"); opens != closes {
		t.Fatalf("unbalanced divs: %d open, %d close", opens, closes)
	}
}

func TestRenderHTML_LinkPost(t *testing.T) {
	a := thread.NewArchive(thread.Post{ID: "l1", Subreddit: "cars", Title: "Link", URL: "https://example.com/a"}, "", archivedAt)
	out := renderHTML(t, a, Options{DateFormat: "02/01/2006"})
	if !strings.Contains(out, `<a href="https://example.com/a">`) {
		t.Error("missing link target")
	}
	if !strings.Contains(out, "09/03/2024") {
		t.Error("custom date format not applied")
	}
}

func TestClasses(t *testing.T) {
	tests := []struct {
		c     thread.Comment
		level int
		want  string
	}{
		{thread.Comment{}, 1, "f o l1"},
		{thread.Comment{}, 2, "e l2"},
		{thread.Comment{Distinguished: "admin", IsSubmitter: true}, 3, "a l3"},
		{thread.Comment{IsSubmitter: true}, 4, "p l4"},
		{thread.Comment{}, 12, "e l2"},
	}
	for _, tt := range tests {
		if got := classes(&tt.c, tt.level); got != tt.want {
			t.Errorf("classes(%+v, %d): expected %q, got %q", tt.c, tt.level, tt.want, got)
		}
	}
}

func TestFormatBody(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"  \n ", ""},
		{"a & b", "<p>a &amp; b</p>"},
		{"one\r\ntwo", "<p>one<br>two</p>"},
		{"p1\n\n\n\np2", "<p>p1</p><p>p2</p>"},
	}
	for _, tt := range tests {
		if got := string(formatBody(tt.in)); got != tt.want {
			t.Errorf("formatBody(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
