// Package archive names, renders and atomically writes archive files.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Mahrkeenerh/RedditPostDownloader/engine/thread"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// MaxSlug caps the slug part of a file name.
const MaxSlug = 150

var ErrUnknownFormat = errors.New("unknown archive format")

// Options controls rendering.
type Options struct {
	// DateFormat is a Go layout for timestamps in HTML output.
	DateFormat string
	// Root is the Reddit web root used for links in HTML output.
	Root string
	// Sort is the comment order the thread was fetched with.
	Sort string
}

// Renderer returns the function that serializes a in the given format.
func Renderer(a thread.Archive, format string, opts Options) (func(io.Writer) error, error) {
	switch format {
	case FormatJSON, "":
		return func(w io.Writer) error { return thread.Encode(w, a) }, nil
	case FormatHTML:
		return func(w io.Writer) error { return RenderHTML(w, a, opts) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// FileName returns <subreddit>-<slug>-<YYYYmmdd-HHMMSS>.<format> for a.
func FileName(a thread.Archive, format string) string {
	if format == "" {
		format = FormatJSON
	}
	sub := sanitize(a.Post.Subreddit)
	if sub == "" {
		sub = "reddit"
	}
	return fmt.Sprintf("%s-%s-%s.%s", sub, slug(a.Post), a.ArchivedAt.Format("20060102-150405"), format)
}

// slug is the title segment of the permalink, falling back to the
// sanitized title and then the post ID.
func slug(p thread.Post) string {
	var s string
	parts := strings.Split(strings.Trim(p.Permalink, "/"), "/")
	// r/<sub>/comments/<id>/<slug>
	if len(parts) >= 5 && parts[2] == "comments" {
		s = sanitize(parts[4])
	}
	if s == "" {
		s = strings.ToLower(sanitize(p.Title))
	}
	if s == "" {
		s = sanitize(p.ID)
	}
	if s == "" {
		s = "post"
	}
	if len(s) > MaxSlug {
		s = strings.TrimRight(s[:MaxSlug], "_")
	}
	return s
}

func sanitize(s string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(s, "_"), "_")
}

// Write renders into a temporary file in dir and renames it to name once
// render succeeds, so a failed write never leaves a partial file behind.
func Write(dir, name string, render func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := render(tmp); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	committed = true
	return path, nil
}
