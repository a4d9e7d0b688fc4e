package reddit

import (
	"fmt"
	"regexp"
	"strings"
)

var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:t3_)?([a-z0-9]+)/?$`),
	regexp.MustCompile(`^https?://(?:(?:www|old|new|np)\.)?reddit\.com/([a-z0-9]+)/?$`),
	regexp.MustCompile(`^https?://redd\.it/([a-z0-9]+)/?$`),
	regexp.MustCompile(`^https?://(?:(?:www|old|new|np)\.)?reddit\.com/(?:r/[A-Za-z0-9_-]+/)?comments/([a-z0-9]+)(?:[/?#]|$)`),
}

// ExtractID returns the submission ID in a post URL, a short link, a
// fullname or a bare ID.
func ExtractID(input string) (string, error) {
	s := strings.TrimSpace(input)
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidURL, input)
}
