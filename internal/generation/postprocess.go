package generation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxTitleLength matches the capability contract: titles are plain text of at
// most 120 characters.
const maxTitleLength = 120

var titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// PostProcess validates the raw model output and derives the title. The
// title comes from the first H1 heading, falling back to the first non-empty
// line, and is always truncated to the contract limit.
func PostProcess(raw string) (Result, error) {
	md := strings.TrimSpace(raw)
	if md == "" {
		return Result{}, errors.New("generation: model returned empty markdown")
	}

	title := extractTitle(md)
	if title == "" {
		title = firstLine(md)
	}
	title = truncate(strings.TrimSpace(title), maxTitleLength)

	return Result{Title: title, Markdown: md}, nil
}

func extractTitle(md string) string {
	m := titleRe.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func firstLine(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
