package jira

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
	wikiBlockPattern = regexp.MustCompile(`\{(code|noformat|quote|panel|color)(:[^}]*)?\}`)
	wikiHeadPattern  = regexp.MustCompile(`(?m)^h[1-6]\.\s*`)
	wikiBoldPattern  = regexp.MustCompile(`\*([^*\n]+)\*`)
	wikiItalPattern  = regexp.MustCompile(`(^|\s)_([^_\n]+)_`)
	wikiLinkPattern  = regexp.MustCompile(`\[([^|\]]+)\|([^\]]+)\]`)
	wikiBarePattern  = regexp.MustCompile(`\[(https?://[^\]]+)\]`)
	spacePattern     = regexp.MustCompile(`[ \t]+`)
	blankLinePattern = regexp.MustCompile(`\n{3,}`)
)

// cleanMarkup strips HTML tags and the common Jira wiki markup from text,
// keeping line structure.
func cleanMarkup(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = wikiBlockPattern.ReplaceAllString(text, "")
	text = wikiHeadPattern.ReplaceAllString(text, "")
	text = wikiLinkPattern.ReplaceAllString(text, "$1 ($2)")
	text = wikiBarePattern.ReplaceAllString(text, "$1")
	text = wikiBoldPattern.ReplaceAllString(text, "$1")
	text = wikiItalPattern.ReplaceAllString(text, "$1$2")
	text = spacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
