package note

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	wikiLinkRe     = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	embeddedIDRe   = regexp.MustCompile(`qp-[0-9a-z]+`)
)

// ExtractInlineLinks returns the ids referenced from a note body, in order
// of first appearance. Wiki links ([[id]] and [[id|label]]) come first,
// followed by markdown links whose target names a note, either directly
// ([text](qp-a1b2)) or through a file path ([text](./qp-a1b2-slug.md)).
// External URLs and anchors are ignored.
func ExtractInlineLinks(body string) []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, m := range wikiLinkRe.FindAllStringSubmatch(body, -1) {
		add(strings.TrimSpace(m[1]))
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(body, -1) {
		target := strings.TrimSpace(m[2])
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "#") {
			continue
		}
		add(embeddedIDRe.FindString(target))
	}

	return ids
}

// Slug turns a title into a lowercase, dash separated filename fragment.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Filename returns the file name a note is stored under.
func Filename(id, title string) string {
	if s := Slug(title); s != "" {
		return id + "-" + s + ".md"
	}
	return id + ".md"
}
