package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// minSubstantiveLen is the threshold below which a text candidate is too
// short to be a question.
const minSubstantiveLen = 5

// textTier resolves a question-text candidate from a container, or "" when
// this tier has nothing to offer.
type textTier func(container *goquery.Selection) string

// firstOf composes tiers into an ordered fallback chain: the first tier
// returning a non-empty candidate wins.
func firstOf(tiers ...textTier) textTier {
	return func(container *goquery.Selection) string {
		for _, tier := range tiers {
			if text := tier(container); text != "" {
				return text
			}
		}
		return ""
	}
}

// normalizeSpace collapses all whitespace runs to single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isBoilerplate reports whether a text candidate is platform chrome, a
// scoring annotation, or otherwise known to never be question text.
func isBoilerplate(text string) bool {
	t := strings.ToLower(normalizeSpace(text))
	if t == "" {
		return true
	}
	if scoringAnnotationRe.MatchString(t) {
		return true
	}
	for _, phrase := range boilerplatePhrases {
		if t == phrase {
			return true
		}
	}
	return false
}

// isSubstantive reports whether a candidate is long enough and not
// boilerplate.
func isSubstantive(text string) bool {
	return len([]rune(normalizeSpace(text))) > minSubstantiveLen && !isBoilerplate(text)
}

// isHiddenNode reports whether an element node is hidden via attributes or
// inline style. Subtrees under hidden nodes are excluded from text scans.
func isHiddenNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(attr.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		case "type":
			if n.Data == "input" && attr.Val == "hidden" {
				return true
			}
		}
	}
	return false
}

// visibleText collects the text nodes under sel in document order, skipping
// hidden subtrees and script/style, and returns them space-joined.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	for _, root := range sel.Nodes {
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if isHiddenNode(n) {
				return
			}
			if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
				return
			}
			if n.Type == html.TextNode {
				if t := normalizeSpace(n.Data); t != "" {
					parts = append(parts, t)
				}
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(root)
	}
	return strings.Join(parts, " ")
}

// filteredText is like visibleText but drops text runs that are boilerplate
// on their own, so chrome interleaved with the question does not leak into
// the result.
func filteredText(sel *goquery.Selection) string {
	var parts []string
	for _, root := range sel.Nodes {
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if isHiddenNode(n) {
				return
			}
			if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
				return
			}
			if n.Type == html.TextNode {
				t := normalizeSpace(n.Data)
				if t != "" && !isBoilerplate(t) {
					parts = append(parts, t)
				}
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(root)
	}
	return strings.Join(parts, " ")
}

// stripEnumMarker removes a leading enumeration marker from an option label.
func stripEnumMarker(s string) string {
	return strings.TrimSpace(enumMarkerRe.ReplaceAllString(normalizeSpace(s), ""))
}
