package extract

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// markerMatchers holds the pre-compiled content-marker selectors.
var markerMatchers = compileMarkers()

func compileMarkers() []cascadia.Sel {
	matchers := make([]cascadia.Sel, 0, len(contentMarkerSelectors))
	for _, s := range contentMarkerSelectors {
		sel, err := cascadia.Parse(s)
		if err != nil {
			// Selector constants are fixed at build time; a parse failure is
			// a programming error surfaced immediately.
			panic("extract: bad marker selector " + s + ": " + err.Error())
		}
		matchers = append(matchers, sel)
	}
	return matchers
}

// HasContentMarker reports whether the raw frame HTML contains at least one
// known content-marker element. The scraper polls this, bounded, while the
// frame finishes rendering; a frame that never shows a marker is still
// extracted from, best-effort.
func HasContentMarker(rawHTML string) bool {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return false
	}
	for _, m := range markerMatchers {
		if cascadia.Query(doc, m) != nil {
			return true
		}
	}
	return false
}
