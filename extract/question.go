package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/quizflow/models"
)

// progressHeaderRe matches progress-style headers ("Question 3",
// "Question 2 of 10") that replace the real question text in some layouts.
var progressHeaderRe = regexp.MustCompile(`(?i)^question\s+\d+(\s+of\s+\d+)?$`)

// questionFromContainer resolves one container into a Question. A container
// that yields no question text, or no options for a non-text container, is
// dropped (ok=false) rather than erroring: a missing question is less
// harmful than failing the whole scrape.
func questionFromContainer(block, container *goquery.Selection) (models.Question, bool) {
	text := firstOf(
		headerTier(block),
		siblingWalkTier,
		scanTier,
	)(container)
	if text == "" {
		return models.Question{}, false
	}

	// Append the clarifying sub-question paragraph when present and distinct.
	if sub := normalizeSpace(visibleText(container.Find(selSubPrompt).First())); sub != "" && sub != text {
		text = text + " " + sub
	}

	q := models.Question{
		Text:      text,
		ProblemID: problemID(container),
	}

	if textInput := container.Find(selTextInput).First(); textInput.Length() > 0 {
		q.Kind = models.KindText
		q.QuestionID = inputContainerID(textInput, textInputIDPrefix)
		return q, true
	}

	labels := optionLabels(container)
	if labels.Length() == 0 {
		return models.Question{}, false
	}

	allCheckbox := true
	sawInput := false
	labels.Each(func(_ int, label *goquery.Selection) {
		if opt := stripEnumMarker(visibleText(label)); opt != "" {
			q.Options = append(q.Options, opt)
		}
		label.Find("input").Each(func(_ int, input *goquery.Selection) {
			sawInput = true
			if typ, _ := input.Attr("type"); typ != "checkbox" {
				allCheckbox = false
			}
		})
	})
	if len(q.Options) == 0 {
		return models.Question{}, false
	}

	if sawInput && allCheckbox {
		q.Kind = models.KindMultiChoice
	} else {
		q.Kind = models.KindSingleChoice
	}
	q.QuestionID = inputContainerID(labels.Find("input").First(), optionInputIDPrefix)

	return q, true
}

// headerTier resolves the dedicated header element, looking in the container
// first and falling back to the enclosing block (some layouts keep the
// header outside the response wrapper). Boilerplate headers and scoring
// annotations yield nothing so the next tier runs.
func headerTier(block *goquery.Selection) textTier {
	return func(container *goquery.Selection) string {
		header := container.Find(selHeader).First()
		if header.Length() == 0 {
			header = block.Find(selHeader).First()
		}
		text := normalizeSpace(visibleText(header))
		if text == "" || isBoilerplate(text) || progressHeaderRe.MatchString(text) {
			return ""
		}
		return text
	}
}

// siblingWalkTier starts at the first answer-input element and walks
// backward through preceding siblings, climbing ancestors within the
// container, taking the first substantive text encountered. Boilerplate,
// progress markers and previous-answer replays are skipped.
func siblingWalkTier(container *goquery.Selection) string {
	input := container.Find(selAnyInput).First()
	if input.Length() == 0 || len(container.Nodes) == 0 {
		return ""
	}

	node := input
	for len(node.Nodes) > 0 && node.Nodes[0] != container.Nodes[0] {
		for prev := node.Prev(); prev.Length() > 0; prev = prev.Prev() {
			if text := filteredText(prev); isSubstantive(text) {
				return text
			}
		}
		node = node.Parent()
	}
	return ""
}

// scanTier is the last resort: a filtered depth-first text-node scan of the
// whole container, hidden subtrees and boilerplate excluded, concatenated in
// document order.
func scanTier(container *goquery.Selection) string {
	if text := filteredText(container); isSubstantive(text) {
		return text
	}
	return ""
}

// optionLabels resolves option label elements via the two-tier structure
// fallback: legacy first, then the alternate layout.
func optionLabels(container *goquery.Selection) *goquery.Selection {
	if legacy := container.Find(selOptionLegacy); legacy.Length() > 0 {
		return legacy
	}
	return container.Find(selOptionAlt)
}

// inputContainerID derives the question identity by stripping the known
// prefix off the id of the input's enclosing identified container.
func inputContainerID(input *goquery.Selection, prefix string) string {
	if input.Length() == 0 {
		return ""
	}
	holder := input.Closest(`[id^="` + prefix + `"]`)
	if holder.Length() == 0 {
		return ""
	}
	id, _ := holder.Attr("id")
	return strings.TrimPrefix(id, prefix)
}

// problemID reads the platform's problem identity off the nearest ancestor
// that carries it; empty when the markup does not expose one.
func problemID(container *goquery.Selection) string {
	holder := container.Closest("[" + attrProblemID + "]")
	if holder.Length() == 0 {
		return ""
	}
	id, _ := holder.Attr(attrProblemID)
	return id
}
